package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"tailorline/internal/domain"
)

const (
	SummarySheet = "Summary"
	StepsSheet   = "Steps"
	ItemsSheet   = "Line items"
	dateLayout   = "2006-01-02 15:04"
)

// Exporter renders project views into XLSX workbooks for the workshop floor.
type Exporter struct {
	logger *zap.Logger
}

func NewExporter(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{logger: logger}
}

// Write renders v and streams the workbook to w.
func (x *Exporter) Write(w io.Writer, v domain.ProjectView) error {
	f, err := x.build(v)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save renders v to an .xlsx file at path.
func (x *Exporter) Save(path string, v domain.ProjectView) error {
	f, err := x.build(v)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	x.logger.Info("project exported", zap.Int64("project_id", v.ID), zap.String("path", path))
	return nil
}

func (x *Exporter) build(v domain.ProjectView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{StepsSheet, ItemsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := x.fillSummary(f, v, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := x.fillSteps(f, v, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := x.fillItems(f, v, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (x *Exporter) fillSummary(f *excelize.File, v domain.ProjectView, bold int) error {
	rows := [][]any{
		{"Project", v.ID},
		{"Order", v.OrderID},
		{"Customer", v.Customer.Name},
		{"Tailor", v.Tailor.Name},
		{"Description", v.Description},
		{"Instructions", v.Instructions},
		{"Deadline", v.Deadline.Format(dateLayout)},
		{"Rush", yesNo(v.Rush)},
		{"Status", v.Status},
		{"Progress %", v.Progress},
		{"Steps completed", fmt.Sprintf("%d / %d", v.StepsCompleted, v.TotalSteps)},
		{"Days remaining", v.DaysRemaining},
		{"Estimated hours", v.EstimatedHours},
		{"Actual hours", v.ActualProjectHours},
		{"Time efficiency %", v.TimeEfficiency},
	}
	for i, row := range rows {
		if err := setRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SummarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "B", 22)
}

func (x *Exporter) fillSteps(f *excelize.File, v domain.ProjectView, bold int) error {
	header := []any{"Step", "Template", "Status", "Estimated h", "Actual h", "Completed at", "Notes"}
	if err := writeHeader(f, StepsSheet, header, bold); err != nil {
		return err
	}
	for i, s := range v.Steps {
		actual, completed := "", ""
		if s.ActualHours != nil {
			actual = fmt.Sprint(*s.ActualHours)
		}
		if s.CompletedAt != nil {
			completed = s.CompletedAt.Format(dateLayout)
		}
		row := []any{s.StepNo, s.TemplateTitle, s.Status, s.EstimatedHours, actual, completed, s.Notes}
		if err := setRow(f, StepsSheet, i+2, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(StepsSheet, "B", "G", 18)
}

func (x *Exporter) fillItems(f *excelize.File, v domain.ProjectView, bold int) error {
	header := []any{"Item", "Garment", "Fabric", "Quantity", "Measurement", "Value", "Unit", "Notes"}
	if err := writeHeader(f, ItemsSheet, header, bold); err != nil {
		return err
	}
	row := 2
	for _, it := range v.Items {
		if len(it.Measurements) == 0 {
			if err := setRow(f, ItemsSheet, row, []any{it.ID, it.GarmentType, it.Fabric, it.Quantity, "", "", "", it.Notes}); err != nil {
				return err
			}
			row++
			continue
		}
		for _, m := range it.Measurements {
			if err := setRow(f, ItemsSheet, row, []any{it.ID, it.GarmentType, it.Fabric, it.Quantity, m.Name, m.Value, m.Unit, it.Notes}); err != nil {
				return err
			}
			row++
		}
	}
	return f.SetColWidth(ItemsSheet, "B", "H", 16)
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	v := values
	return f.SetSheetRow(sheet, cell, &v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FileName is the default export name for a project.
func FileName(v domain.ProjectView, now time.Time) string {
	return fmt.Sprintf("project-%d-%s.xlsx", v.ID, now.UTC().Format("20060102"))
}
