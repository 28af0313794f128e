package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"tailorline/internal/domain"
)

func sampleView() domain.ProjectView {
	hours := 3
	done := time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC)
	return domain.ProjectView{
		Project: domain.Project{
			ID: 7, OrderID: 1, Description: "wedding suit",
			Deadline:       time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
			Rush:           true,
			EstimatedHours: 10,
			Status:         domain.ProjectInProgress,
			Progress:       50,
		},
		Customer: domain.Customer{ID: 1, Name: "Grace Okafor"},
		Tailor:   domain.Staff{ID: 1, Name: "Rafael Moreno"},
		Steps: []domain.StepView{
			{WorkflowStep: domain.WorkflowStep{StepNo: 1, Status: domain.StepCompleted, EstimatedHours: 4, ActualHours: &hours, CompletedAt: &done}, TemplateTitle: "Measure"},
			{WorkflowStep: domain.WorkflowStep{StepNo: 2, Status: domain.StepPending, EstimatedHours: 6, Notes: "double stitch"}, TemplateTitle: "Cut"},
		},
		Items: []domain.CustomOrderItem{
			{ID: 1, GarmentType: "jacket", Fabric: "wool", Quantity: 1, Measurements: []domain.Measurement{
				{Name: "chest", Value: 102.5, Unit: "cm"},
				{Name: "sleeve", Value: 64, Unit: "cm"},
			}},
			{ID: 2, GarmentType: "tie", Quantity: 2, Measurements: []domain.Measurement{}},
		},
		StepsCompleted:     1,
		TotalSteps:         2,
		DaysRemaining:      18,
		ActualProjectHours: 3,
		TimeEfficiency:     100,
	}
}

func TestExportWritesAllSheets(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter(zaptest.NewLogger(t)).Write(&buf, sampleView()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SummarySheet, StepsSheet, ItemsSheet}, f.GetSheetList())

	customer, err := f.GetCellValue(SummarySheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "Grace Okafor", customer)
	completed, err := f.GetCellValue(SummarySheet, "B11")
	require.NoError(t, err)
	assert.Equal(t, "1 / 2", completed)

	steps, err := f.GetRows(StepsSheet)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"1", "Measure", "completed", "4", "3", "2024-04-02 14:00"}, steps[1])
	assert.Equal(t, "double stitch", steps[2][6])

	items, err := f.GetRows(ItemsSheet)
	require.NoError(t, err)
	// header, two measurement rows, one bare item
	require.Len(t, items, 4)
	assert.Equal(t, "chest", items[1][4])
	assert.Equal(t, "tie", items[3][1])
}

func TestExportSaveToFile(t *testing.T) {
	v := sampleView()
	path := filepath.Join(t.TempDir(), FileName(v, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, NewExporter(nil).Save(path, v))
	assert.Equal(t, "project-7-20240403.xlsx", filepath.Base(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rush, err := f.GetCellValue(SummarySheet, "B8")
	require.NoError(t, err)
	assert.Equal(t, "yes", rush)
}
