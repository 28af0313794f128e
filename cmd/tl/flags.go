package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tailorline/internal/domain"
)

// parseStep reads "step_no:template_id:hours[:notes]".
func parseStep(s string) (domain.StepSpec, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return domain.StepSpec{}, fmt.Errorf("step %q: want step_no:template_id:hours[:notes]", s)
	}
	no, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return domain.StepSpec{}, fmt.Errorf("step %q: bad step_no: %w", s, err)
	}
	tpl, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return domain.StepSpec{}, fmt.Errorf("step %q: bad template_id: %w", s, err)
	}
	hours, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return domain.StepSpec{}, fmt.Errorf("step %q: bad hours: %w", s, err)
	}
	spec := domain.StepSpec{StepNo: no, TemplateID: tpl, EstimatedHours: hours}
	if len(parts) == 4 {
		spec.Notes = parts[3]
	}
	return spec, nil
}

// collectSteps merges --step values with a YAML steps file. Returns nil when neither is given.
func collectSteps(flags []string, file string) ([]domain.StepSpec, error) {
	var specs []domain.StepSpec
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &specs); err != nil {
			return nil, fmt.Errorf("invalid steps file %s: %w", file, err)
		}
		if specs == nil {
			specs = []domain.StepSpec{}
		}
	}
	for _, f := range flags {
		sp, err := parseStep(f)
		if err != nil {
			return nil, err
		}
		specs = append(specs, sp)
	}
	return specs, nil
}

// parseDeadline accepts RFC 3339 or a bare date, read as midnight UTC.
func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}
