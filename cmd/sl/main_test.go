package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRubricFromWeightsDisablesOmittedCriteria(t *testing.T) {
	r, err := rubricFromWeights(map[string]int{"Skills": 60, "location": 40})
	if err != nil {
		t.Fatalf("rubric: %v", err)
	}
	if !r.Skills.Enabled || r.Skills.Weight != 60 || !r.Location.Enabled || r.Location.Weight != 40 {
		t.Fatalf("unexpected enabled criteria %+v", r)
	}
	if r.Experience.Enabled || r.Availability.Enabled {
		t.Fatalf("omitted criteria must stay disabled: %+v", r)
	}
}

func TestRubricFromWeightsRejectsBadInput(t *testing.T) {
	if _, err := rubricFromWeights(map[string]int{"charisma": 10}); err == nil {
		t.Fatalf("expected unknown criterion error")
	}
	if _, err := rubricFromWeights(map[string]int{"skills": 0}); err == nil {
		t.Fatalf("expected error when no criterion carries weight")
	}
	if _, err := rubricFromWeights(map[string]int{"skills": 10, "experience": -5}); err == nil {
		t.Fatalf("expected negative weight error")
	}
}

func TestSetEnvValueReplacesOrAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STAFFLINE_AGENCY_ID=old\nOTHER=1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := setEnvValue(path, "STAFFLINE_AGENCY_ID", "agency-2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := setEnvValue(path, "STAFFLINE_DEBUG", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "STAFFLINE_AGENCY_ID=agency-2\nOTHER=1\nSTAFFLINE_DEBUG=true\n"
	if string(data) != want {
		t.Fatalf("unexpected .env content:\n%s", string(data))
	}
}

func TestSetEnvValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, "STAFFLINE_AGENCY_ID", "agency-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "STAFFLINE_AGENCY_ID=agency-1\n" {
		t.Fatalf("unexpected content %q", string(data))
	}
}
