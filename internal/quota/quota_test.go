package quota

import (
	"testing"

	"staffline/internal/domain"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		validated, target int
		completed         bool
	}{
		{0, 2, false},
		{1, 2, false},
		{2, 2, true},
		{3, 2, true},
		{0, 0, false},
		{1, 0, true},
		{1, -3, true},
	}
	for _, tc := range cases {
		got := Evaluate(tc.validated, tc.target)
		if got.Completed != tc.completed {
			t.Fatalf("Evaluate(%d, %d) completed = %v, want %v", tc.validated, tc.target, got.Completed, tc.completed)
		}
		if tc.target <= 0 && got.Target != 1 {
			t.Fatalf("expected default target 1, got %d", got.Target)
		}
	}
}

func TestCountValidated(t *testing.T) {
	ps := []domain.Participant{
		{ID: "a", ClientValidated: true},
		{ID: "b", ClientRefused: true},
		{ID: "c"},
		{ID: "d", ClientValidated: true},
	}
	if n := CountValidated(ps); n != 2 {
		t.Fatalf("expected 2 validated, got %d", n)
	}
}
