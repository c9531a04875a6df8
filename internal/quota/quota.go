// Package quota decides when a mission has enough validated participants.
package quota

import "staffline/internal/domain"

// Result of a quota evaluation.
type Result struct {
	Validated int  `json:"validated"`
	Target    int  `json:"target"`
	Completed bool `json:"completed"`
}

// Evaluate compares the validated count with the target. A target of zero or
// less counts as one. Validations past the target are reported as they are.
func Evaluate(validated, target int) Result {
	if target <= 0 {
		target = 1
	}
	return Result{Validated: validated, Target: target, Completed: validated >= target}
}

// CountValidated counts participants the client validated.
func CountValidated(participants []domain.Participant) int {
	n := 0
	for _, p := range participants {
		if p.ClientValidated {
			n++
		}
	}
	return n
}
