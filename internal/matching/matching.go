// Package matching decides which candidates enter a mission's pipeline.
package matching

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"staffline/internal/domain"
	"staffline/internal/logger"
	"staffline/internal/scoring"
)

// ErrNoEligibleCandidates is returned when no candidate is AVAILABLE.
var ErrNoEligibleCandidates = errors.New("no eligible candidates")

// DefaultOversampling asks for twice the target so the agency has spares
// when candidates decline.
const DefaultOversampling = 2

type Shortlister interface {
	Shortlist(ctx context.Context, req scoring.ShortlistRequest) scoring.Shortlist
}

type Engine struct {
	Scorer       Shortlister
	Oversampling int
	Log          *zap.Logger
}

// Selection is the ordered list of candidates to admit.
type Selection struct {
	Candidates []domain.Candidate
	// Requested is the shortlist size asked from the scorer.
	Requested int
	// AlreadyIn counts shortlisted candidates skipped because they already participate.
	AlreadyIn int
	Fallback  bool
}

// ShortlistSize is min(oversampling × target, pool size).
func ShortlistSize(target, oversampling, pool int) int {
	if target <= 0 {
		target = 1
	}
	if oversampling <= 0 {
		oversampling = DefaultOversampling
	}
	return min(target*oversampling, pool)
}

// Eligible keeps AVAILABLE candidates, preserving pool order.
func Eligible(pool []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(pool))
	for _, c := range pool {
		if c.Availability == domain.Available {
			out = append(out, c)
		}
	}
	return out
}

// Select shortlists the eligible pool for the mission and drops candidates
// listed in existing. Re-running it for the same pipeline admits nobody twice.
func (e *Engine) Select(ctx context.Context, mission domain.Mission, pool []domain.Candidate, existing map[string]bool) (Selection, error) {
	eligible := Eligible(pool)
	if len(eligible) == 0 {
		return Selection{}, ErrNoEligibleCandidates
	}
	size := ShortlistSize(mission.Target, e.Oversampling, len(eligible))

	var sl scoring.Shortlist
	if e.Scorer != nil {
		sl = e.Scorer.Shortlist(ctx, scoring.ShortlistRequest{Mission: mission, Candidates: eligible, Size: size})
	} else {
		sl = scoring.Shortlist{Indices: scoring.FirstN(size), Fallback: true}
	}

	sel := Selection{Requested: size, Fallback: sl.Fallback}
	for _, idx := range sl.Indices {
		if idx < 0 || idx >= len(eligible) {
			continue
		}
		c := eligible[idx]
		if existing[c.ID] {
			sel.AlreadyIn++
			continue
		}
		sel.Candidates = append(sel.Candidates, c)
	}
	logger.WithFields(e.Log, zap.String("mission_id", mission.ID)).Debug("candidates selected",
		zap.Int("eligible", len(eligible)),
		zap.Int("requested", size),
		zap.Int("admitted", len(sel.Candidates)),
		zap.Int("already_in", sel.AlreadyIn),
		zap.Bool("fallback", sel.Fallback),
	)
	return sel, nil
}
