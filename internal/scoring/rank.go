package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"staffline/internal/domain"
)

// Breakdown holds one contribution per rubric criterion.
type Breakdown struct {
	Skills       float64 `json:"skills"`
	Experience   float64 `json:"experience"`
	Availability float64 `json:"availability"`
	Location     float64 `json:"location"`
}

func (b Breakdown) Total() float64 {
	return b.Skills + b.Experience + b.Availability + b.Location
}

func (b *Breakdown) set(name domain.CriterionName, v float64) {
	switch name {
	case domain.CriterionSkills:
		b.Skills = v
	case domain.CriterionExperience:
		b.Experience = v
	case domain.CriterionAvailability:
		b.Availability = v
	case domain.CriterionLocation:
		b.Location = v
	}
}

func (b Breakdown) Get(name domain.CriterionName) float64 {
	switch name {
	case domain.CriterionSkills:
		return b.Skills
	case domain.CriterionExperience:
		return b.Experience
	case domain.CriterionAvailability:
		return b.Availability
	case domain.CriterionLocation:
		return b.Location
	}
	return 0
}

type RankRequest struct {
	JobDescription string
	Rubric         domain.Rubric
	Candidates     []domain.Candidate
}

// Ranked is one scored candidate. Score always equals Breakdown.Total().
type Ranked struct {
	Candidate domain.Candidate `json:"candidate"`
	Score     float64          `json:"score"`
	Breakdown Breakdown        `json:"breakdown"`
	Reason    string           `json:"reason,omitempty"`
	// Adjusted is set when the capability's numbers had to be clamped or
	// its total recomputed.
	Adjusted bool `json:"adjusted,omitempty"`
	// Unscored marks candidates the capability left out of its answer.
	Unscored bool `json:"unscored,omitempty"`
}

type Ranking struct {
	Results  []Ranked `json:"results"`
	MaxScore int      `json:"max_score"`
	Fallback bool     `json:"fallback"`
	Reason   string   `json:"reason,omitempty"`
}

type rawScore struct {
	ID        string             `json:"id"`
	Score     *float64           `json:"score"`
	Breakdown map[string]float64 `json:"breakdown"`
	Reason    string             `json:"reason"`
}

// Rank scores the whole pool against the rubric. Contributions are clamped to
// [0, weight], disabled criteria are zeroed and the total is the sum of the
// contributions. On capability failure the pool is returned in order with zero
// scores and Fallback set.
func (a *Adapter) Rank(ctx context.Context, req RankRequest) (Ranking, error) {
	if err := req.Rubric.Validate(); err != nil {
		return Ranking{}, err
	}
	out := Ranking{MaxScore: req.Rubric.EnabledTotal()}
	if len(req.Candidates) == 0 {
		out.Results = []Ranked{}
		return out, nil
	}

	prompt, err := buildRankPrompt(req)
	if err != nil {
		return Ranking{}, err
	}
	raw, err := a.generate(ctx, prompt)
	if err == nil {
		var results []Ranked
		results, err = a.parseRanking(raw, req)
		if err == nil {
			out.Results = results
			return out, nil
		}
	}
	if !errors.Is(err, ErrNoGenerator) {
		a.log.Warn("ranking fell back to pool order", zap.Error(err))
	}
	out.Fallback = true
	out.Reason = err.Error()
	out.Results = make([]Ranked, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		out.Results = append(out.Results, Ranked{Candidate: c, Unscored: true})
	}
	return out, nil
}

func (a *Adapter) parseRanking(raw string, req RankRequest) ([]Ranked, error) {
	cleaned := extractJSON(raw)
	var scores []rawScore
	if err := json.Unmarshal([]byte(cleaned), &scores); err != nil {
		var wrapped struct {
			Results []rawScore `json:"results"`
		}
		if werr := json.Unmarshal([]byte(cleaned), &wrapped); werr != nil || wrapped.Results == nil {
			return nil, fmt.Errorf("parse ranking: %w", err)
		}
		scores = wrapped.Results
	}

	byID := make(map[string]domain.Candidate, len(req.Candidates))
	for _, c := range req.Candidates {
		byID[c.ID] = c
	}
	seen := make(map[string]bool, len(scores))
	results := make([]Ranked, 0, len(req.Candidates))
	for _, s := range scores {
		c, ok := byID[s.ID]
		if !ok || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		r := Ranked{Candidate: c, Reason: s.Reason}
		r.Breakdown, r.Adjusted = clampBreakdown(s.Breakdown, req.Rubric)
		r.Score = r.Breakdown.Total()
		if s.Score == nil || math.Abs(*s.Score-r.Score) > 1e-6 {
			r.Adjusted = true
		}
		if r.Adjusted {
			a.log.Debug("ranking entry adjusted", zap.String("candidate_id", c.ID))
		}
		results = append(results, r)
	}
	if len(results) == 0 {
		return nil, errors.New("ranking holds no known candidate")
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	for _, c := range req.Candidates {
		if !seen[c.ID] {
			results = append(results, Ranked{Candidate: c, Unscored: true})
		}
	}
	return results, nil
}

// clampBreakdown keeps known enabled criteria within [0, weight]. Unknown keys
// are dropped.
func clampBreakdown(in map[string]float64, rubric domain.Rubric) (Breakdown, bool) {
	var b Breakdown
	adjusted := false
	known := 0
	for _, name := range domain.CriterionNames {
		v, ok := in[string(name)]
		if !ok {
			continue
		}
		known++
		cr := rubric.Criterion(name)
		switch {
		case !cr.Enabled:
			if v != 0 {
				adjusted = true
			}
			v = 0
		case math.IsNaN(v) || v < 0:
			adjusted = true
			v = 0
		case v > float64(cr.Weight):
			adjusted = true
			v = float64(cr.Weight)
		}
		b.set(name, v)
	}
	if known != len(in) {
		adjusted = true
	}
	return b, adjusted
}
