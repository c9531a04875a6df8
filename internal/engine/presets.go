package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/repo"
	"staffline/internal/scoring"
)

// PresetInput describes a named rubric.
type PresetInput struct {
	Name      string
	JobType   string
	Rubric    domain.Rubric
	IsDefault bool
}

// SavePreset stores a rubric preset. A default preset replaces the previous
// default in the same transaction.
func (e Engine) SavePreset(ctx context.Context, agencyID string, in PresetInput, actorID string) (domain.ScoringPreset, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.ScoringPreset{}, invalidf("preset name is required")
	}
	if err := in.Rubric.Validate(); err != nil {
		return domain.ScoringPreset{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return domain.ScoringPreset{}, err
	}
	p := domain.ScoringPreset{
		ID:        uuid.NewString(),
		AgencyID:  agencyID,
		Name:      strings.TrimSpace(in.Name),
		JobType:   strings.TrimSpace(in.JobType),
		Rubric:    in.Rubric,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScoringPreset{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPreset(ctx, tx, p); err != nil {
		if isUniqueViolation(err) {
			return domain.ScoringPreset{}, conflictf("preset %q already exists", p.Name)
		}
		return domain.ScoringPreset{}, err
	}
	if in.IsDefault {
		if err := e.Repo.SetDefaultPreset(ctx, tx, agencyID, p.ID); err != nil {
			return domain.ScoringPreset{}, err
		}
		p.IsDefault = true
	}
	if err := e.Events.Append(ctx, tx, "preset.saved", agencyID, "preset", p.ID, actorID,
		events.EventPayload{"name": p.Name, "default": p.IsDefault}); err != nil {
		return domain.ScoringPreset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ScoringPreset{}, err
	}
	return p, nil
}

func (e Engine) SetDefaultPreset(ctx context.Context, agencyID, presetID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetDefaultPreset(ctx, tx, agencyID, presetID); err != nil {
		return notFound("preset", presetID, err)
	}
	if err := e.Events.Append(ctx, tx, "preset.default", agencyID, "preset", presetID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeletePreset(ctx context.Context, agencyID, presetID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeletePreset(ctx, tx, agencyID, presetID); err != nil {
		return notFound("preset", presetID, err)
	}
	if err := e.Events.Append(ctx, tx, "preset.deleted", agencyID, "preset", presetID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RankInput selects the rubric for a ranking: an explicit rubric, else the
// named preset, else the agency default preset, else the built-in rubric.
type RankInput struct {
	JobDescription string
	Rubric         *domain.Rubric
	PresetID       string
}

// RankCandidates scores the agency's whole candidate base against a job
// description.
func (e Engine) RankCandidates(ctx context.Context, agencyID string, in RankInput) (scoring.Ranking, error) {
	if strings.TrimSpace(in.JobDescription) == "" {
		return scoring.Ranking{}, invalidf("job description is required")
	}
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return scoring.Ranking{}, err
	}
	rubric, err := e.rubricFor(ctx, agencyID, in)
	if err != nil {
		return scoring.Ranking{}, err
	}
	pool, err := e.Repo.ListCandidates(ctx, agencyID, "")
	if err != nil {
		return scoring.Ranking{}, err
	}
	scorer := e.Scorer
	if scorer == nil {
		scorer = scoring.New(nil, "", 0, e.Log)
	}
	rk, err := scorer.Rank(ctx, scoring.RankRequest{JobDescription: in.JobDescription, Rubric: rubric, Candidates: pool})
	if err != nil {
		return scoring.Ranking{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return rk, nil
}

func (e Engine) rubricFor(ctx context.Context, agencyID string, in RankInput) (domain.Rubric, error) {
	if in.Rubric != nil {
		return *in.Rubric, nil
	}
	if in.PresetID != "" {
		p, err := e.Repo.GetPreset(ctx, agencyID, in.PresetID)
		if err != nil {
			return domain.Rubric{}, notFound("preset", in.PresetID, err)
		}
		return p.Rubric, nil
	}
	p, err := e.Repo.GetDefaultPreset(ctx, agencyID)
	if err == nil {
		return p.Rubric, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Rubric{}, err
	}
	return domain.DefaultRubric(), nil
}
