package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"staffline/internal/config"
	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/logger"
	"staffline/internal/matching"
	"staffline/internal/messaging"
	"staffline/internal/repo"
	"staffline/internal/scoring"
)

// Engine is the single writer for pipelines. Every transition of a pipeline
// runs under that pipeline's lock, in one transaction that also records the
// audit events.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Scorer  *scoring.Adapter
	Gateway *messaging.Gateway
	Log     *zap.Logger
	Now     func() time.Time

	locks *pipelineLocks
}

// New returns an engine with no scoring backend and a log-only gateway.
// Callers replace Scorer and Gateway once the providers are configured.
func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Scorer:  scoring.New(nil, "", 0, nil),
		Gateway: messaging.NewLogGateway(nil),
		Log:     zap.NewNop(),
		Now:     time.Now,
		locks:   newPipelineLocks(),
	}
}

var fallbackLocks = newPipelineLocks()

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	return logger.OrNop(e.Log)
}

func (e Engine) lockPipeline(id string) func() {
	if e.locks == nil {
		return fallbackLocks.lock(id)
	}
	return e.locks.lock(id)
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default("")
	}
	return e.Config
}

func (e Engine) gateway() *messaging.Gateway {
	if e.Gateway == nil {
		return messaging.NewLogGateway(e.Log)
	}
	return e.Gateway
}

func (e Engine) matcher() *matching.Engine {
	m := &matching.Engine{Oversampling: e.config().Pipeline.Oversampling, Log: e.Log}
	if e.Scorer != nil {
		m.Scorer = e.Scorer
	}
	return m
}

func (e Engine) countryCode() string {
	return e.config().Messaging.DefaultCountryCode
}

// Agency returns the tenant, naming it in the error when it does not exist.
func (e Engine) Agency(ctx context.Context, agencyID string) (domain.Agency, error) {
	a, err := e.Repo.GetAgency(ctx, agencyID)
	if err != nil {
		return a, notFound("agency", agencyID, err)
	}
	return a, nil
}

// EnsureAgency creates the agency on first use.
func (e Engine) EnsureAgency(ctx context.Context, agencyID, name, actorID string) (domain.Agency, error) {
	if agencyID == "" {
		return domain.Agency{}, invalidf("agency id is required")
	}
	a, err := e.Repo.GetAgency(ctx, agencyID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return a, err
	}
	if name == "" {
		name = agencyID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agency{}, err
	}
	defer tx.Rollback()
	a = domain.Agency{ID: agencyID, Name: name, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertAgency(ctx, tx, a); err != nil {
		return domain.Agency{}, fmt.Errorf("insert agency: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "agency.created", a.ID, "agency", a.ID, actorID, events.EventPayload{"name": a.Name}); err != nil {
		return domain.Agency{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Agency{}, err
	}
	return a, nil
}

// Stats summarises the agency's pipelines.
func (e Engine) Stats(ctx context.Context, agencyID string) (domain.PipelineStats, error) {
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return domain.PipelineStats{}, err
	}
	return e.Repo.PipelineStats(ctx, agencyID)
}

// loadSnapshot reads a pipeline with its mission and participants inside tx.
func (e Engine) loadSnapshot(ctx context.Context, tx *sql.Tx, agencyID, pipelineID string) (snapshot, error) {
	pl, err := e.Repo.GetPipeline(ctx, tx, agencyID, pipelineID)
	if err != nil {
		return snapshot{}, notFound("pipeline", pipelineID, err)
	}
	m, err := e.Repo.GetMission(ctx, tx, agencyID, pl.MissionID)
	if err != nil {
		return snapshot{}, notFound("mission", pl.MissionID, err)
	}
	parts, err := e.Repo.ListParticipants(ctx, tx, pl.ID)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{pipeline: pl, mission: m, participants: parts}, nil
}

// applyEffect writes eff inside tx and returns the snapshot after the change.
func (e Engine) applyEffect(ctx context.Context, tx *sql.Tx, agencyID, actorID string, s snapshot, eff effect) (snapshot, error) {
	if eff.noop() {
		return s, nil
	}
	at := e.timestamp()
	for _, p := range eff.changed {
		if err := e.Repo.UpdateParticipant(ctx, tx, p); err != nil {
			return s, fmt.Errorf("update participant %s: %w", p.ID, err)
		}
		if i, ok := s.participant(p.ID); ok {
			s.participants[i] = p
		}
	}
	if eff.status != s.pipeline.Status {
		if err := e.Repo.UpdatePipelineStatus(ctx, tx, s.pipeline.ID, eff.status, at); err != nil {
			return s, fmt.Errorf("update pipeline %s: %w", s.pipeline.ID, err)
		}
		s.pipeline.Status = eff.status
		s.pipeline.UpdatedAt = at
	} else if len(eff.changed) > 0 {
		// Touch the pipeline so "most recently updated" reflects participant activity.
		if err := e.Repo.UpdatePipelineStatus(ctx, tx, s.pipeline.ID, s.pipeline.Status, at); err != nil {
			return s, err
		}
		s.pipeline.UpdatedAt = at
	}
	for _, ev := range eff.events {
		if err := e.Events.Append(ctx, tx, ev.typ, agencyID, ev.entityKind, ev.entityID, actorID, ev.payload); err != nil {
			return s, err
		}
	}
	return s, nil
}

// transition runs cmd against one pipeline: lock, read, step, write, commit.
func (e Engine) transition(ctx context.Context, agencyID, pipelineID, actorID string, cmd command) (snapshot, effect, error) {
	unlock := e.lockPipeline(pipelineID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return snapshot{}, effect{}, err
	}
	defer tx.Rollback()

	s, err := e.loadSnapshot(ctx, tx, agencyID, pipelineID)
	if err != nil {
		return snapshot{}, effect{}, err
	}
	if cmd.at == "" {
		cmd.at = e.timestamp()
	}
	eff, err := step(s, cmd)
	if err != nil {
		return s, eff, err
	}
	s, err = e.applyEffect(ctx, tx, agencyID, actorID, s, eff)
	if err != nil {
		return s, eff, err
	}
	if err := tx.Commit(); err != nil {
		return s, eff, err
	}
	if eff.transition != "" {
		logger.WithFields(e.log(), logger.PipelineFields(agencyID, pipelineID)...).Info("pipeline transition",
			zap.String("transition", eff.transition),
			zap.String("status", string(s.pipeline.Status)),
		)
	}
	return s, eff, nil
}

// pipelineOf resolves the pipeline owning a participant of the agency.
func (e Engine) pipelineOf(ctx context.Context, agencyID, participantID string) (string, error) {
	p, err := e.Repo.GetParticipant(ctx, nil, agencyID, participantID)
	if err != nil {
		return "", notFound("participant", participantID, err)
	}
	return p.PipelineID, nil
}
