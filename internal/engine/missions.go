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
)

const (
	MissionOpen   = "OPEN"
	MissionClosed = "CLOSED"

	SourceManual = "MANUAL"
)

// MissionInput describes a mission. When ClientID is empty the client is found
// by ClientName, or created.
type MissionInput struct {
	ClientID       string
	ClientName     string
	Title          string
	Description    string
	Location       string
	Target         int
	RequiredSkills []string
	Channels       []domain.Channel
	StartDate      *string
	EndDate        *string
	Source         string
}

// MissionPatch edits a mission. Nil fields are left as they are.
type MissionPatch struct {
	Title          *string
	Description    *string
	Location       *string
	Target         *int
	RequiredSkills *[]string
	Channels       *[]domain.Channel
	Status         *string
	StartDate      *string
	EndDate        *string
}

func (e Engine) normalizeChannels(in []domain.Channel) ([]domain.Channel, error) {
	if len(in) == 0 {
		return e.config().Channels(), nil
	}
	out := make([]domain.Channel, 0, len(in))
	seen := map[domain.Channel]bool{}
	for _, raw := range in {
		ch, ok := domain.ParseChannel(string(raw))
		if !ok {
			return nil, invalidf("unknown channel %q", raw)
		}
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out, nil
}

// CreateMission stores a mission and its pipeline in WAITING_AGENCY.
func (e Engine) CreateMission(ctx context.Context, agencyID string, in MissionInput, actorID string) (domain.Mission, domain.Pipeline, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.Mission{}, domain.Pipeline{}, invalidf("mission title is required")
	}
	if in.ClientID == "" && strings.TrimSpace(in.ClientName) == "" {
		return domain.Mission{}, domain.Pipeline{}, invalidf("client id or client name is required")
	}
	if in.Target < 0 {
		return domain.Mission{}, domain.Pipeline{}, invalidf("target must not be negative")
	}
	if in.Target == 0 {
		in.Target = e.config().Pipeline.DefaultTarget
	}
	channels, err := e.normalizeChannels(in.Channels)
	if err != nil {
		return domain.Mission{}, domain.Pipeline{}, err
	}
	if _, err := e.Agency(ctx, agencyID); err != nil {
		return domain.Mission{}, domain.Pipeline{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, domain.Pipeline{}, err
	}
	defer tx.Rollback()

	var client domain.Client
	if in.ClientID != "" {
		client, err = e.Repo.GetClient(ctx, tx, agencyID, in.ClientID)
		if err != nil {
			return domain.Mission{}, domain.Pipeline{}, notFound("client", in.ClientID, err)
		}
	} else {
		client, err = e.Repo.FindClientByName(ctx, tx, agencyID, in.ClientName)
		if errors.Is(err, repo.ErrNotFound) {
			client, err = e.insertClient(ctx, tx, agencyID, ClientInput{Name: in.ClientName}, actorID)
		}
		if err != nil {
			return domain.Mission{}, domain.Pipeline{}, err
		}
	}

	now := e.timestamp()
	source := in.Source
	if source == "" {
		source = SourceManual
	}
	m := domain.Mission{
		ID:             uuid.NewString(),
		AgencyID:       agencyID,
		ClientID:       client.ID,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Location:       strings.TrimSpace(in.Location),
		Target:         in.Target,
		RequiredSkills: cleanList(in.RequiredSkills),
		Channels:       channels,
		Status:         MissionOpen,
		Source:         source,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, domain.Pipeline{}, fmt.Errorf("insert mission: %w", err)
	}
	pl := domain.Pipeline{
		ID:        uuid.NewString(),
		MissionID: m.ID,
		AgencyID:  agencyID,
		Status:    domain.PipelineWaitingAgency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertPipeline(ctx, tx, pl); err != nil {
		return domain.Mission{}, domain.Pipeline{}, fmt.Errorf("insert pipeline: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "mission.created", agencyID, "mission", m.ID, actorID, events.EventPayload{
		"client_id": client.ID, "pipeline_id": pl.ID, "target": m.Target, "channels": m.Channels,
	}); err != nil {
		return domain.Mission{}, domain.Pipeline{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, domain.Pipeline{}, err
	}
	return m, pl, nil
}

// UpdateMission applies patch. A lower target never reopens a completed
// pipeline, and a higher one never un-completes it.
func (e Engine) UpdateMission(ctx context.Context, agencyID, missionID string, patch MissionPatch, actorID string) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.GetMission(ctx, tx, agencyID, missionID)
	if err != nil {
		return domain.Mission{}, notFound("mission", missionID, err)
	}
	changed := []string{}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return domain.Mission{}, invalidf("mission title is required")
		}
		m.Title = strings.TrimSpace(*patch.Title)
		changed = append(changed, "title")
	}
	if patch.Description != nil {
		m.Description = strings.TrimSpace(*patch.Description)
		changed = append(changed, "description")
	}
	if patch.Location != nil {
		m.Location = strings.TrimSpace(*patch.Location)
		changed = append(changed, "location")
	}
	if patch.Target != nil {
		if *patch.Target < 1 {
			return domain.Mission{}, invalidf("target must be at least 1")
		}
		m.Target = *patch.Target
		changed = append(changed, "target")
	}
	if patch.RequiredSkills != nil {
		m.RequiredSkills = cleanList(*patch.RequiredSkills)
		changed = append(changed, "required_skills")
	}
	if patch.Channels != nil {
		if len(*patch.Channels) == 0 {
			return domain.Mission{}, invalidf("at least one channel is required")
		}
		chs, err := e.normalizeChannels(*patch.Channels)
		if err != nil {
			return domain.Mission{}, err
		}
		m.Channels = chs
		changed = append(changed, "channels")
	}
	if patch.Status != nil {
		st := strings.ToUpper(strings.TrimSpace(*patch.Status))
		if st != MissionOpen && st != MissionClosed {
			return domain.Mission{}, invalidf("mission status must be OPEN or CLOSED")
		}
		m.Status = st
		changed = append(changed, "status")
	}
	if patch.StartDate != nil {
		m.StartDate = patch.StartDate
		changed = append(changed, "start_date")
	}
	if patch.EndDate != nil {
		m.EndDate = patch.EndDate
		changed = append(changed, "end_date")
	}
	if len(changed) == 0 {
		return m, nil
	}
	m.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, "mission.updated", agencyID, "mission", m.ID, actorID, events.EventPayload{"fields": changed}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// activeParticipant reports whether a participant still awaits a candidate
// or client answer.
func activeParticipant(p domain.Participant) bool {
	if p.Decided() {
		return false
	}
	return p.OutreachStatus == domain.OutreachSent || p.OutreachStatus == domain.OutreachAccepted
}

// DeleteMission removes a mission with its pipeline. It is refused while any
// participant is still active.
func (e Engine) DeleteMission(ctx context.Context, agencyID, missionID, actorID string) error {
	pl, err := e.Repo.GetPipelineByMission(ctx, nil, agencyID, missionID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err == nil {
		unlock := e.lockPipeline(pl.ID)
		defer unlock()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetMission(ctx, tx, agencyID, missionID); err != nil {
		return notFound("mission", missionID, err)
	}
	if pl.ID != "" {
		parts, err := e.Repo.ListParticipants(ctx, tx, pl.ID)
		if err != nil {
			return err
		}
		active := 0
		for _, p := range parts {
			if activeParticipant(p) {
				active++
			}
		}
		if active > 0 {
			return conflictf("mission %s has %d active participants", missionID, active)
		}
	}
	if err := e.Repo.DeleteMission(ctx, tx, agencyID, missionID); err != nil {
		return notFound("mission", missionID, err)
	}
	if err := e.Events.Append(ctx, tx, "mission.deleted", agencyID, "mission", missionID, actorID, events.EventPayload{"pipeline_id": pl.ID}); err != nil {
		return err
	}
	return tx.Commit()
}

// MissionDetail is a mission with its pipeline.
type MissionDetail struct {
	Mission  domain.Mission  `json:"mission"`
	Pipeline domain.Pipeline `json:"pipeline"`
	Client   domain.Client   `json:"client"`
}

func (e Engine) Mission(ctx context.Context, agencyID, missionID string) (MissionDetail, error) {
	m, err := e.Repo.GetMission(ctx, nil, agencyID, missionID)
	if err != nil {
		return MissionDetail{}, notFound("mission", missionID, err)
	}
	pl, err := e.Repo.GetPipelineByMission(ctx, nil, agencyID, missionID)
	if err != nil {
		return MissionDetail{}, notFound("pipeline", missionID, err)
	}
	c, err := e.Repo.GetClient(ctx, nil, agencyID, m.ClientID)
	if err != nil {
		return MissionDetail{}, notFound("client", m.ClientID, err)
	}
	return MissionDetail{Mission: m, Pipeline: pl, Client: c}, nil
}
