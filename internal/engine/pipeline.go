package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/logger"
	"staffline/internal/matching"
	"staffline/internal/messaging"
	"staffline/internal/quota"
	"staffline/internal/visibility"
)

// ParticipantDetail pairs a participant with its candidate, for agency views.
type ParticipantDetail struct {
	domain.Participant
	Candidate domain.Candidate `json:"candidate"`
}

// PipelineDetail is a pipeline as the agency sees it.
type PipelineDetail struct {
	Pipeline     domain.Pipeline     `json:"pipeline"`
	Mission      domain.Mission      `json:"mission"`
	Participants []ParticipantDetail `json:"participants"`
	Quota        quota.Result        `json:"quota"`
}

func (e Engine) Pipeline(ctx context.Context, agencyID, pipelineID string) (PipelineDetail, error) {
	pl, err := e.Repo.GetPipeline(ctx, nil, agencyID, pipelineID)
	if err != nil {
		return PipelineDetail{}, notFound("pipeline", pipelineID, err)
	}
	m, err := e.Repo.GetMission(ctx, nil, agencyID, pl.MissionID)
	if err != nil {
		return PipelineDetail{}, notFound("mission", pl.MissionID, err)
	}
	parts, err := e.Repo.ListParticipants(ctx, nil, pl.ID)
	if err != nil {
		return PipelineDetail{}, err
	}
	d := PipelineDetail{
		Pipeline:     pl,
		Mission:      m,
		Participants: make([]ParticipantDetail, 0, len(parts)),
		Quota:        quota.Evaluate(quota.CountValidated(parts), m.TargetOrDefault()),
	}
	for _, p := range parts {
		c, err := e.Repo.GetCandidate(ctx, nil, agencyID, p.CandidateID)
		if err != nil {
			return PipelineDetail{}, notFound("candidate", p.CandidateID, err)
		}
		d.Participants = append(d.Participants, ParticipantDetail{Participant: p, Candidate: c})
	}
	return d, nil
}

// LaunchResult reports what a launch admitted and sent.
type LaunchResult struct {
	Pipeline  domain.Pipeline      `json:"pipeline"`
	Admitted  []domain.Participant `json:"admitted"`
	AlreadyIn int                  `json:"already_in"`
	Requested int                  `json:"requested"`
	Fallback  bool                 `json:"fallback"`
	Delivery  messaging.Report     `json:"delivery"`
}

// Launch shortlists AVAILABLE candidates, admits them as participants and
// sends them the outreach. With no eligible candidate the pipeline goes to
// ALERT and nobody is admitted. Launching again only admits newcomers.
func (e Engine) Launch(ctx context.Context, agencyID, pipelineID, actorID string) (LaunchResult, error) {
	unlock := e.lockPipeline(pipelineID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	agency, err := e.Agency(ctx, agencyID)
	if err != nil {
		return LaunchResult{}, err
	}
	pl, err := e.Repo.GetPipeline(ctx, nil, agencyID, pipelineID)
	if err != nil {
		return LaunchResult{}, notFound("pipeline", pipelineID, err)
	}
	if err := ensurePipelineTransition(pl.Status, domain.PipelineRunning); err != nil {
		return LaunchResult{}, err
	}
	m, err := e.Repo.GetMission(ctx, nil, agencyID, pl.MissionID)
	if err != nil {
		return LaunchResult{}, notFound("mission", pl.MissionID, err)
	}
	pool, err := e.Repo.ListCandidates(ctx, agencyID, "")
	if err != nil {
		return LaunchResult{}, err
	}
	existing, err := e.Repo.ListParticipants(ctx, nil, pl.ID)
	if err != nil {
		return LaunchResult{}, err
	}
	in := make(map[string]bool, len(existing))
	for _, p := range existing {
		in[p.CandidateID] = true
	}

	log := logger.WithFields(e.log(), logger.PipelineFields(agencyID, pl.ID)...)
	sel, err := e.matcher().Select(ctx, m, pool, in)
	if errors.Is(err, matching.ErrNoEligibleCandidates) {
		pl, err = e.raiseAlert(ctx, agencyID, pl, actorID)
		if err != nil {
			return LaunchResult{}, err
		}
		log.Warn("no eligible candidates", zap.String("mission_id", m.ID))
		return LaunchResult{Pipeline: pl, Admitted: []domain.Participant{}}, nil
	}
	if err != nil {
		return LaunchResult{}, err
	}

	admitted, pl, err := e.admit(ctx, agencyID, pl, sel, actorID)
	if err != nil {
		return LaunchResult{}, err
	}
	unlock()
	locked = false

	res := LaunchResult{
		Pipeline:  pl,
		Admitted:  admitted,
		AlreadyIn: sel.AlreadyIn,
		Requested: sel.Requested,
		Fallback:  sel.Fallback,
	}
	res.Delivery = e.gateway().Dispatch(ctx, outreachBatch(agency.Name, m, admitted, sel.Candidates))
	log.Info("pipeline launched",
		zap.Int("admitted", len(admitted)),
		zap.Int("already_in", sel.AlreadyIn),
		zap.Int("sent", res.Delivery.Sent),
		zap.Int("failed", res.Delivery.Failed),
		zap.Bool("fallback", sel.Fallback),
	)
	return res, nil
}

func (e Engine) raiseAlert(ctx context.Context, agencyID string, pl domain.Pipeline, actorID string) (domain.Pipeline, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return pl, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	if err := e.Repo.UpdatePipelineStatus(ctx, tx, pl.ID, domain.PipelineAlert, now); err != nil {
		return pl, err
	}
	if err := e.Events.Append(ctx, tx, "pipeline.alert", agencyID, "pipeline", pl.ID, actorID,
		events.EventPayload{"from": pl.Status, "reason": matching.ErrNoEligibleCandidates.Error()}); err != nil {
		return pl, err
	}
	if err := tx.Commit(); err != nil {
		return pl, err
	}
	pl.Status = domain.PipelineAlert
	pl.UpdatedAt = now
	return pl, nil
}

func (e Engine) admit(ctx context.Context, agencyID string, pl domain.Pipeline, sel matching.Selection, actorID string) ([]domain.Participant, domain.Pipeline, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, pl, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	admitted := make([]domain.Participant, 0, len(sel.Candidates))
	for _, c := range sel.Candidates {
		p := domain.Participant{
			ID:             uuid.NewString(),
			PipelineID:     pl.ID,
			CandidateID:    c.ID,
			OutreachStatus: domain.OutreachSent,
			Visibility:     e.config().Visibility(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		ok, err := e.Repo.InsertParticipant(ctx, tx, p)
		if err != nil {
			return nil, pl, fmt.Errorf("insert participant: %w", err)
		}
		if !ok {
			continue
		}
		if err := e.Events.Append(ctx, tx, "participant.admitted", agencyID, "participant", p.ID, actorID,
			events.EventPayload{"pipeline_id": pl.ID, "candidate_id": c.ID}); err != nil {
			return nil, pl, err
		}
		admitted = append(admitted, p)
	}
	from := pl.Status
	if err := e.Repo.UpdatePipelineStatus(ctx, tx, pl.ID, domain.PipelineRunning, now); err != nil {
		return nil, pl, err
	}
	if err := e.Events.Append(ctx, tx, "pipeline.launched", agencyID, "pipeline", pl.ID, actorID, events.EventPayload{
		"from": from, "admitted": len(admitted), "already_in": sel.AlreadyIn, "fallback": sel.Fallback,
	}); err != nil {
		return nil, pl, err
	}
	if err := tx.Commit(); err != nil {
		return nil, pl, err
	}
	pl.Status = domain.PipelineRunning
	pl.UpdatedAt = now
	return admitted, pl, nil
}

// outreachBatch builds one message per admitted participant and mission
// channel. Candidates without a destination for a channel are left out.
func outreachBatch(agencyName string, m domain.Mission, admitted []domain.Participant, candidates []domain.Candidate) []messaging.Outbound {
	byID := make(map[string]domain.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	var batch []messaging.Outbound
	for _, p := range admitted {
		c := byID[p.CandidateID]
		for _, ch := range m.Channels {
			to := destination(ch, c.PhoneNorm, c.Email)
			if to == "" {
				continue
			}
			batch = append(batch, messaging.Outbound{
				Key:     p.ID,
				Channel: ch,
				To:      to,
				Body:    messaging.CandidateOutreach(ch, agencyName, m.Title),
			})
		}
	}
	return batch
}

func destination(ch domain.Channel, phone, email string) string {
	switch ch {
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return phone
	case domain.ChannelEmail:
		return email
	}
	return ""
}

// ProposeResult is the participant after proposal and the client notice sent.
type ProposeResult struct {
	Participant domain.Participant `json:"participant"`
	Pipeline    domain.Pipeline    `json:"pipeline"`
	Delivery    messaging.Report   `json:"delivery"`
}

// Propose shows a participant to the client and moves the pipeline to
// WAITING_CLIENT. Proposing the same participant again changes nothing and
// sends nothing.
func (e Engine) Propose(ctx context.Context, agencyID, participantID, actorID string) (ProposeResult, error) {
	pipelineID, err := e.pipelineOf(ctx, agencyID, participantID)
	if err != nil {
		return ProposeResult{}, err
	}
	s, eff, err := e.transition(ctx, agencyID, pipelineID, actorID, command{kind: cmdPropose, participantID: participantID})
	if err != nil {
		return ProposeResult{}, err
	}
	i, _ := s.participant(participantID)
	res := ProposeResult{Participant: s.participants[i], Pipeline: s.pipeline}
	if eff.proposed != nil {
		batch, err := e.proposalNotice(ctx, agencyID, s.mission, *eff.proposed)
		if err != nil {
			e.log().Warn("client notice not built", zap.String(logger.FieldParticipant, participantID), zap.Error(err))
		} else {
			res.Delivery = e.gateway().Dispatch(ctx, batch)
		}
	}
	return res, nil
}

// proposalNotice renders the proposed profile through the visibility gate and
// addresses it to the client on the mission's phone channels.
func (e Engine) proposalNotice(ctx context.Context, agencyID string, m domain.Mission, p domain.Participant) ([]messaging.Outbound, error) {
	agency, err := e.Agency(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	client, err := e.Repo.GetClient(ctx, nil, agencyID, m.ClientID)
	if err != nil {
		return nil, notFound("client", m.ClientID, err)
	}
	cand, err := e.Repo.GetCandidate(ctx, nil, agencyID, p.CandidateID)
	if err != nil {
		return nil, notFound("candidate", p.CandidateID, err)
	}
	profile := visibility.Project(p, cand, m).Summary()
	var batch []messaging.Outbound
	for _, ch := range m.Channels {
		to := destination(ch, client.PhoneNorm, client.Email)
		if to == "" {
			continue
		}
		batch = append(batch, messaging.Outbound{
			Key:     p.ID,
			Channel: ch,
			To:      to,
			Body:    messaging.ClientProposal(ch, agency.Name, m.Title, profile),
		})
	}
	return batch, nil
}

// Decision is a client's answer on a proposed participant.
type Decision struct {
	Validate bool
	Comment  string
	// Source names where the decision came from: agency, portal or message.
	Source string
}

// RespondResult is the participant after a decision and the quota that followed.
type RespondResult struct {
	Participant domain.Participant `json:"participant"`
	Pipeline    domain.Pipeline    `json:"pipeline"`
	Quota       *quota.Result      `json:"quota,omitempty"`
}

// ClientRespond validates or refuses a proposed participant. Validation
// re-evaluates the quota and completes the pipeline once it is reached.
func (e Engine) ClientRespond(ctx context.Context, agencyID, participantID string, d Decision, actorID string) (RespondResult, error) {
	pipelineID, err := e.pipelineOf(ctx, agencyID, participantID)
	if err != nil {
		return RespondResult{}, err
	}
	cmd := command{kind: cmdRefuse, participantID: participantID, comment: d.Comment, source: d.Source}
	if d.Validate {
		cmd.kind = cmdValidate
	}
	if cmd.source == "" {
		cmd.source = "agency"
	}
	s, eff, err := e.transition(ctx, agencyID, pipelineID, actorID, cmd)
	if err != nil {
		return RespondResult{}, err
	}
	i, _ := s.participant(participantID)
	return RespondResult{Participant: s.participants[i], Pipeline: s.pipeline, Quota: eff.quota}, nil
}

func (e Engine) SetVisibility(ctx context.Context, agencyID, participantID string, level domain.Visibility, actorID string) (domain.Participant, error) {
	pipelineID, err := e.pipelineOf(ctx, agencyID, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	s, _, err := e.transition(ctx, agencyID, pipelineID, actorID, command{kind: cmdSetVisibility, participantID: participantID, visibility: level})
	if err != nil {
		return domain.Participant{}, err
	}
	i, _ := s.participant(participantID)
	return s.participants[i], nil
}

// ExpireOutreach marks SENT participants admitted more than olderThan ago as
// NO_RESPONSE and returns how many changed.
func (e Engine) ExpireOutreach(ctx context.Context, agencyID, pipelineID string, olderThan time.Duration, actorID string) (int, error) {
	if olderThan <= 0 {
		return 0, invalidf("expiry age must be positive")
	}
	cutoff := e.now().Add(-olderThan)
	_, eff, err := e.transition(ctx, agencyID, pipelineID, actorID, command{kind: cmdExpire, cutoff: cutoff})
	if err != nil {
		return 0, err
	}
	return len(eff.changed), nil
}
