package engine

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/inbound"
	"staffline/internal/logger"
	"staffline/internal/repo"
)

const maxResolveAttempts = 3

var errTargetMoved = errors.New("inbound target changed while locking")

// target is who a message resolves to.
type target struct {
	kind        string
	pipelineID  string
	participant string
}

// resolveTarget finds the participant a message is about. A candidate with a
// SENT participant wins over a client with the same phone. A client message
// targets the most recently proposed undecided participant of the client's
// most recently updated WAITING_CLIENT pipeline.
func (e Engine) resolveTarget(ctx context.Context, tx *sql.Tx, agencyID, phone string) (target, error) {
	p, err := e.Repo.LatestSentParticipantByPhone(ctx, tx, agencyID, phone)
	if err == nil {
		return target{kind: inbound.OutcomeCandidate, pipelineID: p.PipelineID, participant: p.ID}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return target{}, err
	}
	clients, err := e.Repo.FindClientsByPhone(ctx, tx, agencyID, phone)
	if err != nil {
		return target{}, err
	}
	var fallback *target
	for _, c := range clients {
		pls, err := e.Repo.WaitingClientPipelines(ctx, tx, agencyID, c.ID)
		if err != nil {
			return target{}, err
		}
		for _, pl := range pls {
			parts, err := e.Repo.ListParticipants(ctx, tx, pl.ID)
			if err != nil {
				return target{}, err
			}
			if id := latestPending(parts); id != "" {
				return target{kind: inbound.OutcomeClient, pipelineID: pl.ID, participant: id}, nil
			}
			if fallback == nil {
				fallback = &target{kind: inbound.OutcomeClient, pipelineID: pl.ID}
			}
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return target{kind: inbound.OutcomeUnmatched}, nil
}

// latestPending returns the most recently proposed participant the client has
// not decided on yet.
func latestPending(parts []domain.Participant) string {
	best := ""
	bestAt := ""
	for _, p := range parts {
		if !p.ProposedToClient || p.Decided() || p.ProposedAt == nil {
			continue
		}
		if best == "" || *p.ProposedAt >= bestAt {
			best, bestAt = p.ID, *p.ProposedAt
		}
	}
	return best
}

// ApplyInbound applies a classified message at most once per message id. The
// message is recorded in the same transaction as the transition it triggers,
// so a redelivery finds it and changes nothing.
func (e Engine) ApplyInbound(ctx context.Context, ev inbound.Event) (inbound.Outcome, error) {
	if _, err := e.Repo.GetAgency(ctx, ev.AgencyID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return inbound.Outcome{Kind: inbound.OutcomeUnmatched, Reply: ev.Reply.String()}, nil
		}
		return inbound.Outcome{}, err
	}
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		t, err := e.resolveTarget(ctx, nil, ev.AgencyID, ev.Phone)
		if err != nil {
			return inbound.Outcome{}, err
		}
		out, err := e.applyInboundTo(ctx, ev, t)
		if errors.Is(err, errTargetMoved) {
			continue
		}
		return out, err
	}
	return inbound.Outcome{}, errTargetMoved
}

func (e Engine) applyInboundTo(ctx context.Context, ev inbound.Event, locked target) (inbound.Outcome, error) {
	if locked.pipelineID != "" {
		unlock := e.lockPipeline(locked.pipelineID)
		defer unlock()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return inbound.Outcome{}, err
	}
	defer tx.Rollback()

	out := inbound.Outcome{Reply: ev.Reply.String()}
	recorded, err := e.Repo.RecordInbound(ctx, tx, domain.InboundMessage{
		MessageID:  ev.MessageID,
		AgencyID:   ev.AgencyID,
		Sender:     ev.From,
		Body:       ev.Body,
		Outcome:    "received",
		ReceivedAt: e.timestamp(),
	})
	if err != nil {
		return inbound.Outcome{}, err
	}
	if !recorded {
		out.Kind = inbound.OutcomeDuplicate
		return out, nil
	}

	t, err := e.resolveTarget(ctx, tx, ev.AgencyID, ev.Phone)
	if err != nil {
		return inbound.Outcome{}, err
	}
	if t.pipelineID != locked.pipelineID {
		return inbound.Outcome{}, errTargetMoved
	}
	out.Kind = t.kind
	out.PipelineID = t.pipelineID
	out.ParticipantID = t.participant

	actor := "inbound:" + ev.Phone
	var cmd *command
	switch {
	case t.kind == inbound.OutcomeCandidate:
		cmd = &command{kind: cmdCandidateReply, participantID: t.participant, reply: ev.Reply, response: ev.Body}
	case t.kind == inbound.OutcomeClient && t.participant != "" && ev.Reply == inbound.ReplyAffirmative:
		cmd = &command{kind: cmdValidate, participantID: t.participant, source: "message"}
	}
	if cmd != nil {
		cmd.at = e.timestamp()
		s, err := e.loadSnapshot(ctx, tx, ev.AgencyID, t.pipelineID)
		if err != nil {
			return inbound.Outcome{}, err
		}
		eff, err := step(s, *cmd)
		if err != nil {
			return inbound.Outcome{}, err
		}
		if _, err := e.applyEffect(ctx, tx, ev.AgencyID, actor, s, eff); err != nil {
			return inbound.Outcome{}, err
		}
		out.Transition = eff.transition
	}

	if err := e.Repo.SetInboundOutcome(ctx, tx, ev.MessageID, out.Kind); err != nil {
		return inbound.Outcome{}, err
	}
	if err := e.Events.Append(ctx, tx, "inbound.received", ev.AgencyID, "inbound", ev.MessageID, actor, events.EventPayload{
		"outcome": out.Kind, "reply": out.Reply, "participant_id": out.ParticipantID, "transition": out.Transition,
	}); err != nil {
		return inbound.Outcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return inbound.Outcome{}, err
	}
	if t.kind == inbound.OutcomeClient && out.Transition == "" {
		logger.WithFields(e.log(), logger.PipelineFields(ev.AgencyID, t.pipelineID)...).Info("client reply without transition",
			zap.String("reply", out.Reply))
	}
	return out, nil
}
