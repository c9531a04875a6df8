package engine

import (
	"time"

	"staffline/internal/domain"
	"staffline/internal/events"
	"staffline/internal/inbound"
	"staffline/internal/quota"
)

type commandKind int

const (
	cmdPropose commandKind = iota + 1
	cmdValidate
	cmdRefuse
	cmdCandidateReply
	cmdSetVisibility
	cmdExpire
)

// command is one request against a pipeline. Only the fields its kind needs
// are read.
type command struct {
	kind          commandKind
	participantID string
	reply         inbound.Reply
	response      string
	comment       string
	visibility    domain.Visibility
	cutoff        time.Time
	source        string
	at            string
}

// snapshot is a pipeline as read inside the transaction.
type snapshot struct {
	pipeline     domain.Pipeline
	mission      domain.Mission
	participants []domain.Participant
}

func (s snapshot) participant(id string) (int, bool) {
	for i, p := range s.participants {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

type pendingEvent struct {
	typ        string
	entityKind string
	entityID   string
	payload    events.EventPayload
}

// effect is what a command changes. An effect with no changes and no events
// is a no-op and is not written.
type effect struct {
	status     domain.PipelineStatus
	changed    []domain.Participant
	events     []pendingEvent
	transition string
	quota      *quota.Result
	// proposed is set when a participant is proposed for the first time and
	// the client must be notified.
	proposed *domain.Participant
}

func (f effect) noop() bool {
	return len(f.changed) == 0 && len(f.events) == 0
}

// step computes the effect of cmd on s. It never touches storage.
func step(s snapshot, cmd command) (effect, error) {
	eff := effect{status: s.pipeline.Status}
	switch cmd.kind {
	case cmdPropose:
		return stepPropose(s, cmd, eff)
	case cmdValidate:
		return stepValidate(s, cmd, eff)
	case cmdRefuse:
		return stepRefuse(s, cmd, eff)
	case cmdCandidateReply:
		return stepCandidateReply(s, cmd, eff)
	case cmdSetVisibility:
		return stepVisibility(s, cmd, eff)
	case cmdExpire:
		return stepExpire(s, cmd, eff)
	}
	return eff, invalidf("unknown command %d", cmd.kind)
}

func (s snapshot) mustParticipant(id string) (domain.Participant, error) {
	i, ok := s.participant(id)
	if !ok {
		return domain.Participant{}, &NotFoundError{Entity: "participant", ID: id}
	}
	return s.participants[i], nil
}

func stepPropose(s snapshot, cmd command, eff effect) (effect, error) {
	p, err := s.mustParticipant(cmd.participantID)
	if err != nil {
		return eff, err
	}
	if p.Decided() {
		return eff, conflictf("participant %s already decided by the client", p.ID)
	}
	if p.ProposedToClient {
		return eff, nil
	}
	if s.pipeline.Status != domain.PipelineWaitingClient {
		if err := ensurePipelineTransition(s.pipeline.Status, domain.PipelineWaitingClient); err != nil {
			return eff, err
		}
		eff.status = domain.PipelineWaitingClient
	}
	at := cmd.at
	p.ProposedToClient = true
	p.ProposedAt = &at
	p.UpdatedAt = cmd.at
	eff.changed = append(eff.changed, p)
	eff.proposed = &p
	eff.transition = "proposed"
	eff.events = append(eff.events, pendingEvent{
		typ: "participant.proposed", entityKind: "participant", entityID: p.ID,
		payload: events.EventPayload{"pipeline_id": s.pipeline.ID, "visibility": p.Visibility},
	})
	return eff, nil
}

func stepValidate(s snapshot, cmd command, eff effect) (effect, error) {
	p, err := s.mustParticipant(cmd.participantID)
	if err != nil {
		return eff, err
	}
	if !p.ProposedToClient {
		return eff, &TransitionError{Entity: "participant", From: "NOT_PROPOSED", To: "VALIDATED"}
	}
	if p.ClientRefused {
		return eff, conflictf("participant %s was refused by the client", p.ID)
	}
	if p.ClientValidated {
		return eff, nil
	}
	p.ClientValidated = true
	p.Selected = true
	if cmd.comment != "" {
		c := cmd.comment
		p.ClientComment = &c
	}
	p.UpdatedAt = cmd.at
	eff.changed = append(eff.changed, p)
	eff.transition = "validated"
	eff.events = append(eff.events, pendingEvent{
		typ: "participant.validated", entityKind: "participant", entityID: p.ID,
		payload: events.EventPayload{"pipeline_id": s.pipeline.ID, "source": cmd.source},
	})

	after := make([]domain.Participant, len(s.participants))
	copy(after, s.participants)
	i, _ := s.participant(p.ID)
	after[i] = p
	res := quota.Evaluate(quota.CountValidated(after), s.mission.TargetOrDefault())
	eff.quota = &res
	if res.Completed && s.pipeline.Status != domain.PipelineCompleted {
		if err := ensurePipelineTransition(s.pipeline.Status, domain.PipelineCompleted); err != nil {
			return eff, err
		}
		eff.status = domain.PipelineCompleted
		eff.events = append(eff.events, pendingEvent{
			typ: "pipeline.completed", entityKind: "pipeline", entityID: s.pipeline.ID,
			payload: events.EventPayload{"validated": res.Validated, "target": res.Target},
		})
	}
	return eff, nil
}

func stepRefuse(s snapshot, cmd command, eff effect) (effect, error) {
	p, err := s.mustParticipant(cmd.participantID)
	if err != nil {
		return eff, err
	}
	if !p.ProposedToClient {
		return eff, &TransitionError{Entity: "participant", From: "NOT_PROPOSED", To: "REFUSED"}
	}
	if p.ClientValidated {
		return eff, conflictf("participant %s was validated by the client", p.ID)
	}
	if p.ClientRefused {
		return eff, nil
	}
	p.ClientRefused = true
	p.Selected = false
	if cmd.comment != "" {
		c := cmd.comment
		p.ClientComment = &c
	}
	p.UpdatedAt = cmd.at
	eff.changed = append(eff.changed, p)
	eff.transition = "refused"
	eff.events = append(eff.events, pendingEvent{
		typ: "participant.refused", entityKind: "participant", entityID: p.ID,
		payload: events.EventPayload{"pipeline_id": s.pipeline.ID, "source": cmd.source},
	})
	return eff, nil
}

// stepCandidateReply records a candidate's answer to the outreach. Replies
// that are neither yes nor no are stored without changing the status.
func stepCandidateReply(s snapshot, cmd command, eff effect) (effect, error) {
	p, err := s.mustParticipant(cmd.participantID)
	if err != nil {
		return eff, err
	}
	if p.OutreachStatus != domain.OutreachSent {
		return eff, nil
	}
	from := p.OutreachStatus
	switch cmd.reply {
	case inbound.ReplyAffirmative:
		p.OutreachStatus = domain.OutreachAccepted
	case inbound.ReplyNegative:
		p.OutreachStatus = domain.OutreachDeclined
	}
	resp := cmd.response
	p.LastResponse = &resp
	p.UpdatedAt = cmd.at
	eff.changed = append(eff.changed, p)
	if p.OutreachStatus != from {
		eff.transition = string(p.OutreachStatus)
	}
	eff.events = append(eff.events, pendingEvent{
		typ: "participant.replied", entityKind: "participant", entityID: p.ID,
		payload: events.EventPayload{"pipeline_id": s.pipeline.ID, "reply": cmd.reply.String(), "status": p.OutreachStatus},
	})
	return eff, nil
}

func stepVisibility(s snapshot, cmd command, eff effect) (effect, error) {
	p, err := s.mustParticipant(cmd.participantID)
	if err != nil {
		return eff, err
	}
	if _, ok := domain.ParseVisibility(string(cmd.visibility)); !ok {
		return eff, invalidf("unknown visibility %q", cmd.visibility)
	}
	if p.Visibility == cmd.visibility {
		return eff, nil
	}
	from := p.Visibility
	p.Visibility = cmd.visibility
	p.UpdatedAt = cmd.at
	eff.changed = append(eff.changed, p)
	eff.transition = "visibility"
	eff.events = append(eff.events, pendingEvent{
		typ: "participant.visibility", entityKind: "participant", entityID: p.ID,
		payload: events.EventPayload{"from": from, "to": p.Visibility},
	})
	return eff, nil
}

// stepExpire moves SENT participants admitted before the cutoff to NO_RESPONSE.
func stepExpire(s snapshot, cmd command, eff effect) (effect, error) {
	for _, p := range s.participants {
		if p.OutreachStatus != domain.OutreachSent {
			continue
		}
		created, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil || !created.Before(cmd.cutoff) {
			continue
		}
		p.OutreachStatus = domain.OutreachNoResponse
		p.UpdatedAt = cmd.at
		eff.changed = append(eff.changed, p)
		eff.events = append(eff.events, pendingEvent{
			typ: "participant.no_response", entityKind: "participant", entityID: p.ID,
			payload: events.EventPayload{"pipeline_id": s.pipeline.ID},
		})
	}
	if len(eff.changed) > 0 {
		eff.transition = string(domain.OutreachNoResponse)
	}
	return eff, nil
}
