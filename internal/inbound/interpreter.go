// Package inbound turns provider webhook messages into pipeline events.
package inbound

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"staffline/internal/logger"
	"staffline/internal/messaging"
)

// ErrMissingField is returned when the sender or the body is empty.
var ErrMissingField = errors.New("sender and body are required")

// Outcome kinds recorded for every inbound message.
const (
	OutcomeCandidate = "candidate"
	OutcomeClient    = "client"
	OutcomeUnmatched = "unmatched"
	OutcomeDuplicate = "duplicate"
)

// Message is what the provider posts.
type Message struct {
	MessageID string
	From      string
	Body      string
}

// Event is a classified message ready for the state machine.
type Event struct {
	AgencyID  string
	MessageID string
	From      string
	Phone     string
	Body      string
	Reply     Reply
}

// Outcome reports what an event did.
type Outcome struct {
	Kind          string `json:"kind"`
	Reply         string `json:"reply"`
	ParticipantID string `json:"participant_id,omitempty"`
	PipelineID    string `json:"pipeline_id,omitempty"`
	// Transition names the change applied, empty when the message changed nothing.
	Transition string `json:"transition,omitempty"`
}

// Applier applies an event to the pipelines, at most once per message id.
type Applier interface {
	ApplyInbound(ctx context.Context, ev Event) (Outcome, error)
}

type Interpreter struct {
	Applier     Applier
	CountryCode string
	Log         *zap.Logger
}

// Handle validates, normalises and classifies msg, then hands it to the
// state machine. Messages without a provider id get a generated one, so they
// are never deduplicated.
func (i *Interpreter) Handle(ctx context.Context, agencyID string, msg Message) (Outcome, error) {
	from := strings.TrimSpace(msg.From)
	body := strings.TrimSpace(msg.Body)
	if from == "" || body == "" {
		return Outcome{}, ErrMissingField
	}
	id := strings.TrimSpace(msg.MessageID)
	if id == "" {
		id = "local-" + uuid.NewString()
	}
	ev := Event{
		AgencyID:  agencyID,
		MessageID: id,
		From:      from,
		Phone:     messaging.NormalizePhone(from, i.CountryCode),
		Body:      body,
		Reply:     Classify(body),
	}
	out, err := i.Applier.ApplyInbound(ctx, ev)
	if err != nil {
		return Outcome{}, err
	}
	logger.WithFields(i.Log, logger.StringFields(
		logger.StringField{Key: logger.FieldAgency, Value: agencyID},
		logger.StringField{Key: logger.FieldPipeline, Value: out.PipelineID},
		logger.StringField{Key: logger.FieldParticipant, Value: out.ParticipantID},
	)...).Info("inbound message",
		zap.String("message_id", id),
		zap.String("from", logger.TruncateForLog(ev.Phone, 20)),
		zap.String("body", logger.TruncateForLog(body, 40)),
		zap.String("reply", ev.Reply.String()),
		zap.String("outcome", out.Kind),
		zap.String("transition", out.Transition),
	)
	return out, nil
}
