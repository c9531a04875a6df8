package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClassify(t *testing.T) {
	cases := map[string]Reply{
		"OUI":        ReplyAffirmative,
		" oui ":      ReplyAffirmative,
		"o":          ReplyAffirmative,
		"Yes":        ReplyAffirmative,
		"y":          ReplyAffirmative,
		"1":          ReplyAffirmative,
		"ok":         ReplyAffirmative,
		"NON":        ReplyNegative,
		"non":        ReplyNegative,
		"n":          ReplyNegative,
		"No":         ReplyNegative,
		"0":          ReplyNegative,
		"non merci":  ReplyNegative,
		"NON  MERCI": ReplyNegative,
		"oui merci":  ReplyUnknown,
		"peut-être":  ReplyUnknown,
		"":           ReplyUnknown,
		"2":          ReplyUnknown,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", in, got, want)
		}
	}
}

type recordingApplier struct {
	events []Event
	out    Outcome
	err    error
}

func (r *recordingApplier) ApplyInbound(_ context.Context, ev Event) (Outcome, error) {
	r.events = append(r.events, ev)
	return r.out, r.err
}

func TestHandleNormalisesAndClassifies(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	app := &recordingApplier{out: Outcome{Kind: OutcomeCandidate, ParticipantID: "p1", PipelineID: "pl1", Transition: "ACCEPTED"}}
	in := &Interpreter{Applier: app, CountryCode: "33", Log: zap.New(core)}

	out, err := in.Handle(context.Background(), "acme", Message{MessageID: "SM1", From: "whatsapp:+33 6 12 34 56 78", Body: " Oui "})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.ParticipantID != "p1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	ev := app.events[0]
	if ev.Phone != "+33612345678" || ev.Reply != ReplyAffirmative || ev.Body != "Oui" || ev.AgencyID != "acme" || ev.MessageID != "SM1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	entries := observed.FilterMessage("inbound message").All()
	if len(entries) != 1 || entries[0].ContextMap()["pipeline_id"] != "pl1" {
		t.Fatalf("expected one log entry with pipeline id, got %v", entries)
	}
}

func TestHandleRejectsMissingFields(t *testing.T) {
	in := &Interpreter{Applier: &recordingApplier{}}
	for _, msg := range []Message{{From: "+33600000000"}, {Body: "OUI"}, {From: " ", Body: " "}} {
		if _, err := in.Handle(context.Background(), "acme", msg); !errors.Is(err, ErrMissingField) {
			t.Fatalf("expected ErrMissingField for %+v, got %v", msg, err)
		}
	}
}

func TestHandleGeneratesMessageID(t *testing.T) {
	app := &recordingApplier{out: Outcome{Kind: OutcomeUnmatched}}
	in := &Interpreter{Applier: app}
	for i := 0; i < 2; i++ {
		if _, err := in.Handle(context.Background(), "acme", Message{From: "+33600000000", Body: "OUI"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	a, b := app.events[0].MessageID, app.events[1].MessageID
	if !strings.HasPrefix(a, "local-") || a == b {
		t.Fatalf("expected distinct generated ids, got %q %q", a, b)
	}
}

func TestHandlePropagatesApplierError(t *testing.T) {
	in := &Interpreter{Applier: &recordingApplier{err: errors.New("db down")}}
	if _, err := in.Handle(context.Background(), "acme", Message{From: "+33600000000", Body: "NON"}); err == nil {
		t.Fatalf("expected error")
	}
}
