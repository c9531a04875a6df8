package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"staffline/internal/config"
	"staffline/internal/engine"
)

type captured struct {
	header http.Header
	body   webhookEvent
}

func TestWebhookDispatcherDeliversNewMatchingEvents(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	var mu sync.Mutex
	var got []captured
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		mu.Lock()
		got = append(got, captured{header: r.Header.Clone(), body: evt})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	e := srv.Engine
	cfg := *e.Config
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"candidate.created"}, Secret: "s3cret"}}
	e.Config = &cfg
	ctx := context.Background()

	d := newWebhookDispatcher(e, testAgency, nil)
	// The first pass only positions the cursor after existing events.
	d.dispatchAll(ctx)

	if _, err := e.CreateCandidate(ctx, testAgency, engine.CandidateInput{FirstName: "Karim", Phone: "0611111111"}, "tester"); err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	if _, err := e.CreateClient(ctx, testAgency, engine.ClientInput{Name: "Entrepôt Sud"}, "tester"); err != nil {
		t.Fatalf("create client: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(got))
	}
	if got[0].body.Type != "candidate.created" || got[0].body.AgencyID != testAgency {
		t.Fatalf("unexpected event %+v", got[0].body)
	}
	if got[0].header.Get("X-Staffline-Event") != "candidate.created" {
		t.Fatalf("missing event header: %v", got[0].header)
	}
	if got[0].header.Get("X-Staffline-Secret") != "s3cret" || got[0].header.Get("X-Staffline-Agency") != testAgency {
		t.Fatalf("missing secret or agency header: %v", got[0].header)
	}
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	if !all.match("pipeline.completed") {
		t.Fatalf("empty filter should match everything")
	}
	blank := newEventFilter([]string{" ", ""})
	if !blank.match("pipeline.alert") {
		t.Fatalf("blank entries should behave as no filter")
	}
	some := newEventFilter([]string{"pipeline.completed", " pipeline.alert "})
	if !some.match("pipeline.alert") || some.match("participant.proposed") {
		t.Fatalf("filter mismatch")
	}
}
