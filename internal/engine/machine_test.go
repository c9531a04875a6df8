package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"staffline/internal/domain"
	"staffline/internal/inbound"
)

func snap(status domain.PipelineStatus, target int, parts ...domain.Participant) snapshot {
	return snapshot{
		pipeline:     domain.Pipeline{ID: "pl-1", Status: status},
		mission:      domain.Mission{ID: "m-1", Target: target},
		participants: parts,
	}
}

func proposed(id string) domain.Participant {
	at := "2024-03-01T08:00:00Z"
	return domain.Participant{ID: id, OutreachStatus: domain.OutreachAccepted, ProposedToClient: true, ProposedAt: &at, Visibility: domain.VisibilityPartial}
}

func TestStepValidateReachesQuota(t *testing.T) {
	s := snap(domain.PipelineWaitingClient, 0, proposed("a"), proposed("b"))
	eff, err := step(s, command{kind: cmdValidate, participantID: "a", at: "t"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if eff.status != domain.PipelineCompleted || eff.quota == nil || eff.quota.Target != 1 {
		t.Fatalf("target 0 counts as 1: %+v", eff)
	}
	if len(eff.events) != 2 || eff.events[1].typ != "pipeline.completed" {
		t.Fatalf("unexpected events %+v", eff.events)
	}
}

func TestStepIdempotentCommands(t *testing.T) {
	v := proposed("a")
	v.ClientValidated = true
	s := snap(domain.PipelineCompleted, 1, v)
	for _, cmd := range []command{
		{kind: cmdValidate, participantID: "a"},
		{kind: cmdPropose, participantID: "b"},
	} {
		eff, err := step(s, cmd)
		if cmd.participantID == "b" {
			var nf *NotFoundError
			if !errors.As(err, &nf) {
				t.Fatalf("expected not found, got %v", err)
			}
			continue
		}
		if err != nil || !eff.noop() {
			t.Fatalf("expected no-op, got %+v %v", eff, err)
		}
	}
}

func TestStepCandidateReplyOnlyWhileSent(t *testing.T) {
	p := domain.Participant{ID: "a", OutreachStatus: domain.OutreachSent}
	s := snap(domain.PipelineRunning, 1, p)
	eff, err := step(s, command{kind: cmdCandidateReply, participantID: "a", reply: inbound.ReplyAffirmative, response: "OUI"})
	if err != nil || eff.changed[0].OutreachStatus != domain.OutreachAccepted || eff.status != domain.PipelineRunning {
		t.Fatalf("unexpected effect %+v %v", eff, err)
	}
	s.participants[0].OutreachStatus = domain.OutreachDeclined
	eff, err = step(s, command{kind: cmdCandidateReply, participantID: "a", reply: inbound.ReplyAffirmative, response: "OUI"})
	if err != nil || !eff.noop() {
		t.Fatalf("answered participant must not change: %+v %v", eff, err)
	}
}

func TestStepExpireUsesCutoff(t *testing.T) {
	old := domain.Participant{ID: "old", OutreachStatus: domain.OutreachSent, CreatedAt: "2024-03-01T08:00:00Z"}
	fresh := domain.Participant{ID: "fresh", OutreachStatus: domain.OutreachSent, CreatedAt: "2024-03-03T08:00:00Z"}
	done := domain.Participant{ID: "done", OutreachStatus: domain.OutreachAccepted, CreatedAt: "2024-03-01T08:00:00Z"}
	cutoff := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	eff, err := step(snap(domain.PipelineRunning, 1, old, fresh, done), command{kind: cmdExpire, cutoff: cutoff})
	if err != nil || len(eff.changed) != 1 || eff.changed[0].ID != "old" || eff.changed[0].OutreachStatus != domain.OutreachNoResponse {
		t.Fatalf("unexpected expiry %+v %v", eff, err)
	}
}

func TestEnsurePipelineTransition(t *testing.T) {
	cases := []struct {
		from, to domain.PipelineStatus
		ok       bool
	}{
		{domain.PipelineWaitingAgency, domain.PipelineRunning, true},
		{domain.PipelineWaitingAgency, domain.PipelineAlert, true},
		{domain.PipelineAlert, domain.PipelineRunning, true},
		{domain.PipelineRunning, domain.PipelineWaitingClient, true},
		{domain.PipelineWaitingClient, domain.PipelineCompleted, true},
		{domain.PipelineWaitingClient, domain.PipelineRunning, false},
		{domain.PipelineWaitingAgency, domain.PipelineCompleted, false},
		{domain.PipelineCompleted, domain.PipelineWaitingClient, false},
	}
	for _, tc := range cases {
		err := ensurePipelineTransition(tc.from, tc.to)
		if (err == nil) != tc.ok {
			t.Fatalf("%s -> %s: ok=%v err=%v", tc.from, tc.to, tc.ok, err)
		}
	}
}

func TestPipelineLocksSerialiseAndRelease(t *testing.T) {
	l := newPipelineLocks()
	var mu sync.Mutex
	inside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("pl-1")
			mu.Lock()
			inside++
			if inside != 1 {
				mu.Unlock()
				t.Errorf("two holders of the same pipeline lock")
				unlock()
				return
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if n := l.size(); n != 0 {
		t.Fatalf("expected released locks to be dropped, %d left", n)
	}
}
