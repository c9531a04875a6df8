package scoring

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"staffline/internal/domain"
)

type stubGenerator struct {
	response   string
	err        error
	block      bool
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string { return "stub-model" }

type panickingGenerator struct{}

func (panickingGenerator) GenerateContent(context.Context, string) (string, error) {
	panic("runtime error: invalid memory address or nil pointer dereference")
}

func (panickingGenerator) Model() string { return "broken" }

func pool(n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			ID:        fmt.Sprintf("c%d", i+1),
			FirstName: fmt.Sprintf("First%d", i+1),
			LastName:  "Last",
			Skills:    []string{"CACES"},
		}
	}
	return out
}

func shortlistReq(n, size int) ShortlistRequest {
	return ShortlistRequest{
		Mission:    domain.Mission{Title: "Cariste", Location: "Lyon", Target: 2, RequiredSkills: []string{"CACES 3"}},
		Candidates: pool(n),
		Size:       size,
	}
}

func TestShortlistUsesSelection(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"selected\": [3, 1, 3, 9, 0, 2]}\n```"}
	a := New(gen, "stub", time.Second, zap.NewNop())

	got := a.Shortlist(context.Background(), shortlistReq(5, 2))
	if got.Fallback {
		t.Fatalf("unexpected fallback: %s", got.Reason)
	}
	if !reflect.DeepEqual(got.Indices, []int{2, 0}) {
		t.Fatalf("unexpected indices %v", got.Indices)
	}
	for _, want := range []string{"1. First1 Last", "Mission: \"Cariste\"", "Sélectionne les 2 meilleurs"} {
		if !strings.Contains(gen.lastPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gen.lastPrompt)
		}
	}
}

func TestShortlistAcceptsBareArrayAndProse(t *testing.T) {
	a := New(&stubGenerator{response: "Voici ma sélection : [2, 4] merci"}, "stub", time.Second, nil)
	got := a.Shortlist(context.Background(), shortlistReq(4, 4))
	if got.Fallback || !reflect.DeepEqual(got.Indices, []int{1, 3}) {
		t.Fatalf("unexpected shortlist %+v", got)
	}
}

func TestShortlistFallback(t *testing.T) {
	cases := map[string]*stubGenerator{
		"invalid json":    {response: "not json at all"},
		"wrong shape":     {response: `{"picked":[1]}`},
		"out of range":    {response: `{"selected":[7,8]}`},
		"empty selection": {response: `{"selected":[]}`},
		"provider error":  {err: errors.New("quota exceeded")},
		"timeout":         {block: true},
	}
	for name, gen := range cases {
		core, observed := observer.New(zapcore.WarnLevel)
		a := New(gen, "stub", 20*time.Millisecond, zap.New(core))
		got := a.Shortlist(context.Background(), shortlistReq(5, 4))
		if !got.Fallback {
			t.Fatalf("%s: expected fallback", name)
		}
		if !reflect.DeepEqual(got.Indices, []int{0, 1, 2, 3}) {
			t.Fatalf("%s: expected first 4 in pool order, got %v", name, got.Indices)
		}
		if observed.Len() != 1 {
			t.Fatalf("%s: expected one warning, got %d", name, observed.Len())
		}
	}
}

func TestShortlistAcceptsTrailingProse(t *testing.T) {
	a := New(&stubGenerator{response: "{\"selected\":[2]}\nVoici ma sélection."}, "stub", time.Second, nil)
	got := a.Shortlist(context.Background(), shortlistReq(3, 2))
	if got.Fallback || !reflect.DeepEqual(got.Indices, []int{1}) {
		t.Fatalf("expected the selection despite trailing prose, got %+v", got)
	}
}

func TestShortlistRecoversFromPanickingCapability(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	a := New(panickingGenerator{}, "broken", time.Second, zap.New(core))
	got := a.Shortlist(context.Background(), shortlistReq(4, 2))
	if !got.Fallback || !reflect.DeepEqual(got.Indices, []int{0, 1}) {
		t.Fatalf("expected pool-order fallback, got %+v", got)
	}
	if observed.Len() != 1 {
		t.Fatalf("expected one warning, got %d", observed.Len())
	}
}

func TestShortlistWithoutGenerator(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	a := New(nil, "none", 0, zap.New(core))
	got := a.Shortlist(context.Background(), shortlistReq(3, 6))
	if !got.Fallback || !reflect.DeepEqual(got.Indices, []int{0, 1, 2}) {
		t.Fatalf("expected whole pool in order, got %+v", got)
	}
	if observed.Len() != 0 {
		t.Fatalf("missing capability is not a warning")
	}
	if a.Enabled() {
		t.Fatalf("adapter without generator must report disabled")
	}
}

func TestShortlistEmptyPool(t *testing.T) {
	gen := &stubGenerator{response: `{"selected":[1]}`}
	got := New(gen, "stub", time.Second, nil).Shortlist(context.Background(), shortlistReq(0, 2))
	if len(got.Indices) != 0 || got.Fallback {
		t.Fatalf("unexpected shortlist %+v", got)
	}
	if gen.lastPrompt != "" {
		t.Fatalf("empty pool must not call the capability")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         `[1,2]`,
		"  {\"a\":1}  ":           `{"a":1}`,
		"Résultat: {\"a\":1}.":    `{"a":1}`,

		"{\"selected\":[2]}\nVoici ma sélection.": `{"selected":[2]}`,
		"[1,2]\n\nJ'ai retenu [1] et [2].":          `[1,2]`,
		"nothing here":            "nothing here",
	}
	for in, want := range cases {
		if got := extractJSON(in); got != want {
			t.Fatalf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}
