// Package scoring asks an external ranking capability for shortlists and
// rubric scores, validates what comes back, and falls back to pool order when
// the capability is missing, slow or wrong.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"staffline/internal/domain"
	"staffline/internal/logger"
)

// ErrNoGenerator is reported when no ranking capability is configured.
var ErrNoGenerator = errors.New("no ranking capability configured")

// Generator is the external ranking capability: one prompt in, raw text out.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

const (
	defaultTimeout = 20 * time.Second
	maxLogLen      = 200
)

type Adapter struct {
	gen      Generator
	provider string
	timeout  time.Duration
	log      *zap.Logger
}

// New builds an adapter. gen may be nil, in which case every call takes the
// fallback path.
func New(gen Generator, provider string, timeout time.Duration, log *zap.Logger) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	model := ""
	if gen != nil {
		model = gen.Model()
	}
	return &Adapter{
		gen:      gen,
		provider: provider,
		timeout:  timeout,
		log:      logger.WithFields(log, logger.ProviderFields(provider, model)...),
	}
}

// Enabled reports whether a ranking capability is configured.
func (a *Adapter) Enabled() bool {
	return a != nil && a.gen != nil
}

func (a *Adapter) generate(ctx context.Context, prompt string) (raw string, err error) {
	if !a.Enabled() {
		return "", ErrNoGenerator
	}
	defer func() {
		if r := recover(); r != nil {
			raw, err = "", fmt.Errorf("ranking capability panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.log.Debug("ranking request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, maxLogLen)),
	)
	raw, err = a.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return "", err
	}
	a.log.Debug("ranking response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, maxLogLen)),
	)
	return raw, nil
}

// ShortlistRequest asks for the best Size candidates of the pool for a mission.
type ShortlistRequest struct {
	Mission    domain.Mission
	Candidates []domain.Candidate
	Size       int
}

// Shortlist holds indices into the request's candidate pool, best first.
type Shortlist struct {
	Indices  []int
	Fallback bool
	Reason   string
}

// Shortlist never fails: any capability error, timeout or malformed answer
// yields the first N candidates in pool order, N = min(Size, pool size).
func (a *Adapter) Shortlist(ctx context.Context, req ShortlistRequest) Shortlist {
	size := min(req.Size, len(req.Candidates))
	if size <= 0 {
		return Shortlist{Indices: []int{}}
	}
	raw, err := a.generate(ctx, buildShortlistPrompt(req, size))
	if err == nil {
		var indices []int
		indices, err = parseSelection(raw, len(req.Candidates), size)
		if err == nil {
			return Shortlist{Indices: indices}
		}
	}
	if !errors.Is(err, ErrNoGenerator) {
		a.log.Warn("shortlist fell back to pool order", zap.Error(err))
	}
	return Shortlist{Indices: FirstN(size), Fallback: true, Reason: err.Error()}
}

// FirstN is the deterministic fallback shortlist.
func FirstN(n int) []int {
	out := make([]int, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, i)
	}
	return out
}

// parseSelection reads {"selected":[1,3]} (or a bare array) of 1-based
// positions and returns distinct 0-based indices, capped at size.
func parseSelection(raw string, poolSize, size int) ([]int, error) {
	cleaned := extractJSON(raw)
	var positions []int
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &positions); err != nil {
			return nil, fmt.Errorf("parse selection: %w", err)
		}
	} else {
		var payload struct {
			Selected *[]int `json:"selected"`
		}
		if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
			return nil, fmt.Errorf("parse selection: %w", err)
		}
		if payload.Selected == nil {
			return nil, errors.New("parse selection: missing selected field")
		}
		positions = *payload.Selected
	}

	seen := make(map[int]bool, len(positions))
	out := make([]int, 0, size)
	for _, pos := range positions {
		if pos < 1 || pos > poolSize || seen[pos] {
			continue
		}
		seen[pos] = true
		out = append(out, pos-1)
		if len(out) == size {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("selection holds no usable candidate")
	}
	return out, nil
}

// extractJSON strips markdown fences and any prose around the JSON payload.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))
	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return raw
	}
	// The first complete value wins; anything after it is commentary.
	var first json.RawMessage
	if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&first); err == nil {
		return string(first)
	}
	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(raw, closer)
	if end <= start {
		return raw
	}
	return raw[start : end+1]
}
