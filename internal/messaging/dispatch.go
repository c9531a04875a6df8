package messaging

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"staffline/internal/domain"
	"staffline/internal/logger"
)

const defaultConcurrency = 8

// Outbound is one message of a batch. Key identifies the recipient for the
// caller, typically a participant id.
type Outbound struct {
	Key     string
	Channel domain.Channel
	To      string
	Body    string
}

type Result struct {
	Outbound
	Delivery Delivery
	Err      error
}

// Report summarises a batch. Failed sends are counted, never returned as errors.
type Report struct {
	Attempted int      `json:"attempted"`
	Sent      int      `json:"sent"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Results   []Result `json:"-"`
}

// Dispatch fans the batch out with bounded concurrency. A failing recipient
// never stops the others.
func (g *Gateway) Dispatch(ctx context.Context, batch []Outbound) Report {
	log := logger.OrNop(g.Log)
	results := make([]Result, len(batch))
	limit := g.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, msg := range batch {
		eg.Go(func() error {
			d, err := g.Send(ctx, msg.Channel, msg.To, msg.Body)
			results[i] = Result{Outbound: msg, Delivery: d, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	rep := Report{Results: results}
	for _, res := range results {
		rep.Attempted++
		switch {
		case res.Err != nil:
			rep.Failed++
			log.Warn("outreach send failed",
				zap.String("key", res.Key),
				zap.String(logger.FieldChannel, string(res.Channel)),
				zap.String("to", logger.TruncateForLog(res.To, 20)),
				zap.Error(res.Err),
			)
		case res.Delivery.Skipped:
			rep.Skipped++
		default:
			rep.Sent++
		}
	}
	return rep
}
