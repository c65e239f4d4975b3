package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// counters accumulates unit outcomes across the phases of a run.
type counters struct {
	processed atomic.Int64
	failed    atomic.Int64
	onUnit    func(unit, id string, err error)
}

func (c *counters) done(unit, id string, err error) {
	if err != nil {
		c.failed.Add(1)
	} else {
		c.processed.Add(1)
	}
	if c.onUnit != nil {
		c.onUnit(unit, id, err)
	}
}

// fill copies the counts into r and derives its final state.
func (c *counters) fill(r *RunResult) {
	r.Processed = int(c.processed.Load())
	r.Failed = int(c.failed.Load())
	r.State = StateCompleted
	if r.Failed > 0 {
		r.State = StateCompletedWithErrors
	}
}

// fanOut runs fn once per id with at most limit in flight. A unit error or
// panic is logged with the unit id and counted; it never stops the others.
func fanOut(ctx context.Context, logger *zap.Logger, limit int, unit string, ids []string, c *counters, fn func(ctx context.Context, id string) error) {
	g := new(errgroup.Group)
	g.SetLimit(max(limit, 1))
	for _, id := range ids {
		g.Go(func() error {
			err := runUnit(ctx, id, fn)
			if err != nil {
				logger.Error("unit failed", zap.String("unit", unit), zap.String("id", id), zap.Error(err))
			}
			c.done(unit, id, err)
			return nil
		})
	}
	_ = g.Wait()
}

func runUnit(ctx context.Context, id string, fn func(ctx context.Context, id string) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, id)
}
