package retention

import (
	"context"
	"time"
)

// Run performs an immediate sweep and then repeats every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	e.SweepOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("stopping")
			return
		case <-ticker.C:
			e.SweepOnce(ctx)
		}
	}
}

// SweepOnce prunes every group that currently has builds and returns the
// number of builds deleted.
func (e *Engine) SweepOnce(ctx context.Context) int {
	groups, err := e.repo.ListGroups(ctx)
	if err != nil {
		e.logger.Error("list groups", "error", err)
		return 0
	}

	deleted := 0
	for _, g := range groups {
		res, err := e.Prune(ctx, g)
		deleted += len(res.Deleted)
		if err != nil {
			e.logger.Error("prune group", "group", g.String(), "error", err)
			continue
		}
		if res.Disabled {
			return deleted
		}
	}
	return deleted
}
