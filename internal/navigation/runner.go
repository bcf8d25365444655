package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/navfusion/internal/monitoring"
	"github.com/banshee-data/navfusion/internal/timeutil"
)

// Runner drives a Navigator's two tasks from periodic tickers, one goroutine
// per task.
type Runner struct {
	nav   *Navigator
	clock timeutil.Clock
}

// NewRunner returns a Runner for nav using the task periods from its config.
func NewRunner(nav *Navigator, clock timeutil.Clock) *Runner {
	return &Runner{nav: nav, clock: clock}
}

// Run blocks until ctx is cancelled and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.nav.Config()
	monitoring.Logf("[nav] starting tasks: velocity every %s, position every %s", cfg.VelocityTaskPeriod, cfg.PositionTaskPeriod)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.loop(ctx, cfg.VelocityTaskPeriod, r.nav.VelocityTask)
	}()
	go func() {
		defer wg.Done()
		r.loop(ctx, cfg.PositionTaskPeriod, r.nav.PositionTask)
	}()
	wg.Wait()

	monitoring.Logf("[nav] tasks stopped")
	return ctx.Err()
}

func (r *Runner) loop(ctx context.Context, period time.Duration, task func()) {
	ticker := r.clock.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			task()
		}
	}
}
