// Package poller drives the periodic tick loops (reminders, weather
// subscriptions, calendar watches) on a shared gocron scheduler.
//
// Each concern is an independent singleton-mode job: a tick that is still
// running when the next one fires is skipped entirely, so ticks are strictly
// serialized per concern and loops never pile up behind a slow upstream.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
)

// TickFunc runs one poll cycle and reports how many notifications went out.
type TickFunc func(ctx context.Context) int

// Poller owns the scheduler and its registered loops.
type Poller struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New creates a stopped poller; call Start after registering loops.
func New(logger *slog.Logger) (*Poller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	return &Poller{scheduler: s, logger: logger}, nil
}

// Register adds a named loop with a fixed interval.
func (p *Poller) Register(ctx context.Context, name string, interval time.Duration, tick TickFunc) error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n := tick(ctx)
			if n > 0 {
				p.logger.Info("poll tick delivered notifications", "concern", name, "count", n)
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return errors.Wrapf(err, "register %s loop", name)
}

// Start begins ticking.
func (p *Poller) Start() {
	p.scheduler.Start()
}

// Shutdown stops all loops. An in-flight tick finishes; no further ticks run.
func (p *Poller) Shutdown() error {
	return p.scheduler.Shutdown()
}
