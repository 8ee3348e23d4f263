package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/guilherme-santos/notifcal/internal"
)

const DefaultRetrySchedule = "@every 5m"

type ResyncStorage interface {
	EventsToResync(context.Context) ([]*internal.Event, error)
}

type Scheduler interface {
	Enqueue(internal.SyncJob)
}

// Retrier re-schedules events whose remote calendars are not known to
// match their status.
type Retrier struct {
	storage   ResyncStorage
	scheduler Scheduler
	logger    *slog.Logger
}

func NewRetrier(storage ResyncStorage, scheduler Scheduler, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		storage:   storage,
		scheduler: scheduler,
		logger:    logger,
	}
}

// RetryOutOfSync enqueues every event that needs a sync and returns how
// many were enqueued.
func (r *Retrier) RetryOutOfSync(ctx context.Context) (int, error) {
	events, err := r.storage.EventsToResync(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	for _, ev := range events {
		action, ok := ev.Intent()
		if !ok {
			continue
		}
		r.scheduler.Enqueue(internal.SyncJob{Event: ev, Action: action, Revision: ev.Revision})
		n++
	}
	if n > 0 {
		r.logger.Info("out of sync events scheduled", "count", n)
	}
	return n, nil
}

// Schedule runs RetryOutOfSync on a cron schedule until the returned cron
// is stopped.
func (r *Retrier) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultRetrySchedule
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := r.RetryOutOfSync(ctx); err != nil {
			r.logger.Error("unable to retry out of sync events", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("retry schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
