package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/guilherme-santos/notifcal/internal"
)

const DefaultWorkers = 4

type Classifier interface {
	Classify(_ context.Context, text string) (bool, error)
}

type Extractor interface {
	Extract(_ context.Context, text string, receivedAt time.Time) (*internal.Draft, error)
}

type EventCreator interface {
	CreateFromNotification(context.Context, internal.Notification, internal.Draft) (*internal.Event, error)
}

type NotificationLog interface {
	NotificationRecord(_ context.Context, id string) (*internal.NotificationRecord, error)
	LogNotification(context.Context, *internal.NotificationRecord) error
}

// Result tells what happened to one notification. Err is set when the
// notification could not be turned into an event; it is already recorded
// in the notification log.
type Result struct {
	ID      string                       `json:"id"`
	Outcome internal.NotificationOutcome `json:"outcome"`
	Event   *internal.Event              `json:"event,omitempty"`
	Err     error                        `json:"-"`
}

// Pipeline turns notifications into pending events: dedup, classify,
// extract, store.
type Pipeline struct {
	classifier Classifier
	extractor  Extractor
	events     EventCreator
	log        NotificationLog
	logger     *slog.Logger
	now        func() time.Time

	Workers int
}

func NewPipeline(classifier Classifier, extractor Extractor, events EventCreator, log NotificationLog, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier: classifier,
		extractor:  extractor,
		events:     events,
		log:        log,
		logger:     logger,
		now:        time.Now,
		Workers:    DefaultWorkers,
	}
}

// Process handles one notification. The returned error is reserved for
// storage failures, after which the notification should be delivered
// again.
func (p *Pipeline) Process(ctx context.Context, n internal.Notification) (Result, error) {
	if strings.TrimSpace(n.RawKey) == "" {
		return Result{}, fmt.Errorf("notification without key: %w", internal.ErrInvalidInput)
	}
	res := Result{ID: n.ID()}
	logger := p.logger.With("notification_id", res.ID, "source", n.Source)

	rec, err := p.log.NotificationRecord(ctx, res.ID)
	switch {
	case err == nil && rec.Outcome.Terminal():
		logger.Debug("duplicate notification", "outcome", rec.Outcome.String())
		res.Outcome = internal.OutcomeDuplicate
		return res, nil
	case err != nil && !errors.Is(err, internal.ErrNotFound):
		return res, err
	}

	text := n.Text()
	relevant, err := p.classifier.Classify(ctx, text)
	if err != nil {
		return p.fail(ctx, logger, n, res, err)
	}
	if !relevant {
		res.Outcome = internal.OutcomeIgnored
		return res, p.record(ctx, n, res)
	}

	receivedAt := n.PostedTime()
	if n.PostedAt <= 0 {
		receivedAt = p.now().UTC()
	}
	draft, err := p.extractor.Extract(ctx, text, receivedAt)
	if err != nil {
		return p.fail(ctx, logger, n, res, err)
	}
	if draft == nil {
		res.Outcome = internal.OutcomeNoEvent
		return res, p.record(ctx, n, res)
	}

	ev, err := p.events.CreateFromNotification(ctx, n, *draft)
	switch {
	case errors.Is(err, internal.ErrIDCollision):
		return p.fail(ctx, logger, n, res, err)
	case errors.Is(err, internal.ErrAlreadyExists):
		// An earlier or concurrent delivery stored the event. Its log entry
		// may be missing, so write it again to stop later re-extraction.
		logged := res
		logged.Outcome = internal.OutcomeStored
		res.Outcome = internal.OutcomeDuplicate
		return res, p.record(ctx, n, logged)
	case err != nil:
		return res, err
	}
	res.Outcome = internal.OutcomeStored
	res.Event = ev
	logger.Info("notification stored as event", "event_id", ev.ID)
	return res, p.record(ctx, n, res)
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, n internal.Notification, res Result, err error) (Result, error) {
	logger.Warn("unable to process notification", "error", err)
	res.Outcome = internal.OutcomeFailed
	res.Err = err
	return res, p.record(ctx, n, res)
}

func (p *Pipeline) record(ctx context.Context, n internal.Notification, res Result) error {
	rec := &internal.NotificationRecord{
		ID:         res.ID,
		Source:     n.Source,
		Title:      n.Title,
		PostedAt:   n.PostedAt,
		ReceivedAt: p.now().UTC(),
		Outcome:    res.Outcome,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return p.log.LogNotification(ctx, rec)
}

// ProcessAll processes notifications in parallel and returns their
// results in input order.
func (p *Pipeline) ProcessAll(ctx context.Context, notifications []internal.Notification) ([]Result, []error) {
	results := make([]Result, len(notifications))
	errs := make([]error, len(notifications))

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				results[i], errs[i] = p.Process(ctx, notifications[i])
			}
		}()
	}
	for i := range notifications {
		idx <- i
	}
	close(idx)
	wg.Wait()
	return results, errs
}
