package ingest

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guilherme-santos/notifcal/internal"
	"github.com/guilherme-santos/notifcal/internal/eventstore"
	"github.com/guilherme-santos/notifcal/internal/sqlstore"
)

// keywordReasoner treats texts mentioning "appt" as relevant and extracts
// a fixed event from them.
type keywordReasoner struct {
	extractCalls atomic.Int32
	failExtract  atomic.Int32
}

func (k *keywordReasoner) Classify(_ context.Context, text string) (bool, error) {
	return strings.Contains(text, "appt") || strings.Contains(text, "maybe"), nil
}

func (k *keywordReasoner) Extract(_ context.Context, text string, receivedAt time.Time) (*internal.Draft, error) {
	k.extractCalls.Add(1)
	if k.failExtract.Load() > 0 {
		k.failExtract.Add(-1)
		return nil, internal.ErrExtractionFailed
	}
	if strings.Contains(text, "maybe") {
		return nil, nil
	}
	at, _ := internal.ParseClock("09:00")
	return &internal.Draft{
		Title:     "Dentist",
		StartDate: internal.NewDateFromTime(receivedAt).AddDate(0, 0, 1),
		StartTime: at,
	}, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *keywordReasoner, *sqlstore.Storage) {
	t.Helper()
	storage, err := sqlstore.Open(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	reasoner := &keywordReasoner{}
	events := eventstore.New(storage, nil, nil)
	return NewPipeline(reasoner, reasoner, events, storage, nil), reasoner, storage
}

var dentistNotification = internal.Notification{
	RawKey:   "0|com.clinic|42|null|10001",
	Source:   "com.clinic",
	Title:    "Clinic",
	Body:     "Dentist appt tomorrow 9am",
	PostedAt: time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC).UnixMilli(),
}

func TestProcessStoresEventOnce(t *testing.T) {
	p, reasoner, storage := newTestPipeline(t)
	ctx := context.Background()

	res, err := p.Process(ctx, dentistNotification)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != internal.OutcomeStored || res.Event == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Event.StartDate.String() != "2025-03-10" || !res.Event.EndTime.IsZero() {
		t.Fatalf("unexpected event %+v", res.Event)
	}

	again, err := p.Process(ctx, dentistNotification)
	if err != nil {
		t.Fatalf("process again: %v", err)
	}
	if again.Outcome != internal.OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", again.Outcome)
	}
	if n := reasoner.extractCalls.Load(); n != 1 {
		t.Fatalf("expected a single extraction, got %d", n)
	}
	events, _ := storage.Events(ctx, 0, 10)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
}

func TestProcessOutcomes(t *testing.T) {
	p, reasoner, storage := newTestPipeline(t)
	ctx := context.Background()

	ignored := internal.Notification{RawKey: "k1", Source: "shop", Body: "50% off", PostedAt: 1}
	res, err := p.Process(ctx, ignored)
	if err != nil || res.Outcome != internal.OutcomeIgnored {
		t.Fatalf("expected ignored, got %+v %v", res, err)
	}
	noEvent := internal.Notification{RawKey: "k2", Source: "chat", Body: "maybe later", PostedAt: 2}
	res, err = p.Process(ctx, noEvent)
	if err != nil || res.Outcome != internal.OutcomeNoEvent {
		t.Fatalf("expected no_event, got %+v %v", res, err)
	}
	if reasoner.extractCalls.Load() != 1 {
		t.Fatalf("irrelevant notifications must not be extracted")
	}

	recs, _ := storage.Notifications(ctx, 0, 10)
	if len(recs) != 2 || recs[0].Outcome != internal.OutcomeIgnored || recs[1].Outcome != internal.OutcomeNoEvent {
		t.Fatalf("unexpected log %+v", recs)
	}
}

func TestProcessRetriesFailedNotification(t *testing.T) {
	p, reasoner, storage := newTestPipeline(t)
	ctx := context.Background()
	reasoner.failExtract.Store(1)

	res, err := p.Process(ctx, dentistNotification)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != internal.OutcomeFailed || !errors.Is(res.Err, internal.ErrExtractionFailed) {
		t.Fatalf("expected failed, got %+v", res)
	}
	rec, err := storage.NotificationRecord(ctx, dentistNotification.ID())
	if err != nil || rec.Outcome != internal.OutcomeFailed || rec.Error == "" {
		t.Fatalf("expected the failure to be logged, got %+v %v", rec, err)
	}

	res, err = p.Process(ctx, dentistNotification)
	if err != nil || res.Outcome != internal.OutcomeStored {
		t.Fatalf("expected the redelivery to be stored, got %+v %v", res, err)
	}
}

func TestProcessAllDeduplicatesConcurrentDeliveries(t *testing.T) {
	p, _, storage := newTestPipeline(t)
	ctx := context.Background()

	batch := make([]internal.Notification, 6)
	for i := range batch {
		batch[i] = dentistNotification
	}
	results, errs := p.ProcessAll(ctx, batch)

	stored := 0
	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("process %d: %v", i, errs[i])
		}
		switch res.Outcome {
		case internal.OutcomeStored:
			stored++
		case internal.OutcomeDuplicate:
		default:
			t.Fatalf("unexpected outcome %s", res.Outcome)
		}
	}
	if stored != 1 {
		t.Fatalf("expected exactly one stored outcome, got %d", stored)
	}
	events, _ := storage.Events(ctx, 0, 10)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
}

func TestProcessLogsEventStoredWithoutLogEntry(t *testing.T) {
	p, reasoner, storage := newTestPipeline(t)
	ctx := context.Background()

	// The event exists but its notification was never logged.
	at, _ := internal.ParseClock("09:00")
	draft := internal.Draft{Title: "Dentist", StartDate: internal.NewDate(2025, 3, 10), StartTime: at}
	if _, err := eventstore.New(storage, nil, nil).CreateFromNotification(ctx, dentistNotification, draft); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := p.Process(ctx, dentistNotification)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Outcome != internal.OutcomeDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Outcome)
	}
	rec, err := storage.NotificationRecord(ctx, dentistNotification.ID())
	if err != nil {
		t.Fatalf("expected the notification to be logged: %v", err)
	}
	if rec.Outcome != internal.OutcomeStored {
		t.Fatalf("expected stored, got %s", rec.Outcome)
	}

	if _, err := p.Process(ctx, dentistNotification); err != nil {
		t.Fatalf("process again: %v", err)
	}
	if n := reasoner.extractCalls.Load(); n != 1 {
		t.Fatalf("expected a single extraction, got %d", n)
	}
}

func TestProcessRejectsMissingKey(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	if _, err := p.Process(context.Background(), internal.Notification{Body: "appt"}); !errors.Is(err, internal.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type stubProcessor struct {
	err error
}

func (s stubProcessor) Process(_ context.Context, n internal.Notification) (Result, error) {
	return Result{ID: n.ID(), Outcome: internal.OutcomeStored}, s.err
}

func TestHandleDelivery(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	body := []byte(`{"rawKey":"k","source":"s","title":"t","body":"b","postedAt":1}`)

	if v := handleDelivery(ctx, stubProcessor{}, body, logger); v != ack {
		t.Fatalf("expected ack, got %d", v)
	}
	if v := handleDelivery(ctx, stubProcessor{}, []byte("{not json"), logger); v != reject {
		t.Fatalf("expected reject, got %d", v)
	}
	if v := handleDelivery(ctx, stubProcessor{err: errors.New("database is locked")}, body, logger); v != requeue {
		t.Fatalf("expected requeue, got %d", v)
	}
	if v := handleDelivery(ctx, stubProcessor{err: internal.ErrInvalidInput}, body, logger); v != reject {
		t.Fatalf("expected reject, got %d", v)
	}
}
