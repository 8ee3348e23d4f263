package syncer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/guilherme-santos/notifcal/internal"
)

type Reconciler interface {
	Reconcile(context.Context, *internal.Event, internal.Action) *internal.SyncResult
}

type ResultStore interface {
	RecordSyncResult(_ context.Context, id string, revision int64, _ *internal.SyncResult) (bool, error)
}

// Observer is told about every sync result that was stored.
type Observer interface {
	Publish(*internal.SyncResult)
}

// Queue runs sync jobs with at most one reconcile in flight per event.
// While an event is busy only its latest job is kept; older queued jobs
// are replaced. Jobs for a revision older than one already accepted for
// the same event are dropped, whatever order they arrive in.
type Queue struct {
	reconciler Reconciler
	store      ResultStore
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	keys      map[string]*keyState
	revisions map[string]int64
	observers []Observer
	closed    bool
}

type keyState struct {
	pending *internal.SyncJob
}

func NewQueue(reconciler Reconciler, store ResultStore, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		reconciler: reconciler,
		store:      store,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		keys:       make(map[string]*keyState),
		revisions:  make(map[string]int64),
	}
}

func (q *Queue) AddObserver(o Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, o)
}

// Enqueue schedules job. It never blocks.
func (q *Queue) Enqueue(job internal.SyncJob) {
	id := job.Event.ID

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("sync queue closed, job dropped", "event_id", id, "action", job.Action.String())
		return
	}
	if latest, ok := q.revisions[id]; ok && job.Revision < latest {
		q.logger.Debug("sync job is older than an accepted one, dropped", "event_id", id,
			"action", job.Action.String(), "revision", job.Revision, "latest", latest)
		return
	}
	q.revisions[id] = job.Revision
	if st, busy := q.keys[id]; busy {
		if st.pending != nil {
			q.logger.Debug("sync job replaced", "event_id", id,
				"old_action", st.pending.Action.String(), "action", job.Action.String())
		}
		st.pending = &job
		return
	}
	q.keys[id] = &keyState{}
	q.wg.Add(1)
	go q.run(id, job)
}

func (q *Queue) run(id string, job internal.SyncJob) {
	defer q.wg.Done()
	for {
		res := q.reconciler.Reconcile(q.ctx, job.Event, job.Action)
		q.finish(job, res)

		q.mu.Lock()
		st := q.keys[id]
		if st.pending == nil || q.closed {
			delete(q.keys, id)
			q.mu.Unlock()
			return
		}
		job = *st.pending
		st.pending = nil
		q.mu.Unlock()
	}
}

func (q *Queue) finish(job internal.SyncJob, res *internal.SyncResult) {
	id := job.Event.ID

	q.mu.Lock()
	superseded := q.keys[id].pending != nil
	observers := q.observers
	q.mu.Unlock()
	if superseded {
		q.logger.Debug("sync result superseded", "event_id", id, "attempt_id", res.AttemptID)
		return
	}

	res.Revision = job.Revision
	stored, err := q.store.RecordSyncResult(q.ctx, id, job.Revision, res)
	if err != nil {
		q.logger.Error("unable to store sync result", "event_id", id, "attempt_id", res.AttemptID, "error", err)
		return
	}
	if !stored {
		q.logger.Debug("sync result is stale", "event_id", id, "revision", job.Revision)
		return
	}
	for _, o := range observers {
		o.Publish(res)
	}
}

// Close stops accepting jobs and waits for in-flight reconciles. Queued
// jobs that have not started are dropped; their events stay out of sync
// and are picked up by the retrier. When ctx ends first, in-flight calls
// are cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
