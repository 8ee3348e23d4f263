package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/guilherme-santos/notifcal/internal"
)

const (
	DefaultMaxParallel = 4
	DefaultCallTimeout = 15 * time.Second
)

const tracerName = "github.com/guilherme-santos/notifcal/internal/syncer"

// Accounts is the view of the account registry the coordinator needs.
type Accounts interface {
	List(context.Context) ([]*internal.Account, error)
	RefreshIfExpired(context.Context, *internal.Account) (*internal.Account, error)
	ForceRefresh(context.Context, *internal.Account) (*internal.Account, error)
}

type Options struct {
	// MaxParallel bounds how many accounts are written concurrently.
	MaxParallel int
	// CallTimeout bounds every single remote call.
	CallTimeout time.Duration
}

// Coordinator applies one event action to every linked account.
type Coordinator struct {
	accounts Accounts
	mux      internal.Mux
	logger   *slog.Logger
	tracer   trace.Tracer
	opts     Options
}

func NewCoordinator(accounts Accounts, mux internal.Mux, logger *slog.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Coordinator{
		accounts: accounts,
		mux:      mux,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		opts:     opts,
	}
}

// Reconcile writes ev to, or removes it from, every linked account. A
// failure on one account never stops or undoes the others; the result is
// successful only when no account failed.
func (c *Coordinator) Reconcile(ctx context.Context, ev *internal.Event, action internal.Action) *internal.SyncResult {
	res := &internal.SyncResult{
		AttemptID: uuid.NewString(),
		EventID:   ev.ID,
		Action:    action,
		Revision:  ev.Revision,
		StartedAt: time.Now().UTC(),
		Outcomes:  []internal.SyncOutcome{},
	}
	ctx, span := c.tracer.Start(ctx, "syncer.Reconcile", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("sync.action", action.String()),
		attribute.String("sync.attempt_id", res.AttemptID),
	))
	defer span.End()
	logger := c.logger.With("event_id", ev.ID, "attempt_id", res.AttemptID, "action", action.String())

	accounts, err := c.accounts.List(ctx)
	if err != nil {
		res.Error = fmt.Sprintf("listing accounts: %v", err)
		res.FinishedAt = time.Now().UTC()
		span.SetStatus(codes.Error, res.Error)
		logger.Error("unable to list accounts", "error", err)
		return res
	}

	outcomes := make([]internal.SyncOutcome, len(accounts))
	sem := make(chan struct{}, c.opts.MaxParallel)
	var wg sync.WaitGroup
	for i, acc := range accounts {
		wg.Add(1)
		go func(i int, acc *internal.Account) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				outcomes[i] = failed(internal.SyncOutcome{AccountID: acc.ID(), Action: action}, ctx.Err())
				return
			}
			defer func() { <-sem }()
			outcomes[i] = c.reconcileAccount(ctx, acc, ev, action)
		}(i, acc)
	}
	wg.Wait()

	res.Outcomes = outcomes
	res.Success = true
	for _, o := range outcomes {
		if o.Failed() {
			res.Success = false
			logger.Warn("account out of sync", "account_id", o.AccountID, "status", o.HTTPStatus, "error", o.Error)
		}
	}
	if !res.Success {
		failedIDs := res.FailedAccounts()
		res.Error = fmt.Sprintf("%d of %d accounts failed", len(failedIDs), len(outcomes))
		span.SetStatus(codes.Error, res.Error)
	}
	res.FinishedAt = time.Now().UTC()
	logger.Info("event reconciled", "accounts", len(outcomes), "success", res.Success,
		"duration", res.FinishedAt.Sub(res.StartedAt))
	return res
}

func (c *Coordinator) reconcileAccount(ctx context.Context, acc *internal.Account, ev *internal.Event, action internal.Action) internal.SyncOutcome {
	ctx, span := c.tracer.Start(ctx, "syncer.account", trace.WithAttributes(
		attribute.String("account.id", acc.ID()),
	))
	defer span.End()

	out := internal.SyncOutcome{AccountID: acc.ID(), Action: action}
	acc, err := c.refresh(ctx, acc, c.accounts.RefreshIfExpired)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return failed(out, err)
	}
	provider, err := c.mux.Get(acc.Platform)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return failed(out, err)
	}

	result, err := c.apply(ctx, provider, acc, ev, action)
	if errors.Is(err, internal.ErrAuthExpired) {
		// The token was rejected before it expired; refresh once and retry.
		acc, err = c.refresh(ctx, acc, c.accounts.ForceRefresh)
		if err == nil {
			result, err = c.apply(ctx, provider, acc, ev, action)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return failed(out, err)
	}
	out.Result = result
	return out
}

func (c *Coordinator) apply(ctx context.Context, provider internal.Provider, acc *internal.Account, ev *internal.Event, action internal.Action) (internal.Result, error) {
	switch action {
	case internal.ActionUpsert:
		err := c.call(ctx, func(ctx context.Context) error {
			return provider.UpdateEvent(ctx, acc, ev)
		})
		if err == nil {
			return internal.ResultOK, nil
		}
		if !errors.Is(err, internal.ErrRemoteNotFound) {
			return internal.ResultFailed, err
		}
		err = c.call(ctx, func(ctx context.Context) error {
			return provider.InsertEvent(ctx, acc, ev)
		})
		if err != nil {
			return internal.ResultFailed, err
		}
		return internal.ResultNotFoundThenCreated, nil

	case internal.ActionDelete:
		err := c.call(ctx, func(ctx context.Context) error {
			return provider.DeleteEvent(ctx, acc, ev.ID)
		})
		if err != nil && !errors.Is(err, internal.ErrRemoteNotFound) {
			return internal.ResultFailed, err
		}
		return internal.ResultOK, nil
	}
	return internal.ResultFailed, fmt.Errorf("action %q: %w", action, internal.ErrInvalidInput)
}

// refresh runs a token refresh under the per-call timeout, like any other
// remote call.
func (c *Coordinator) refresh(ctx context.Context, acc *internal.Account, fn func(context.Context, *internal.Account) (*internal.Account, error)) (*internal.Account, error) {
	var fresh *internal.Account
	err := c.call(ctx, func(ctx context.Context) error {
		a, err := fn(ctx, acc)
		fresh = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// call runs fn under the per-call timeout. A provider that does not honour
// the context is abandoned once the timeout expires.
func (c *Coordinator) call(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(cctx) }()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %v", internal.ErrTimeout, c.opts.CallTimeout, err)
		}
		return err
	case <-cctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %s", internal.ErrTimeout, c.opts.CallTimeout)
	}
}

func failed(out internal.SyncOutcome, err error) internal.SyncOutcome {
	out.Result = internal.ResultFailed
	out.Error = err.Error()
	var remote *internal.RemoteError
	if errors.As(err, &remote) {
		out.HTTPStatus = remote.StatusCode
	}
	return out
}
