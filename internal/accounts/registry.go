package accounts

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

type Storage interface {
	SaveAccount(_ context.Context, _ *internal.Account) error
	Account(_ context.Context, id string) (*internal.Account, error)
	Accounts(_ context.Context) ([]*internal.Account, error)
	DeleteAccount(_ context.Context, id string) error
	SetAccountError(_ context.Context, id, msg string) error
}

type platformLister interface {
	Platforms() []string
}

// Registry keeps the linked calendar accounts and their tokens fresh.
type Registry struct {
	storage Storage
	mux     internal.Mux
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(storage Storage, mux internal.Mux, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		storage: storage,
		mux:     mux,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (r *Registry) List(ctx context.Context) ([]*internal.Account, error) {
	return r.storage.Accounts(ctx)
}

func (r *Registry) Get(ctx context.Context, id string) (*internal.Account, error) {
	return r.storage.Account(ctx, id)
}

// Add links a new account, or replaces the tokens of an existing one.
func (r *Registry) Add(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	acc.Platform = strings.ToLower(strings.TrimSpace(acc.Platform))
	acc.Name = strings.TrimSpace(acc.Name)
	if acc.Name == "" || strings.Contains(acc.Name, "/") {
		return nil, fmt.Errorf("account name %q: %w", acc.Name, internal.ErrInvalidInput)
	}
	if _, err := r.mux.Get(acc.Platform); err != nil {
		if pl, ok := r.mux.(platformLister); ok {
			return nil, fmt.Errorf("account platform %q, expected one of %s: %w",
				acc.Platform, strings.Join(pl.Platforms(), ", "), internal.ErrInvalidInput)
		}
		return nil, fmt.Errorf("account platform %q: %w", acc.Platform, internal.ErrInvalidInput)
	}
	if acc.AccessToken == "" {
		return nil, fmt.Errorf("account %s has no access token: %w", acc, internal.ErrInvalidInput)
	}
	switch acc.Platform {
	case internal.PlatformGoogle:
		if acc.CalendarID == "" {
			acc.CalendarID = "primary"
		}
	case internal.PlatformCalDAV:
		if acc.Endpoint == "" || acc.CalendarID == "" {
			return nil, fmt.Errorf("caldav account %s needs an endpoint and a calendar: %w", acc, internal.ErrInvalidInput)
		}
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = r.now().UTC()
	}
	acc.LastError = ""
	if err := r.storage.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}
	r.logger.Info("account linked", "account_id", acc.ID())
	return acc, nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.storage.DeleteAccount(ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.locks, id)
	r.mu.Unlock()
	r.logger.Info("account removed", "account_id", id)
	return nil
}

// RefreshIfExpired returns acc unchanged while its token is valid, and a
// refreshed copy otherwise.
func (r *Registry) RefreshIfExpired(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	if !acc.Expired(r.now()) {
		return acc, nil
	}
	unlock := r.lock(acc.ID())
	defer unlock()

	latest, err := r.storage.Account(ctx, acc.ID())
	if err != nil {
		return nil, err
	}
	if !latest.Expired(r.now()) {
		return latest, nil
	}
	return r.refresh(ctx, latest)
}

// ForceRefresh refreshes the token after the remote rejected it. When
// another caller already replaced the rejected token, the stored account is
// returned instead.
func (r *Registry) ForceRefresh(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	unlock := r.lock(acc.ID())
	defer unlock()

	latest, err := r.storage.Account(ctx, acc.ID())
	if err != nil {
		return nil, err
	}
	if latest.AccessToken != acc.AccessToken {
		return latest, nil
	}
	return r.refresh(ctx, latest)
}

func (r *Registry) refresh(ctx context.Context, acc *internal.Account) (*internal.Account, error) {
	provider, err := r.mux.Get(acc.Platform)
	if err != nil {
		return nil, r.fail(ctx, acc, err)
	}
	refresher, ok := provider.(internal.TokenRefresher)
	if !ok || acc.RefreshToken == "" {
		return nil, r.fail(ctx, acc, errors.New("token cannot be refreshed"))
	}
	updated, err := refresher.RefreshToken(ctx, acc)
	if err != nil {
		return nil, r.fail(ctx, acc, err)
	}
	updated.LastError = ""
	if err := r.storage.SaveAccount(ctx, updated); err != nil {
		return nil, err
	}
	r.logger.Debug("account token refreshed", "account_id", acc.ID(), "expiry", updated.Expiry)
	return updated, nil
}

func (r *Registry) fail(ctx context.Context, acc *internal.Account, cause error) error {
	r.logger.Error("account needs to be re-linked", "account_id", acc.ID(), "error", cause)
	if err := r.storage.SetAccountError(ctx, acc.ID(), cause.Error()); err != nil {
		r.logger.Warn("unable to record account error", "account_id", acc.ID(), "error", err)
	}
	return fmt.Errorf("account %s: %w: %v", acc.ID(), internal.ErrAuthExpired, cause)
}

func (r *Registry) lock(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
