package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/calendar"
	"github.com/guilherme-santos/notifcal/calendar/caldav"
	"github.com/guilherme-santos/notifcal/calendar/google"
	"github.com/guilherme-santos/notifcal/internal"
	"github.com/guilherme-santos/notifcal/internal/accounts"
	"github.com/guilherme-santos/notifcal/internal/config"
	"github.com/guilherme-santos/notifcal/internal/eventstore"
	"github.com/guilherme-santos/notifcal/internal/ingest"
	"github.com/guilherme-santos/notifcal/internal/reasoning"
	"github.com/guilherme-santos/notifcal/internal/sqlstore"
	"github.com/guilherme-santos/notifcal/internal/syncer"
)

// app holds the wired services shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	storage     *sqlstore.Storage
	mux         *calendar.Mux
	accounts    *accounts.Registry
	coordinator *syncer.Coordinator
	queue       *syncer.Queue
	events      *eventstore.Store
}

func newApp(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dsn := c.String("db"); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	storage, err := sqlstore.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mux, err := newMux(cfg, loc, logger)
	if err != nil {
		storage.Close()
		return nil, err
	}

	registry := accounts.New(storage, mux, logger)
	coordinator := syncer.NewCoordinator(registry, mux, logger, syncer.Options{
		MaxParallel: cfg.Sync.MaxParallel,
		CallTimeout: cfg.Sync.CallTimeout,
	})
	queue := syncer.NewQueue(coordinator, storage, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		storage:     storage,
		mux:         mux,
		accounts:    registry,
		coordinator: coordinator,
		queue:       queue,
		events:      eventstore.New(storage, queue, logger),
	}, nil
}

func newMux(cfg *config.Config, loc *time.Location, logger *slog.Logger) (*calendar.Mux, error) {
	var credJSON []byte
	if f := cfg.Google.CredentialsFile; f != "" {
		var err error
		credJSON, err = os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("unable to read google credentials file: %w", err)
		}
	}
	httpClient := &http.Client{Timeout: cfg.Sync.CallTimeout}
	googleCal, err := google.NewClient(credJSON, google.Options{
		HTTPClient: httpClient,
		Location:   loc,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	mux := calendar.NewMux()
	mux.Register(internal.PlatformGoogle, googleCal)
	mux.Register(internal.PlatformCalDAV, caldav.NewClient(caldav.Options{
		HTTPClient: httpClient,
		Location:   loc,
		Logger:     logger,
	}))
	return mux, nil
}

func (a *app) newPipeline() (*ingest.Pipeline, error) {
	rc, err := reasoning.NewClient(reasoning.Options{
		Endpoint:   a.cfg.Reasoning.Endpoint,
		APIKey:     a.cfg.Reasoning.APIKey,
		Model:      a.cfg.Reasoning.Model,
		HTTPClient: &http.Client{Timeout: a.cfg.Reasoning.Timeout},
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	return ingest.NewPipeline(rc, rc, a.events, a.storage, a.logger), nil
}

// Close waits for scheduled sync jobs to finish before closing the store.
func (a *app) Close(ctx context.Context) error {
	if err := a.queue.Close(ctx); err != nil {
		a.logger.Warn("sync queue did not drain", "error", err)
	}
	return a.storage.Close()
}

// closeTimeout bounds how long a command waits for pending syncs.
const closeTimeout = time.Minute

func (a *app) closeWithTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.logger.Error("unable to close store", "error", err)
	}
}
