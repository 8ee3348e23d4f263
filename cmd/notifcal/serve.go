package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/internal/httpapi"
	"github.com/guilherme-santos/notifcal/internal/ingest"
	"github.com/guilherme-santos/notifcal/internal/obs"
	"github.com/guilherme-santos/notifcal/internal/syncer"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, the sync queue and the notification consumer.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address, overrides listen"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.closeWithTimeout()
			logger := a.logger

			shutdownTracer, err := obs.InitTracer(ctx, a.cfg.Tracing.ServiceName, a.cfg.Tracing.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracer(sctx); err != nil {
					logger.Warn("unable to flush traces", "error", err)
				}
			}()

			pipeline, err := a.newPipeline()
			if err != nil {
				return err
			}

			hub := httpapi.NewHub(logger)
			a.queue.AddObserver(hub)

			retrier := syncer.NewRetrier(a.storage, a.queue, logger)
			if _, err := retrier.RetryOutOfSync(ctx); err != nil {
				logger.Error("unable to retry out of sync events", "error", err)
			}
			cr, err := retrier.Schedule(ctx, a.cfg.Sync.RetrySchedule)
			if err != nil {
				return err
			}
			defer cr.Stop()

			if url := a.cfg.AMQP.URL; url != "" {
				consumer, err := ingest.NewConsumer(url, a.cfg.AMQP.Queue, a.cfg.AMQP.Prefetch, logger)
				if err != nil {
					return err
				}
				defer consumer.Close()
				go func() {
					if err := consumer.Run(ctx, pipeline); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("notification consumer stopped", "error", err)
						stop()
					}
				}()
			}

			gin.SetMode(gin.ReleaseMode)
			api := httpapi.NewServer(httpapi.Deps{
				Ingester:      pipeline,
				Events:        a.events,
				Accounts:      a.accounts,
				Notifications: a.storage,
				Hub:           hub,
				Health:        a.storage,
			}, a.cfg.Auth.JWTSecret, logger)

			listen := a.cfg.Listen
			if c.IsSet("listen") {
				listen = c.String("listen")
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           api,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", listen)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
}
