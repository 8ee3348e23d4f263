package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/internal"
	"github.com/guilherme-santos/notifcal/internal/syncer"
)

type printer struct {
	c *cli.Context
}

func (p printer) Publish(res *internal.SyncResult) {
	status := "ok"
	if !res.Success {
		status = "failed: " + res.Error
	}
	fmt.Fprintf(p.c.App.Writer, "%s %s %s\n", res.EventID, res.Action, status)
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Reconcile events that are out of sync, or the given events.",
		ArgsUsage: "[event-id...]",
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.closeWithTimeout()
			a.queue.AddObserver(printer{c})

			if c.NArg() == 0 {
				n, err := syncer.NewRetrier(a.storage, a.queue, a.logger).RetryOutOfSync(c.Context)
				if err != nil {
					return err
				}
				a.logger.Info("resync scheduled", "events", n)
				return nil
			}
			for _, id := range c.Args().Slice() {
				if _, err := a.events.Resync(c.Context, id); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
