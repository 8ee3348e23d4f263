package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/internal"
	"github.com/guilherme-santos/notifcal/internal/ingest"
)

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Process notifications from a JSON file, or publish them to the queue.",
		ArgsUsage: "<file.json>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "publish", Usage: "publish to amqp.queue instead of processing locally"},
			&cli.IntFlag{Name: "workers", Value: ingest.DefaultWorkers, Usage: "notifications processed at once"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("expected a notifications file", 2)
			}
			ns, err := readNotifications(c.Args().First())
			if err != nil {
				return err
			}

			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.closeWithTimeout()

			if c.Bool("publish") {
				if a.cfg.AMQP.URL == "" {
					return cli.Exit("amqp.url is not configured", 2)
				}
				pub, err := ingest.NewPublisher(a.cfg.AMQP.URL, a.cfg.AMQP.Queue)
				if err != nil {
					return err
				}
				defer pub.Close()
				for _, n := range ns {
					if err := pub.Publish(c.Context, n); err != nil {
						return err
					}
				}
				a.logger.Info("notifications published", "count", len(ns), "queue", a.cfg.AMQP.Queue)
				return nil
			}

			pipeline, err := a.newPipeline()
			if err != nil {
				return err
			}
			pipeline.Workers = c.Int("workers")
			results, errs := pipeline.ProcessAll(c.Context, ns)
			if err := printJSON(c.App.Writer, results); err != nil {
				return err
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d notifications were not processed: %w", len(errs), errs[0])
			}
			return nil
		},
	}
}

// readNotifications accepts a single notification or an array of them.
func readNotifications(path string) ([]internal.Notification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ns []internal.Notification
	if err := json.Unmarshal(data, &ns); err == nil {
		return ns, nil
	}
	var n internal.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return []internal.Notification{n}, nil
}
