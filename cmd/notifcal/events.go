package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/internal"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Review candidate events.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List events in creation order.",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: internal.DefaultPageLimit},
					&cli.StringFlag{Name: "cursor"},
				},
				Action: func(c *cli.Context) error {
					a, err := newApp(c)
					if err != nil {
						return err
					}
					defer a.closeWithTimeout()

					page, err := a.events.ListPage(c.Context, c.Int("limit"), c.String("cursor"))
					if err != nil {
						return err
					}
					for _, ev := range page.Items {
						fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s %s\t%s\n", ev.ID, ev.Status, ev.SyncState, ev.StartDate, ev.StartTime, ev.Title)
					}
					if page.NextCursor != nil {
						fmt.Fprintf(c.App.Writer, "next cursor: %s\n", *page.NextCursor)
					}
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print one event with its last sync result.",
				ArgsUsage: "<event-id>",
				Action: eventAction(func(c *cli.Context, a *app, id string) (*internal.Event, error) {
					return a.events.Get(c.Context, id)
				}),
			},
			{
				Name:      "confirm",
				Usage:     "Confirm an event and write it to every linked calendar.",
				ArgsUsage: "<event-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "start-date", Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "start-time", Usage: "HH:MM"},
					&cli.StringFlag{Name: "end-date", Usage: "YYYY-MM-DD"},
					&cli.StringFlag{Name: "end-time", Usage: "HH:MM"},
					&cli.BoolFlag{Name: "all-day"},
				},
				Action: eventAction(func(c *cli.Context, a *app, id string) (*internal.Event, error) {
					a.queue.AddObserver(printer{c})
					return a.events.Confirm(c.Context, id, editsFromFlags(c))
				}),
			},
			{
				Name:      "discard",
				Usage:     "Discard an event and remove it from every linked calendar.",
				ArgsUsage: "<event-id>",
				Action: eventAction(func(c *cli.Context, a *app, id string) (*internal.Event, error) {
					a.queue.AddObserver(printer{c})
					return a.events.Discard(c.Context, id)
				}),
			},
		},
	}
}

func eventAction(fn func(*cli.Context, *app, string) (*internal.Event, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("expected an event id", 2)
		}
		a, err := newApp(c)
		if err != nil {
			return err
		}
		defer a.closeWithTimeout()

		ev, err := fn(c, a, c.Args().First())
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, ev)
	}
}

func editsFromFlags(c *cli.Context) internal.Edits {
	var ed internal.Edits
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	ed.Title = str("title")
	ed.StartDate = str("start-date")
	ed.StartTime = str("start-time")
	ed.EndDate = str("end-date")
	ed.EndTime = str("end-time")
	if c.IsSet("all-day") {
		v := c.Bool("all-day")
		ed.AllDay = &v
	}
	return ed
}
