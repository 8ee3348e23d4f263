package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/internal"
)

func accountsCommand() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "Manage linked calendars.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List linked calendars.",
				Action: func(c *cli.Context) error {
					a, err := newApp(c)
					if err != nil {
						return err
					}
					defer a.closeWithTimeout()

					accs, err := a.accounts.List(c.Context)
					if err != nil {
						return err
					}
					for _, acc := range accs {
						line := fmt.Sprintf("%s\t%s", acc.ID(), acc.CalendarID)
						if acc.LastError != "" {
							line += "\terror: " + acc.LastError
						}
						fmt.Fprintln(c.App.Writer, line)
					}
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "Link a calendar. Every confirmed event is written to it.",
				ArgsUsage: "<platform> <name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "calendar-id", Usage: "remote calendar, google defaults to primary"},
					&cli.StringFlag{Name: "endpoint", Usage: "CalDAV server URL"},
					&cli.StringFlag{Name: "access-token", EnvVars: []string{"NOTIFCAL_ACCESS_TOKEN"}, Usage: "OAuth access token, or user:password for CalDAV"},
					&cli.StringFlag{Name: "refresh-token", EnvVars: []string{"NOTIFCAL_REFRESH_TOKEN"}},
					&cli.DurationFlag{Name: "expires-in", Usage: "lifetime of the access token"},
				},
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return cli.Exit("expected <platform> <name>", 2)
					}
					a, err := newApp(c)
					if err != nil {
						return err
					}
					defer a.closeWithTimeout()

					acc := &internal.Account{
						Platform:     c.Args().Get(0),
						Name:         c.Args().Get(1),
						CalendarID:   c.String("calendar-id"),
						Endpoint:     c.String("endpoint"),
						AccessToken:  c.String("access-token"),
						RefreshToken: c.String("refresh-token"),
					}
					if d := c.Duration("expires-in"); d > 0 {
						acc.Expiry = time.Now().Add(d)
					}
					acc, err = a.accounts.Add(c.Context, acc)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "account %s linked\n", acc.ID())
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Unlink a calendar. Events already written stay on it.",
				ArgsUsage: "<platform/name>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("expected an account id", 2)
					}
					a, err := newApp(c)
					if err != nil {
						return err
					}
					defer a.closeWithTimeout()
					return a.accounts.Remove(c.Context, c.Args().First())
				},
			},
		},
	}
}
