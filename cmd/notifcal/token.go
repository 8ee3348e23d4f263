package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/notifcal/internal/config"
	"github.com/guilherme-santos/notifcal/internal/httpapi"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a bearer token for the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Value: "notifcal", Usage: "token subject"},
			&cli.DurationFlag{Name: "ttl", Value: 30 * 24 * time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return cli.Exit("auth.jwt_secret is not configured", 2)
			}
			tok, err := httpapi.CreateAccessToken(cfg.Auth.JWTSecret, c.String("subject"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}
