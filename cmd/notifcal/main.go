package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "notifcal",
		Usage: "Turn device notifications into calendar events on every linked calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "notifcal.yaml", EnvVars: []string{"NOTIFCAL_CONFIG"}, Usage: "YAML config file, created with defaults when missing"},
			&cli.StringFlag{Name: "db", Usage: "database DSN, overrides store.dsn"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error, overrides log_level"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			syncCommand(),
			ingestCommand(),
			accountsCommand(),
			eventsCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
