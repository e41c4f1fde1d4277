package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"

	"flairbot"
	"flairbot/auditstore"
	"flairbot/reddit"
)

func main() {
	app := cli.App{
		Name:   "flairbot",
		Usage:  "reminds and removes unflaired subreddit posts",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "subreddit",
				EnvVars:  []string{"FLAIRBOT_SUBREDDIT"},
				Required: true,
			},
			&cli.IntFlag{
				Name:    "interval",
				Usage:   "seconds between run starts",
				EnvVars: []string{"FLAIRBOT_INTERVAL"},
				Value:   300,
			},
			&cli.IntFlag{
				Name:    "reminder-age",
				Usage:   "seconds before an unflaired post gets a reminder",
				EnvVars: []string{"FLAIRBOT_REMINDER_AGE"},
				Value:   600,
			},
			&cli.IntFlag{
				Name:    "removal-age",
				Usage:   "seconds before an unflaired post is removed",
				EnvVars: []string{"FLAIRBOT_REMOVAL_AGE"},
				Value:   1800,
			},
			&cli.IntFlag{
				Name:    "posts-per-run",
				EnvVars: []string{"FLAIRBOT_POSTS_PER_RUN"},
				Value:   25,
			},
			&cli.IntFlag{
				Name:    "ledger-retention-factor",
				Usage:   "keep at most this many batches worth of reminded ids",
				EnvVars: []string{"FLAIRBOT_LEDGER_RETENTION_FACTOR"},
				Value:   3,
			},
			&cli.StringFlag{
				Name:    "state-file",
				EnvVars: []string{"FLAIRBOT_STATE_FILE"},
				Value:   "flairbot_state.json",
			},
			&cli.StringFlag{
				Name:    "templates-file",
				Usage:   "optional toml file overriding message templates",
				EnvVars: []string{"FLAIRBOT_TEMPLATES_FILE"},
			},
			&cli.StringFlag{
				Name:    "audit-db",
				Usage:   "sqlite file recording actions taken; empty disables",
				EnvVars: []string{"FLAIRBOT_AUDIT_DB"},
				Value:   "flairbot_audit.db",
			},
			&cli.StringFlag{
				Name:    "tracking-start",
				Usage:   "override the cutoff before which posts are never acted on",
				EnvVars: []string{"FLAIRBOT_TRACKING_START"},
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				EnvVars: []string{"FLAIRBOT_DRY_RUN"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				EnvVars: []string{"FLAIRBOT_METRICS_ADDR"},
				Value:   ":8000",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"FLAIRBOT_LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "reddit-client-id",
				EnvVars:  []string{"FLAIRBOT_REDDIT_CLIENT_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reddit-client-secret",
				EnvVars:  []string{"FLAIRBOT_REDDIT_CLIENT_SECRET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reddit-username",
				EnvVars:  []string{"FLAIRBOT_REDDIT_USERNAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "reddit-password",
				EnvVars:  []string{"FLAIRBOT_REDDIT_PASSWORD"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "user-agent",
				EnvVars: []string{"FLAIRBOT_USER_AGENT"},
				Value:   "flairbot/0.0.1",
			},
		},
		ErrWriter: os.Stderr,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var run = func(cmd *cli.Context) error {
	ctx, cancel := context.WithCancel(cmd.Context)
	defer cancel()

	var level slog.Level
	switch cmd.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	l := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	if cmd.Int("interval") <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if cmd.Int("reminder-age") >= cmd.Int("removal-age") {
		return fmt.Errorf("reminder-age must be smaller than removal-age")
	}

	client := reddit.NewClient(reddit.ClientArgs{
		ClientID:     cmd.String("reddit-client-id"),
		ClientSecret: cmd.String("reddit-client-secret"),
		Username:     cmd.String("reddit-username"),
		Password:     cmd.String("reddit-password"),
		UserAgent:    cmd.String("user-agent"),
		Subreddit:    cmd.String("subreddit"),
	})

	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	me, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm identity: %w", err)
	}
	l.Info("logged in", "user", "/u/"+me, "subreddit", "/r/"+client.Subreddit())

	ledger, err := flairbot.LoadLedger(cmd.String("state-file"), time.Now())
	if err != nil {
		l.Warn("could not recover state from last run", "error", err)
	}
	if ledger.Fresh() {
		l.Info("starting fresh", "tracking_start", ledger.TrackingStart())
	} else {
		l.Info("recovered state from last run", "reminded", ledger.Len(), "tracking_start", ledger.TrackingStart())
	}

	if ts := cmd.String("tracking-start"); ts != "" {
		t, err := dateparse.ParseAny(ts)
		if err != nil {
			return fmt.Errorf("invalid tracking-start %q: %w", ts, err)
		}
		ledger.SetTrackingStart(t)
		l.Info("tracking start overridden", "tracking_start", t)
	}

	templates := flairbot.DefaultTemplates()
	var specialCase *flairbot.SpecialCase
	if path := cmd.String("templates-file"); path != "" {
		templates, specialCase, err = flairbot.LoadTemplatesFile(path)
		if err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}
	}

	var audit *auditstore.Store
	if path := cmd.String("audit-db"); path != "" {
		audit, err = auditstore.New(&auditstore.Args{
			Path:   path,
			Logger: l,
		})
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer audit.Close()
	}

	if cmd.Bool("dry-run") {
		l.Info("performing a dry run, no replies or removals will be made")
	}

	f, err := flairbot.New(&flairbot.Args{
		Logger:    l,
		Client:    client,
		Ledger:    ledger,
		Templates: templates,
		Audit:     audit,
		Policy: flairbot.Policy{
			ReminderAge:     time.Duration(cmd.Int("reminder-age")) * time.Second,
			RemovalAge:      time.Duration(cmd.Int("removal-age")) * time.Second,
			BatchSize:       cmd.Int("posts-per-run"),
			RetentionFactor: cmd.Int("ledger-retention-factor"),
			SpecialCase:     specialCase,
		},
		Interval:    time.Duration(cmd.Int("interval")) * time.Second,
		MetricsAddr: cmd.String("metrics-addr"),
		DryRun:      cmd.Bool("dry-run"),
	})
	if err != nil {
		return err
	}

	go func() {
		exitSignals := make(chan os.Signal, 1)
		signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)

		sig := <-exitSignals

		l.Info("received os exit signal", "signal", sig)
		cancel()
	}()

	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
