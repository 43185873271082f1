// ABOUTME: CLI entrypoint for the outreach pipeline service.
// ABOUTME: Wires config, store, stages, controller, optional cron schedule, and the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/2389-research/outreach/config"
	"github.com/2389-research/outreach/llm"
	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/stages"
	"github.com/2389-research/outreach/store"
	"github.com/2389-research/outreach/web"
)

var version = "dev"

func main() {
	loadDotEnv(".env")

	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		port        = flag.Int("port", 0, "Override listen port")
		dbPath      = flag.String("db", "", "Override SQLite database path")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("outreach %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "outreach: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rules := stages.NewRules(cfg.RulesPath, logger)

	var client llm.Client
	if cfg.OpenAIAPIKey != "" {
		client = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		logger.Info("AI mode available", "model", cfg.OpenAIModel)
	} else {
		logger.Info("no OpenAI API key set, AI mode disabled")
	}

	stg := stages.New(stages.Config{
		Store:  st,
		Rules:  rules,
		Client: client,
		Email: &stages.SMTPTransport{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		},
		DM:            stages.SimulatedDM{Logger: logger},
		Logger:        logger,
		RatePerMinute: cfg.RateLimitPerMinute,
		MaxRetries:    cfg.MaxRetries,
	})

	broadcaster := pipeline.NewBroadcaster(logger)
	controller := pipeline.NewController(st, broadcaster, stg.Pipeline(), logger)

	defaults := pipeline.RunConfig{
		DryRun:       cfg.DryRun,
		AIMode:       cfg.AIMode,
		Count:        cfg.DefaultCount,
		StageTimeout: cfg.StageTimeout,
	}

	if cfg.Schedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(cfg.Schedule, func() {
			if err := controller.Start(defaults); err != nil {
				logger.Warn("scheduled run skipped", "error", err)
			} else {
				logger.Info("scheduled run started", "schedule", cfg.Schedule)
			}
		}); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("run schedule active", "schedule", cfg.Schedule)
	}

	server := web.NewServer(web.ServerConfig{
		Addr:        cfg.Addr(),
		Store:       st,
		Controller:  controller,
		Broadcaster: broadcaster,
		Rules:       rules,
		Defaults:    defaults,
		Logger:      logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("outreach server listening", "addr", cfg.Addr(), "dry_run", cfg.DryRun)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
