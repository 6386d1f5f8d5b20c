package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/anderson/internal/anthropic"
	"github.com/MikeSquared-Agency/anderson/internal/api"
	"github.com/MikeSquared-Agency/anderson/internal/audit"
	"github.com/MikeSquared-Agency/anderson/internal/batch"
	"github.com/MikeSquared-Agency/anderson/internal/config"
	"github.com/MikeSquared-Agency/anderson/internal/events"
	"github.com/MikeSquared-Agency/anderson/internal/notify"
	"github.com/MikeSquared-Agency/anderson/internal/pipeline"
	"github.com/MikeSquared-Agency/anderson/internal/policy"
	"github.com/MikeSquared-Agency/anderson/internal/provider"
	"github.com/MikeSquared-Agency/anderson/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("anderson starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Providers. Selection happens here and nowhere else.
	var transcriber provider.Transcriber
	switch cfg.Transcriber {
	case "mock":
		transcriber = provider.NewMock()
		slog.Warn("using mock transcriber")
	default:
		transcriber = provider.NewEchoTranscriber(cfg.EchoURL)
		slog.Info("echo transcriber ready", "url", cfg.EchoURL)
	}

	var evaluator provider.Evaluator
	switch cfg.Evaluator {
	case "mock":
		evaluator = provider.NewMock()
		slog.Warn("using mock evaluator")
	default:
		if cfg.AnthropicAPIKey == "" {
			slog.Error("ANTHROPIC_API_KEY is required")
			os.Exit(1)
		}
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		evaluator = provider.NewClaudeEvaluator(llm)
		slog.Info("anthropic evaluator ready", "model", cfg.AnthropicModel)
	}

	// NATS
	eventsClient, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventsClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Slack poster (optional: anderson works without Slack, just no
	// reaction-driven review loop)
	var poster *notify.Poster
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster = notify.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, reviews only through the API")
	}

	aud := audit.New(db, slog.Default())
	engine := policy.NewEngine(evaluator, cfg.AnthropicModel, cfg.ViolationThreshold, slog.Default())

	// Pipeline controller and its dispatch pool
	ctrl := pipeline.New(db, transcriber, engine, aud, eventsClient, poster, pipeline.Config{
		Transcribe: provider.TranscribeOptions{
			Language:    cfg.Language,
			WordTimings: cfg.WordTimings,
		},
		MinConfidence:   cfg.MinConfidence,
		ReviewThreshold: cfg.ReviewThreshold,
		RetryCap:        cfg.RetryCap,
		RetryBase:       time.Duration(cfg.RetryBaseMillis) * time.Millisecond,
	}, slog.Default())
	disp := pipeline.NewDispatcher(ctrl, cfg.PipelineWorkers, slog.Default())

	// Bulk imports and reprocess sweeps
	orch := batch.NewOrchestrator(db, ctrl, cfg.ImportWorkers, aud, eventsClient, slog.Default())

	// Subscribe to upload events
	if err := eventsClient.Subscribe(events.SubjectRecordingUploaded, disp.HandleUploaded); err != nil {
		slog.Error("failed to subscribe to upload events", "error", err)
		os.Exit(1)
	}

	// Subscribe to Slack reactions for the review loop
	if err := eventsClient.Subscribe(events.SubjectSlackReaction, ctrl.HandleReaction); err != nil {
		slog.Error("failed to subscribe to slack reactions", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(api.Config{
		Port:        cfg.Port,
		APIToken:    cfg.APIToken,
		Transcriber: cfg.Transcriber,
		Evaluator:   cfg.Evaluator,
	}, db, ctrl, disp, orch, aud, eventsClient, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := eventsClient.Publish(events.SubjectAgentRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"mode":      "active",
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("anderson ready", "port", cfg.Port, "transcriber", cfg.Transcriber, "evaluator", cfg.Evaluator)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	disp.Stop()
	slog.Info("anderson stopped")
}

func setupLogging(level string) {
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
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
