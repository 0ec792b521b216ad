package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/discord"
	"github.com/MikeSquared-Agency/scribe/internal/dispatch"
	"github.com/MikeSquared-Agency/scribe/internal/engine"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/metrics"
	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
	"github.com/MikeSquared-Agency/scribe/internal/slack"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// app holds the long-lived collaborators shared by every command.
type app struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	db       *store.Store   // nil without DATABASE_URL
	hermes   *hermes.Client // nil without NATS_URL
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}
	observers := []pipeline.Observer{a.metrics}

	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		observers = append(observers, store.NewRecorder(db, logger))
		logger.Info("database connected")
	}

	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.hermes = hc
		observers = append(observers, hc)
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	dc := discord.NewClient(cfg.DiscordToken, cfg.DiscordAPIURL, logger)

	var sink dispatch.Sink
	switch cfg.Sink {
	case "slack":
		sink = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack sink ready", "channel", cfg.SlackChannel)
	default:
		sink = dc.PosterFor(cfg.TargetChannelID)
		logger.Info("discord sink ready", "channel", cfg.TargetChannelID)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("analysis engine ready", "engine", cfg.Engine)

	a.pipeline = pipeline.New(dc, engine.NewPipe(eng, logger), sink, pipeline.Options{
		SourceChannelID: cfg.SourceChannelID,
		RollingWindow:   cfg.RollingWindow,
		ClockSkew:       cfg.ClockSkew,
		MaxChunkSize:    cfg.MaxChunkSize,
		PageSize:        cfg.PageSize,
	}, logger, observers...)

	return a, nil
}

func newEngine(cfg config.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case "anthropic":
		return engine.NewLLM(anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)), nil
	case "process":
		p, err := engine.NewProcess(cfg.EngineCommand)
		if err != nil {
			return nil, fmt.Errorf("engine command: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

func (a *app) Close() {
	if a.hermes != nil {
		a.hermes.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
