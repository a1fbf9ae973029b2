package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"home-voice/config"
	"home-voice/internal/application"
	"home-voice/internal/infra/anthropic"
	"home-voice/internal/infra/gemini"
	"home-voice/internal/infra/influxdb"
	"home-voice/internal/infra/intake"
	"home-voice/internal/infra/mqtt"
	"home-voice/internal/infra/openai"
	"home-voice/internal/infra/pushover"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, cfg, logger); err != nil {
				logger.Error("assistant error", "error", err)
				return err
			}
			logger.Info("shutting down")
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.StartPeriodicRefresh(ctx, cfg.HomeAssistant.RefreshSchedule); err != nil {
		return err
	}

	intent, err := newIntentParser(cfg)
	if err != nil {
		return err
	}

	notifiers := application.MultiNotifier{}
	if cfg.Pushover.Enabled {
		notifiers = append(notifiers, pushover.NewClient(cfg.Pushover))
	}
	if cfg.MQTT.Enabled {
		n, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer n.Close()
		notifiers = append(notifiers, n)
	}
	var notifier application.Notifier = &application.NoopNotifier{}
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	opts := []intake.Option{intake.WithHealthCheck("database", a.db.HealthCheck)}
	var history *influxdb.History
	if cfg.InfluxDB.Enabled {
		history, err = influxdb.Connect(cfg.InfluxDB, logger)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer history.Close()
		opts = append(opts, intake.WithHealthCheck("influxdb", history.HealthCheck))
	}

	stt := newSpeechToText(cfg)
	if _, ok := stt.(*application.NoopSTT); ok {
		opts = append(opts, intake.WithoutAudio())
	}

	server, err := intake.NewServer(cfg.HTTP, a.client, a.client, logger, opts...)
	if err != nil {
		return err
	}
	sources := []application.Source{server}
	if cfg.Inbox.Dir != "" {
		sources = append(sources, intake.NewInbox(cfg.Inbox, logger))
	}

	assistant := application.NewAssistant(
		sources,
		stt,
		intent,
		a.client,
		a.client,
		a.functions,
		notifier,
		logger,
	)
	if history != nil {
		assistant.SetRecorder(history)
	}

	logger.Info("starting home voice assistant",
		"intent_provider", cfg.Intent.Provider,
		"http_addr", cfg.HTTP.Addr,
		"inbox", cfg.Inbox.Dir,
	)

	if err := assistant.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newSpeechToText uses Whisper when an OpenAI key is configured.
func newSpeechToText(cfg *config.Config) application.SpeechToText {
	if cfg.OpenAI.APIKey == "" {
		return &application.NoopSTT{}
	}
	return openai.NewWhisperClient(cfg.OpenAI)
}

func newIntentParser(cfg *config.Config) (application.IntentParser, error) {
	switch cfg.Intent.Provider {
	case "anthropic":
		return anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model), nil
	case "gemini":
		return gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model), nil
	default:
		return nil, fmt.Errorf("unknown intent provider %q", cfg.Intent.Provider)
	}
}
