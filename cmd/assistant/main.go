package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"home-voice/config"
)

func main() {
	if err := execute(newRootCmd(), slog.Default()); err != nil {
		os.Exit(1)
	}
}

// execute runs root and logs the error cobra was told not to print.
func execute(root *cobra.Command, logger *slog.Logger) error {
	err := root.Execute()
	if err != nil {
		logger.Error("command failed", "error", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Voice command dispatcher for Home Assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	load := func() (*config.Config, *slog.Logger, error) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			slog.Warn("loading .env", "error", err)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			slog.Error("loading config", "error", err)
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, setupLogger(cfg.Log), nil
	}

	root.AddCommand(
		newServeCmd(load),
		newDevicesCmd(load),
		newSendCmd(load),
	)
	return root
}

type loader func() (*config.Config, *slog.Logger, error)

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
