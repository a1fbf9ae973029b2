package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"home-voice/internal/domain"
)

var ErrNoSources = errors.New("no request sources configured")

const sourceRetryDelay = time.Second

type Assistant struct {
	sources   []Source
	stt       SpeechToText
	intent    IntentParser
	sender    CommandSender
	devices   DeviceCatalog
	functions FunctionCatalog
	notifier  Notifier
	recorder  ResultRecorder
	logger    *slog.Logger
}

// NewAssistant wires the request loop. functions may be nil when no simple
// functions are available.
func NewAssistant(
	sources []Source,
	stt SpeechToText,
	intent IntentParser,
	sender CommandSender,
	devices DeviceCatalog,
	functions FunctionCatalog,
	notifier Notifier,
	logger *slog.Logger,
) *Assistant {
	return &Assistant{
		sources:   sources,
		stt:       stt,
		intent:    intent,
		sender:    sender,
		devices:   devices,
		functions: functions,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run starts every source and handles their requests one at a time until
// ctx is cancelled.
func (a *Assistant) Run(ctx context.Context) error {
	if len(a.sources) == 0 {
		return ErrNoSources
	}

	requests := make(chan Request)
	for _, src := range a.sources {
		a.logger.Info("starting request source", "source", src.Name())
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("starting %s source: %w", src.Name(), err)
		}
		defer src.Stop()

		go a.pump(ctx, src, requests)
	}

	a.logger.Info("assistant ready, waiting for requests")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-requests:
			if _, err := a.Handle(ctx, req); err != nil {
				a.logger.Error("processing request", "request_id", req.ID, "error", err)
			}
		}
	}
}

func (a *Assistant) pump(ctx context.Context, src Source, out chan<- Request) {
	for {
		req, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) {
				return
			}
			a.logger.Error("reading request", "source", src.Name(), "error", err)
			select {
			case <-time.After(sourceRetryDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case out <- req:
		case <-ctx.Done():
			return
		}
	}
}

// SetRecorder makes Handle report every dispatched batch to r.
func (a *Assistant) SetRecorder(r ResultRecorder) {
	a.recorder = r
}

// Handle interprets one request, dispatches the resulting commands and sends
// a summary to the notifier. A request that yields no commands returns nil
// results and no error.
func (a *Assistant) Handle(ctx context.Context, req Request) ([]domain.CommandResult, error) {
	if req.ID != "" {
		ctx = WithRequestID(ctx, req.ID)
	}
	logger := a.logger.With("request_id", req.ID, "origin", req.Origin)

	text := strings.TrimSpace(req.Text)
	if text == "" {
		if len(req.Audio) == 0 {
			return nil, nil
		}
		logger.Info("received audio", "bytes", len(req.Audio))

		var err error
		text, err = a.stt.Transcribe(ctx, req.Audio)
		if err != nil {
			return nil, fmt.Errorf("transcribing: %w", err)
		}
		logger.Info("transcribed", "text", text)
	}

	batch, err := a.intent.Parse(ctx, text, a.intentContext())
	if err != nil {
		return nil, fmt.Errorf("parsing intent: %w", err)
	}
	logger.Info("parsed intent", "text", text, "commands", len(batch.Commands))

	if len(batch.Commands) == 0 {
		logger.Warn("no commands for request, skipping", "text", text)
		return nil, nil
	}

	results, err := a.sender.SendCommands(ctx, batch, SendOptions{UserID: req.UserID})
	if a.recorder != nil && len(results) > 0 {
		a.recorder.Record(ctx, req, results)
	}
	if err != nil {
		a.notify(ctx, logger, fmt.Sprintf("Error: %s", err.Error()))
		return results, fmt.Errorf("sending commands: %w", err)
	}

	a.notify(ctx, logger, Summarize(results))
	return results, nil
}

func (a *Assistant) intentContext() IntentContext {
	ic := IntentContext{Devices: a.devices.GenerateDevicesPromptFragment()}
	if a.functions != nil {
		ic.Functions = a.functions.FunctionsPromptFragment()
	}
	return ic
}

func (a *Assistant) notify(ctx context.Context, logger *slog.Logger, message string) {
	if message == "" {
		return
	}
	if err := a.notifier.Notify(ctx, message); err != nil {
		logger.Error("notifying result", "error", err)
	}
}
