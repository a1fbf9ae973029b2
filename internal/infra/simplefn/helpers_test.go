package simplefn_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"home-voice/config"
	"home-voice/internal/application"
	"home-voice/internal/domain"
	"home-voice/internal/infra/simplefn"
	"home-voice/internal/infra/store"
)

var testSchema = map[string]simplefn.SchemaEntry{
	"virtual.weather":    {Actions: []string{"home_weather", "get_weather"}, DisplayName: "Weather"},
	"virtual.calendar":   {Actions: []string{"add_event", "get_events", "manage_event", "list_calendar"}, DisplayName: "Calendar"},
	"virtual.automation": {Actions: []string{"create_automation", "trigger_automation"}, DisplayName: "Automations"},
}

// fixed local clock: Wednesday 2026-03-04 10:30
var testNow = time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() config.SimpleFunctionsConfig {
	return config.SimpleFunctionsConfig{
		AllowInternetSearches: true,
		Timeout:               2 * time.Second,
		MaxResults:            2,
		UserAgent:             "home-voice-test/1.0",
		Websites:              map[string]string{},
	}
}

func openStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(config.StorageConfig{Path: filepath.Join(t.TempDir(), "fn.db"), BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func newRegistry(t *testing.T, cfg config.SimpleFunctionsConfig, opts ...simplefn.Option) *simplefn.Registry {
	t.Helper()
	opts = append([]simplefn.Option{
		simplefn.WithSchema(testSchema),
		simplefn.WithClock(func() time.Time { return testNow }),
	}, opts...)
	return simplefn.New(cfg, discardLogger(), opts...)
}

func call(t *testing.T, r *simplefn.Registry, name string, args map[string]any) string {
	t.Helper()
	out, err := r.Call(context.Background(), name, args)
	require.NoError(t, err)
	s, ok := out.(string)
	require.True(t, ok, "expected string reply, got %T", out)
	return s
}

type staticLocation struct {
	loc domain.Location
	ok  bool
}

func (s staticLocation) HomeLocation() (domain.Location, bool) {
	return s.loc, s.ok
}

type recordingSender struct {
	batches []domain.CommandBatch
	opts    []application.SendOptions
	reply   func(domain.CommandBatch) []domain.CommandResult
	err     error
}

func (s *recordingSender) SendCommands(_ context.Context, batch domain.CommandBatch, opts application.SendOptions) ([]domain.CommandResult, error) {
	s.batches = append(s.batches, batch)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	if s.reply != nil {
		return s.reply(batch), nil
	}
	results := make([]domain.CommandResult, len(batch.Commands))
	for i, c := range batch.Commands {
		results[i] = domain.SucceededResult(c.Target, c.Action)
	}
	return results, nil
}
