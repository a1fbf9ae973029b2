// Package influxdb records every dispatched command as a time-series point
// so command outcomes can be charted per device.
package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"home-voice/config"
	"home-voice/internal/application"
	"home-voice/internal/domain"
)

const (
	measurement        = "commands"
	connectTimeout     = 10 * time.Second
	pingTimeout        = 5 * time.Second
	millisecondsPerSec = 1000
)

// History is an application.ResultRecorder backed by the non-blocking
// InfluxDB write API. Points are batched and flushed in the background.
type History struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	connected bool
}

// Connect pings the server and starts the batching writer.
func Connect(cfg config.InfluxDBConfig, logger *slog.Logger) (*History, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := max(cfg.BatchSize, 1)
	flushInterval := max(cfg.FlushInterval, 1)

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSec),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	h := newHistory(client, client.WriteAPI(cfg.Org, cfg.Bucket), logger)
	logger.Info("command history enabled", "url", cfg.URL, "bucket", cfg.Bucket)
	return h, nil
}

func newHistory(client influxdb2.Client, writeAPI api.WriteAPI, logger *slog.Logger) *History {
	h := &History{
		client:    client,
		writeAPI:  writeAPI,
		logger:    logger,
		now:       time.Now,
		connected: true,
	}
	if errs := writeAPI.Errors(); errs != nil {
		go h.logWriteErrors(errs)
	}
	return h
}

func (h *History) logWriteErrors(errs <-chan error) {
	for err := range errs {
		h.logger.Warn("command history write failed", "error", err)
	}
}

// Record writes one point per result. It never blocks on the network.
func (h *History) Record(_ context.Context, req application.Request, results []domain.CommandResult) {
	if !h.IsConnected() {
		return
	}

	ts := h.now()
	for _, r := range results {
		h.writeAPI.WritePoint(resultPoint(req, r, ts))
	}
}

func resultPoint(req application.Request, r domain.CommandResult, ts time.Time) *write.Point {
	kind := r.Type
	if kind == "" {
		kind = domain.KindDevice
	}
	outcome := "success"
	if r.Failed() {
		outcome = "error"
	}
	origin := req.Origin
	if origin == "" {
		origin = "unknown"
	}

	fields := map[string]any{
		"succeeded": !r.Failed(),
	}
	if req.ID != "" {
		fields["request_id"] = req.ID
	}
	if r.Status != 0 {
		fields["status"] = r.Status
	}
	if r.Error != "" {
		fields["error"] = r.Error
	}

	return write.NewPoint(
		measurement,
		map[string]string{
			"target":  r.Target,
			"action":  r.Action,
			"kind":    string(kind),
			"outcome": outcome,
			"origin":  origin,
		},
		fields,
		ts,
	)
}

// HealthCheck pings the server.
func (h *History) HealthCheck(ctx context.Context) error {
	if !h.IsConnected() || h.client == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := h.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

func (h *History) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Close flushes pending points and closes the client.
func (h *History) Close() {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	h.connected = false
	h.mu.Unlock()

	h.writeAPI.Flush()
	if h.client != nil {
		h.client.Close()
	}
}
