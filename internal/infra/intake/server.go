// Package intake accepts requests over HTTP and from a drop directory and
// queues them for the assistant.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"home-voice/config"
	"home-voice/internal/application"
	"home-voice/internal/domain"
)

const (
	queueSize       = 10
	maxTextBytes    = 1024
	maxAlexaBytes   = 4096
	shutdownTimeout = 10 * time.Second
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a named dependency to GET /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// WithoutAudio makes POST /audio answer 501 when nothing can transcribe it.
func WithoutAudio() Option {
	return func(s *Server) {
		s.audioDisabled = true
	}
}

// Server is the HTTP request source. Queued endpoints feed Next; POST
// /commands bypasses intent parsing and dispatches a batch directly.
type Server struct {
	cfg     config.HTTPConfig
	sender  application.CommandSender
	devices application.DeviceCatalog
	checks  map[string]HealthCheck
	logger  *slog.Logger

	audioDisabled bool

	requests  chan application.Request
	router    chi.Router
	server    *http.Server
	mu      sync.Mutex
	running bool

	// queueMu guards closed; enqueue holds it for reading so Stop never
	// closes requests under a sender.
	queueMu sync.RWMutex
	closed  bool
}

func NewServer(cfg config.HTTPConfig, sender application.CommandSender, devices application.DeviceCatalog, logger *slog.Logger, opts ...Option) (*Server, error) {
	window, err := time.ParseDuration(cfg.RateWindow)
	if err != nil {
		return nil, fmt.Errorf("parsing rate window %q: %w", cfg.RateWindow, err)
	}

	s := &Server{
		cfg:      cfg,
		sender:   sender,
		devices:  devices,
		checks:   make(map[string]HealthCheck),
		logger:   logger,
		requests: make(chan application.Request, queueSize),
	}
	for _, opt := range opts {
		opt(s)
	}

	limiter := NewRateLimiter(cfg.RateLimit, window)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/text", s.handleText)
		r.Post("/audio", s.handleAudio)

		r.Group(func(r chi.Router) {
			r.Use(s.tokenMiddleware)
			r.Post("/alexa", s.handleAlexa)
			r.With(middleware.AllowContentType("application/json")).Post("/commands", s.handleCommands)
		})
	})

	r.Get("/devices", s.handleDevices)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s, nil
}

func (s *Server) Name() string {
	return "http"
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP intake starting", "addr", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := s.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	s.closeQueue()
	s.running = false
	return nil
}

func (s *Server) Next(ctx context.Context) (application.Request, error) {
	select {
	case <-ctx.Done():
		return application.Request{}, ctx.Err()
	case req, ok := <-s.requests:
		if !ok {
			return application.Request{}, application.ErrSourceClosed
		}
		return req, nil
	}
}

func (s *Server) closeQueue() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.requests)
	}
}

// enqueue reports false when the queue is full or already closed.
func (s *Server) enqueue(req application.Request) bool {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.requests <- req:
		return true
	default:
		return false
	}
}

type textBody struct {
	Text   string `json:"text"`
	UserID string `json:"user_id"`
}

// readText accepts a plain body or a JSON {"text", "user_id"} object.
func readText(r *http.Request, limit int64) (textBody, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return textBody{}, fmt.Errorf("reading body: %w", err)
	}

	body := textBody{UserID: r.Header.Get("X-User-ID")}
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var decoded textBody
		if err := json.Unmarshal(data, &decoded); err != nil {
			return textBody{}, fmt.Errorf("decoding body: %w", err)
		}
		body.Text = decoded.Text
		if decoded.UserID != "" {
			body.UserID = decoded.UserID
		}
	} else {
		body.Text = string(data)
	}

	body.Text = strings.TrimSpace(body.Text)
	return body, nil
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	body, err := readText(r, maxTextBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "empty text")
		return
	}

	req := application.Request{
		ID:     application.RequestID(r.Context()),
		Text:   body.Text,
		UserID: body.UserID,
		Origin: "http",
	}
	if !s.enqueue(req) {
		writeError(w, http.StatusServiceUnavailable, "queue full, try again")
		return
	}

	s.logger.Info("received text command via HTTP", "text", body.Text, "request_id", req.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "received",
		"id":     req.ID,
		"text":   body.Text,
	})
}

func (s *Server) handleAlexa(w http.ResponseWriter, r *http.Request) {
	body, err := readText(r, maxAlexaBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "empty text")
		return
	}

	req := application.Request{
		ID:     application.RequestID(r.Context()),
		Text:   body.Text,
		UserID: body.UserID,
		Origin: "alexa",
	}
	if !s.enqueue(req) {
		writeError(w, http.StatusServiceUnavailable, "queue full")
		return
	}

	s.logger.Info("received command from Alexa", "text", body.Text, "request_id", req.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "ok",
		"id":      req.ID,
		"message": "Command received",
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.audioDisabled {
		writeError(w, http.StatusNotImplemented, "speech-to-text not configured")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("reading audio body", "error", err)
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio")
		return
	}

	req := application.Request{
		ID:     application.RequestID(r.Context()),
		Audio:  data,
		UserID: r.Header.Get("X-User-ID"),
		Origin: "http",
	}
	if !s.enqueue(req) {
		writeError(w, http.StatusServiceUnavailable, "queue full, try again")
		return
	}

	s.logger.Info("received audio via HTTP", "bytes", len(data), "request_id", req.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "received",
		"id":     req.ID,
		"bytes":  len(data),
	})
}

type commandsResponse struct {
	RequestID string                 `json:"request_id"`
	Results   []domain.CommandResult `json:"results"`
	Succeeded int                    `json:"succeeded"`
	Error     string                 `json:"error,omitempty"`
}

// handleCommands dispatches a ready-made batch and answers with the results.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	batch, err := domain.ParseBatch(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := application.SendOptions{
		Debug:  r.URL.Query().Get("debug") == "true",
		UserID: r.Header.Get("X-User-ID"),
	}

	resp := commandsResponse{RequestID: application.RequestID(r.Context())}
	results, err := s.sender.SendCommands(r.Context(), batch, opts)
	resp.Results = results
	resp.Succeeded = domain.CountSucceeded(results)
	if resp.Results == nil {
		resp.Results = []domain.CommandResult{}
	}

	if err != nil {
		s.logger.Error("dispatching batch", "error", err, "request_id", resp.RequestID)
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.devices.GenerateDevicesPromptFragment())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK
	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			if running {
				status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, statusCode, map[string]any{
		"status":     status,
		"running":    running,
		"queue_size": len(s.requests),
		"checks":     checks,
	})
}
