// Package status serves the operational HTTP surface: a JSON status report
// and the Prometheus metrics endpoint.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wikistream/pkg/wikistream"
)

const shutdownTimeout = 10 * time.Second

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// LanguageLister reports the languages with a live upstream connection.
type LanguageLister interface {
	ActiveLanguages() []wikistream.LanguageKey
}

// Report is the GET /status response body.
type Report struct {
	Status          string   `json:"status"`
	UptimeSeconds   int64    `json:"uptimeSeconds"`
	ActiveLanguages []string `json:"activeLanguages"`
}

// Option mutates server configuration.
type Option func(*Server)

// WithLogger sets the logger for serve and shutdown failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for uptime. Tests pin it.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Server is the operational HTTP endpoint.
type Server struct {
	addr      string
	languages LanguageLister
	logger    *slog.Logger
	clock     func() time.Time
	startedAt time.Time

	http *http.Server
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, languages LanguageLister, options ...Option) (*Server, error) {
	if languages == nil {
		return nil, errors.New("status: nil language lister")
	}
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:      addr,
		languages: languages,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, option := range options {
		option(s)
	}
	s.startedAt = s.clock()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.http = &http.Server{Addr: addr, Handler: mux}

	return s, nil
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "status server listening", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
			return
		}
		errs <- nil
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return <-errs
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	langs := s.languages.ActiveLanguages()
	report := Report{
		Status:          "ok",
		UptimeSeconds:   int64(s.clock().Sub(s.startedAt).Seconds()),
		ActiveLanguages: make([]string, 0, len(langs)),
	}
	for _, lang := range langs {
		report.ActiveLanguages = append(report.ActiveLanguages, string(lang))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.ErrorContext(r.Context(), "writing status response failed", "error", err)
	}
}
