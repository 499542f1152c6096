// Package api exposes the webhook surface of the lead-intake service.
//
// Every route is a thin decode/validate/respond wrapper: the flow orchestrator
// owns the exchange semantics and the availability service owns slot
// computation. Handlers translate internal error values into the JSON envelope
// and status code; nothing below this package writes HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hannahlabs/leadflow/internal/availability"
	"github.com/hannahlabs/leadflow/internal/flow"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful shutdown once the run context ends.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the webhook endpoints over net/http.
type Server struct {
	addr         string
	orchestrator *flow.Orchestrator
	availability *availability.Service
}

// NewServer creates an API server over the given orchestrator and
// availability service.
func NewServer(orch *flow.Orchestrator, avail *availability.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{addr: cfg.Addr, orchestrator: orch, availability: avail}
}

// Handler returns the route table. Exposed separately from Run so tests can
// drive it through httptest without opening a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/inbound-sms", s.inboundSMSHandler)
	mux.HandleFunc("/v1/inbound-sms/agent-faq", s.agentFAQHandler)
	mux.HandleFunc("/v1/web-lead", s.webLeadHandler)
	mux.HandleFunc("/v1/inbound/call-ended", s.callEndedHandler)
	mux.HandleFunc("/v1/email-scraping", s.emailScrapingHandler)
	mux.HandleFunc("/v1/availability", s.availabilityHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
