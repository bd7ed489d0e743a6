// Package inspect serves the local inspection API: request history, a live
// SSE feed of tunnel traffic, and tunnel status. It binds a local port next
// to the tunnel and is meant for dashboards and curl, not for exposure
// through the tunnel itself.
package inspect

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/getburrow/burrow/pkg/history"
	"github.com/getburrow/burrow/pkg/logging"
	"github.com/getburrow/burrow/pkg/relay"
)

// DefaultAddr is the inspector's default listen address.
const DefaultAddr = "127.0.0.1:4040"

// StatusSource reports live tunnel state. Both relay transports satisfy it.
type StatusSource interface {
	IsConnected() bool
	PublicURL() string
	Tunnel() string
	Stats() *relay.Stats
}

// Config configures an inspector server.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string

	// Ledger is the request history backing the API. Required.
	Ledger *history.Ledger

	// Source reports tunnel state for the status endpoint. May be nil
	// before the tunnel is up.
	Source StatusSource

	// Backend is the local service URL shown in the status endpoint.
	Backend string

	// Version is reported by the status endpoint.
	Version string
}

// Server is the inspection API server.
type Server struct {
	addr    string
	ledger  *history.Ledger
	source  StatusSource
	backend string
	version string

	stream     *streamHub
	httpServer *http.Server
	startTime  time.Time
	log        *slog.Logger
}

// New creates an inspector server. The server does not listen until Start.
func New(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:    addr,
		ledger:  cfg.Ledger,
		source:  cfg.Source,
		backend: cfg.Backend,
		version: cfg.Version,
		stream:  newStreamHub(cfg.Ledger),
		log:     logging.Nop(),
	}

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     corsMiddleware(s.routes()),
		ReadTimeout: 30 * time.Second,
	}

	return s
}

// routes builds the API router. The stream route is registered before the
// {id} route so "stream" is not captured as a request ID.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/requests", s.handleListRequests).Methods("GET")
	api.HandleFunc("/requests", s.handleClearRequests).Methods("DELETE")
	api.Handle("/requests/stream", s.stream.handler()).Methods("GET")
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods("GET")

	return r
}

// Observer returns the observer that feeds the SSE stream. Wire it into the
// ledger's observer chain.
func (s *Server) Observer() history.Observer {
	return s.stream
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// SetSource sets the tunnel status source after construction. Useful when
// the inspector starts before the relay client exists.
func (s *Server) SetSource(source StatusSource) {
	s.source = source
}

// SetLogger sets the operational logger for the server.
func (s *Server) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	} else {
		s.log = logging.Nop()
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.startTime = time.Now()

	s.log.Info("starting inspector", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("inspector error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, closing any open stream connections.
func (s *Server) Stop() error {
	s.stream.close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
