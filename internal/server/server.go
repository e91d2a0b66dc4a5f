package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/ssechat/internal/hub"
)

// DefaultShutdownTimeout bounds how long Run waits for connections to drain.
const DefaultShutdownTimeout = 10 * time.Second

// Server wires the broadcast hub to its HTTP endpoints.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	log      zerolog.Logger
	origins  originPolicy
	limiters *limiterSet
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	closing    bool

	// wg tracks WebSocket pump goroutines, which outlive their handlers.
	// Add only happens under mu while closing is false.
	wg sync.WaitGroup
}

// New creates a Server with its own hub. A nil cfg uses the defaults.
func New(cfg *Config, log zerolog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := sanitizeConfig(*cfg)

	s := &Server{
		cfg:      c,
		hub:      hub.New(log.With().Str("component", "hub").Logger()),
		log:      log,
		origins:  newOriginPolicy(c.AllowedOrigins, log),
		limiters: newLimiterSet(c.RateLimit),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the server's broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Handler returns the routed handler wrapped in the standard middleware.
func (s *Server) Handler() http.Handler {
	return chain(s.routes(), recoverer(s.log), requestLogger(s.log))
}

// Run listens on the configured port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := CreateServer(s.cfg.Port, s.Handler())
	srv.RegisterOnShutdown(s.hub.Shutdown)

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- StartServer(s.log, srv)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.hub.Shutdown()
		return fmt.Errorf("listen on %s: %w", s.cfg.Port, err)
	case <-ctx.Done():
	}

	return s.Shutdown(DefaultShutdownTimeout)
}

// Shutdown ends every subscription, stops the HTTP server if Run started one,
// and waits for WebSocket connections to finish or the timeout to elapse.
//
// The hub goes first: SSE responses never become idle on their own, so the
// HTTP server could not drain while they are attached.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info().Int("subscribers", s.hub.Len()).Msg("initiating shutdown")

	s.mu.Lock()
	s.closing = true
	srv := s.httpServer
	s.mu.Unlock()

	s.hub.Shutdown()

	var errs []error
	if srv != nil {
		if err := ShutdownServer(s.log, srv, timeout); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("shutdown completed")
	case <-time.After(timeout):
		s.log.Warn().Msg("shutdown timeout reached, some connections may still be open")
		errs = append(errs, context.DeadlineExceeded)
	}

	return errors.Join(errs...)
}

// trackPumps reserves wait group slots for one connection's read and write
// pumps. It returns false once Shutdown has started.
func (s *Server) trackPumps() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.wg.Add(2)
	return true
}
