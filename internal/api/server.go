// Package api provides the HTTP server for the WHEP gateway.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/whep-gateway/internal/audit"
	"github.com/nerrad567/whep-gateway/internal/device"
	"github.com/nerrad567/whep-gateway/internal/events"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/config"
	"github.com/nerrad567/whep-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/whep-gateway/internal/lifecycle"
	"github.com/nerrad567/whep-gateway/internal/refresh"
	"github.com/nerrad567/whep-gateway/internal/taskgroup"
	"github.com/nerrad567/whep-gateway/internal/whep"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultShutdownGrace bounds hook shutdown when Deps.ShutdownGrace is unset.
const defaultShutdownGrace = 10 * time.Second

// Refresher is the subset of the refresh supervisor the admin API uses.
type Refresher interface {
	Status() refresh.Status
	Trigger()
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WHEP      config.WHEPConfig
	WebSocket config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Registry  *device.Registry
	Client    device.Client

	// Optional collaborators. Nil disables the feature that needs them.
	Refresher Refresher
	Tasks     *taskgroup.Group // session monitors; nil disables monitoring
	Events    events.Publisher // defaults to an empty bus
	Hub       *Hub             // live event stream
	Audit     audit.Repository // GET /api/v1/sessions/audit
	Hooks     []lifecycle.Hook // started with the server, stopped in reverse on Close
	Listeners []net.Listener   // pre-bound sockets; empty means listen on Host:Port

	// RequestShutdown asks the process to stop. Used by POST /api/v1/admin/shutdown.
	RequestShutdown func()

	// ShutdownGrace bounds how long hooks may take to stop.
	ShutdownGrace time.Duration

	Version string
}

// Server is the HTTP server for the WHEP gateway.
//
// It manages the listeners, routes, middleware, and the lifecycle hooks
// bound to it. The server is created with New() and started with Start().
type Server struct {
	cfg             config.APIConfig
	secCfg          config.SecurityConfig
	logger          *logging.Logger
	registry        *device.Registry
	client          device.Client
	refresher       Refresher
	tasks           *taskgroup.Group
	events          events.Publisher
	hub             *Hub
	auditRepo       audit.Repository
	hooks           []lifecycle.Hook
	listeners       []net.Listener
	requestShutdown func()
	shutdownGrace   time.Duration
	rewriter        whep.Rewriter
	monitor         bool
	monitorInterval time.Duration
	version         string
	startTime       time.Time

	mu      sync.Mutex // Protects server and started
	server  *http.Server
	started bool
	serving sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, device client)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("device client is required")
	}

	s := &Server{
		cfg:             deps.Config,
		secCfg:          deps.Security,
		logger:          deps.Logger,
		registry:        deps.Registry,
		client:          deps.Client,
		refresher:       deps.Refresher,
		tasks:           deps.Tasks,
		events:          deps.Events,
		hub:             deps.Hub,
		auditRepo:       deps.Audit,
		listeners:       deps.Listeners,
		requestShutdown: deps.RequestShutdown,
		shutdownGrace:   deps.ShutdownGrace,
		rewriter:        whep.NewRewriter(deps.WHEP.CodecSubstitutions),
		monitor:         deps.WHEP.MonitorSessions && deps.Tasks != nil,
		monitorInterval: time.Duration(deps.WHEP.MonitorInterval) * time.Second,
		version:         deps.Version,
		startTime:       time.Now(),
	}

	if s.events == nil {
		s.events = events.NewBus()
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WebSocket, deps.Logger)
	}
	if s.shutdownGrace <= 0 {
		s.shutdownGrace = defaultShutdownGrace
	}
	if s.monitorInterval <= 0 {
		s.monitor = false
	}

	// The hub goes last so it is stopped first, before the hooks it may
	// still be reporting on.
	s.hooks = append(append([]lifecycle.Hook{}, deps.Hooks...), s.hub)

	return s, nil
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start runs the lifecycle hooks and begins serving HTTP.
//
// Hooks are started in order; if one fails, those already started are
// stopped and the error is returned. Listeners are then served in
// background goroutines and Start returns.
//
// Parameters:
//   - ctx: Context for hook start-up (not used for listener lifetime)
//
// Returns:
//   - error: If a hook fails or a listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("api server already started")
	}

	listeners := s.listeners
	if len(listeners) == 0 {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		listeners = []net.Listener{l}
	}

	if err := lifecycle.StartAll(ctx, s.hooks); err != nil {
		for _, l := range listeners {
			l.Close()
		}
		return fmt.Errorf("starting server hooks: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       seconds(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: seconds(s.cfg.Timeouts.Read),
		WriteTimeout:      seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       seconds(s.cfg.Timeouts.Idle),
	}
	s.listeners = listeners
	s.started = true

	for _, l := range listeners {
		s.serving.Add(1)
		go s.serve(l)
	}

	return nil
}

// serve runs the HTTP server on one listener until it is shut down.
func (s *Server) serve(l net.Listener) {
	defer s.serving.Done()

	var err error
	if s.cfg.TLS.Enabled {
		s.logger.Info("API server starting with TLS",
			"address", l.Addr().String(),
			"cert", s.cfg.TLS.CertFile,
		)
		err = s.server.ServeTLS(l, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		s.logger.Info("API server starting", "address", l.Addr().String())
		err = s.server.Serve(l)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("API server error", "address", l.Addr().String(), "error", err)
	}
}

// Addrs returns the addresses the server is listening on.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr())
	}
	return addrs
}

// Close gracefully shuts down the server and its hooks.
//
// In-flight requests get up to 10 seconds to complete. Hooks are then
// stopped in reverse order, bounded by the shutdown grace period. Every
// failure is returned; a hook that misses the deadline surfaces as
// lifecycle.ErrStopTimeout or taskgroup.ErrDrainTimeout.
//
// Returns:
//   - error: Joined shutdown errors, nil on a clean stop
func (s *Server) Close() error {
	// The lock only guards the state flip; HealthCheck and Addrs stay
	// responsive while the shutdown below runs.
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	httpServer, hooks := s.server, s.hooks
	s.mu.Unlock()

	s.logger.Info("API server shutting down")

	var errs []error

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelHTTP()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down http server: %w", err))
	}
	s.serving.Wait()

	hookCtx, cancelHooks := context.WithTimeout(context.Background(), s.shutdownGrace)
	defer cancelHooks()
	if err := lifecycle.StopAll(hookCtx, hooks); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return fmt.Errorf("api server not started")
	}

	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
