package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/willbeckett/homelink-core/internal/device"
	"github.com/willbeckett/homelink-core/internal/fulfillment"
	"github.com/willbeckett/homelink-core/internal/infrastructure/config"
	"github.com/willbeckett/homelink-core/internal/infrastructure/database"
	"github.com/willbeckett/homelink-core/internal/infrastructure/logging"
	"github.com/willbeckett/homelink-core/internal/infrastructure/mqtt"
	"github.com/willbeckett/homelink-core/internal/ingest"
	"github.com/willbeckett/homelink-core/internal/oauth"
	"github.com/willbeckett/homelink-core/internal/reporter"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ReporterStats exposes reporter counters to the metrics endpoint without
// a hard dependency on the reporter's lifecycle.
type ReporterStats interface {
	Metrics() reporter.Metrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	Logger      *logging.Logger
	Store       *device.Store
	Authority   *oauth.Authority
	Fulfillment *fulfillment.Handler
	Bridge      *ingest.Bridge // optional: ingest counters for /metrics
	Reporter    ReporterStats  // optional: reporter counters for /metrics
	MQTT        *mqtt.Client   // optional: broker connectivity for /health
	DB          *database.DB   // optional: pool stats for /metrics
	Version     string
}

// Server is the HTTP server for Homelink Core.
//
// It carries the vendor fulfillment endpoint, the OAuth account-linking
// endpoints, and the health and metrics surfaces. The server is created
// with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	store       *device.Store
	authority   *oauth.Authority
	fulfillment *fulfillment.Handler
	bridge      *ingest.Bridge
	reporter    ReporterStats
	mqtt        *mqtt.Client
	db          *database.DB
	version     string
	startTime   time.Time
	server      *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, store, authority, fulfillment)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Authority == nil {
		return nil, fmt.Errorf("oauth authority is required")
	}
	if deps.Fulfillment == nil {
		return nil, fmt.Errorf("fulfillment handler is required")
	}

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		store:       deps.Store,
		authority:   deps.Authority,
		fulfillment: deps.Fulfillment,
		bridge:      deps.Bridge,
		reporter:    deps.Reporter,
		mqtt:        deps.MQTT,
		db:          deps.DB,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
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

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
