package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/campuskit/campus/internal/metrics"
	"github.com/campuskit/campus/pkg/bus"
	"github.com/campuskit/campus/pkg/plugin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// tenantHeader carries the tenant identity resolved by the upstream
// authentication layer. The gateway trusts it; it is not an auth mechanism.
const tenantHeader = "X-Tenant-ID"

// Server is the HTTP boundary of the plugin platform: thin pass-through
// handlers into the lifecycle use-cases, a per-tenant websocket event
// stream, and the metrics endpoint.
type Server struct {
	host     string
	port     int
	service  *plugin.Service
	eventBus *bus.Bus
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[string]*streamClient
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Service  *plugin.Service
	EventBus *bus.Bus
	Metrics  *metrics.Metrics // optional
	Logger   zerolog.Logger
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("plugin service is required")
	}
	if cfg.EventBus == nil {
		return nil, fmt.Errorf("event bus is required")
	}

	return &Server{
		host:     cfg.Host,
		port:     cfg.Port,
		service:  cfg.Service,
		eventBus: cfg.EventBus,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "gateway").Logger(),
		clients:  make(map[string]*streamClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // origin checks happen at the edge proxy
			},
		},
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /plugins/install", s.requireTenant(s.handleInstall))
	mux.HandleFunc("POST /plugins/{id}/enable", s.requireTenant(s.handleEnable))
	mux.HandleFunc("POST /plugins/{id}/disable", s.requireTenant(s.handleDisable))
	mux.HandleFunc("PUT /plugins/{id}/settings", s.requireTenant(s.handleUpdateSettings))
	mux.HandleFunc("DELETE /plugins/{id}", s.requireTenant(s.handleUninstall))
	mux.HandleFunc("GET /plugins/installed", s.requireTenant(s.handleListInstalled))
	// Marketplace browsing is tenant-independent: the catalog lists what
	// the deployment offers, not what any tenant installed.
	mux.HandleFunc("GET /plugins/marketplace", s.handleMarketplace)
	mux.HandleFunc("GET /events", s.requireTenant(s.handleEvents))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// Start begins serving and blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Gateway listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully and closes stream clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for _, client := range s.clients {
		client.close()
	}
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// requireTenant rejects requests without a tenant identity.
func (s *Server) requireTenant(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(tenantHeader)
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "missing "+tenantHeader+" header")
			return
		}
		next(w, r, tenantID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
