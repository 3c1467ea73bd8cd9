package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/poimap/pkg/config"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP+SSE transport.
type HTTPTransportConfig struct {
	Addr           string
	BaseURL        string
	AuthToken      string // empty disables authentication
	SSEEndpoint    string
	MsgEndpoint    string
	RateLimit      float64 // requests per second per client IP
	RateBurst      int
	MaxRequestSize int64
}

// DefaultHTTPTransportConfig returns the transport defaults.
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		SSEEndpoint:    "/sse",
		MsgEndpoint:    "/message",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 1 << 20,
	}
}

// HTTPTransportConfigFrom maps the mcp config section onto the transport.
func HTTPTransportConfigFrom(c config.MCPConfig) HTTPTransportConfig {
	cfg := DefaultHTTPTransportConfig()
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	cfg.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	cfg.AuthToken = c.AuthToken
	if c.RateLimit > 0 {
		cfg.RateLimit = c.RateLimit
	}
	if c.RateBurst > 0 {
		cfg.RateBurst = c.RateBurst
	}
	if c.MaxRequestSize > 0 {
		cfg.MaxRequestSize = c.MaxRequestSize
	}
	return cfg
}

// HTTPTransport serves MCP over HTTP+SSE with health endpoints alongside.
type HTTPTransport struct {
	config      HTTPTransportConfig
	logger      *slog.Logger
	sseServer   *mcpserver.SSEServer
	health      *monitoring.HealthChecker
	rateLimiter *RateLimiter
	handler     http.Handler

	mu      sync.Mutex
	httpSrv *http.Server
}

// NewHTTPTransport wires s behind the middleware chain. health may be nil.
func NewHTTPTransport(s *Server, cfg HTTPTransportConfig, health *monitoring.HealthChecker, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &HTTPTransport{
		config: cfg,
		logger: logger.With("component", "http_transport"),
		sseServer: mcpserver.NewSSEServer(
			s.MCPServer(),
			mcpserver.WithSSEEndpoint(cfg.SSEEndpoint),
			mcpserver.WithMessageEndpoint(cfg.MsgEndpoint),
			mcpserver.WithBaseURL(cfg.BaseURL),
		),
		health:      health,
		rateLimiter: NewRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", t.handleServiceDiscovery)
	mux.HandleFunc("GET /health", t.handleHealth)
	mux.HandleFunc("GET /live", t.handleLive)
	mux.Handle(cfg.SSEEndpoint, t.authMiddleware(t.sseServer.SSEHandler()))
	mux.Handle(cfg.MsgEndpoint, t.authMiddleware(t.sseServer.MessageHandler()))

	var h http.Handler = mux
	h = t.rateLimiter.Middleware(h)
	h = TracingMiddleware()(h)
	h = LoggingMiddleware(t.logger)(h)
	h = SecurityHeaders(h)
	h = RequestSizeLimiter(cfg.MaxRequestSize)(h)
	t.handler = h

	return t
}

// Handler returns the full middleware chain.
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler
}

func (t *HTTPTransport) authMiddleware(next http.Handler) http.Handler {
	if t.config.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := core.AuthenticateBearer(r.Header.Get("Authorization"), t.config.AuthToken); err != nil {
			t.logger.Warn("authentication failed",
				"remote_addr", getIP(r),
				"path", r.URL.Path,
				"error", err)
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSONRPCError(w, http.StatusUnauthorized, -32001, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	baseURL := t.config.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service":   ServerName,
		"transport": "HTTP+SSE",
		"endpoints": map[string]string{
			"sse":     baseURL + t.config.SSEEndpoint,
			"message": baseURL + t.config.MsgEndpoint,
		},
		"capabilities": map[string]any{"tools": true},
		"auth":         map[string]any{"required": t.config.AuthToken != ""},
	})
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.health != nil {
		t.health.HealthHandler()(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (t *HTTPTransport) handleLive(w http.ResponseWriter, r *http.Request) {
	if t.health != nil {
		t.health.LivenessHandler()(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alive": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// Start serves until Shutdown is called.
func (t *HTTPTransport) Start() error {
	t.mu.Lock()
	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("Stop the HTTP transport before starting it again.")
	}
	srv := &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	t.httpSrv = srv
	t.mu.Unlock()

	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"sse_endpoint", t.config.SSEEndpoint,
		"message_endpoint", t.config.MsgEndpoint,
		"auth", t.config.AuthToken != "")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes SSE streams and stops the HTTP server.
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.rateLimiter.Stop()

	t.mu.Lock()
	srv := t.httpSrv
	t.httpSrv = nil
	t.mu.Unlock()
	if srv == nil {
		return nil
	}

	t.logger.Info("shutting down HTTP transport")
	if err := t.sseServer.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shut down SSE server", "error", err)
	}
	return srv.Shutdown(ctx)
}
