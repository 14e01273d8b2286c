package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolhost/internal/domain"
	"toolhost/internal/metrics"
)

const (
	maxBodySize           = 1 << 20 // 1MB
	defaultRequestTimeout = 120 * time.Second
)

// HTTP serves the query, discovery and health endpoints.
type HTTP struct {
	host           string
	port           int
	corsOrigins    map[string]bool
	corsAny        bool
	requestTimeout time.Duration
	handler        Handler
	catalogue      Catalogue
	model          func() string
	metrics        bool
	logger         *slog.Logger
	server         *http.Server
}

type HTTPConfig struct {
	Host           string
	Port           int
	CORSOrigins    []string // "*" allows any origin
	RequestTimeout time.Duration
	Handler        Handler
	Catalogue      Catalogue
	// Model reports the active planner for /health; nil reports none.
	Model          func() string
	MetricsEnabled bool
	Logger         *slog.Logger
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Model == nil {
		cfg.Model = func() string { return "" }
	}
	h := &HTTP{
		host:           cfg.Host,
		port:           cfg.Port,
		corsOrigins:    make(map[string]bool),
		requestTimeout: cfg.RequestTimeout,
		handler:        cfg.Handler,
		catalogue:      cfg.Catalogue,
		model:          cfg.Model,
		metrics:        cfg.MetricsEnabled,
		logger:         cfg.Logger,
	}
	for _, o := range cfg.CORSOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			h.corsAny = true
		} else if o != "" {
			h.corsOrigins[o] = true
		}
	}
	return h
}

func (h *HTTP) Name() string { return "http" }

// Handler returns the routed handler wrapped with CORS.
func (h *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /tools", h.handleTools)
	if h.metrics {
		mux.Handle("GET /metrics", metrics.Collector.Handler())
	}
	return h.cors(mux)
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (h *HTTP) Start(ctx context.Context) error {
	addr := net.JoinHostPort(h.host, strconv.Itoa(h.port))
	h.server = &http.Server{
		Addr:              addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      h.requestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("http shutdown", "err", err)
		}
	}()

	h.logger.Info("http host started", "addr", addr)
	if err := h.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http host: %w", err)
	}
	h.logger.Info("http host stopped")
	return nil
}

func (h *HTTP) handleQuery(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(rw, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxBodySize {
		writeError(rw, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var req domain.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(rw, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		writeError(rw, http.StatusBadRequest, "user_query is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	start := time.Now()
	resp := h.handler.Handle(ctx, req)
	h.logger.Info("query handled",
		"session", req.SessionID,
		"tools", len(resp.ToolCallsExecuted),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(rw, http.StatusOK, resp)
}

func (h *HTTP) handleHealth(rw http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.catalogue != nil {
		names = append(names, h.catalogue.Names()...)
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"status": "ok",
		"tools":  names,
		"model":  h.model(),
	})
}

func (h *HTTP) handleTools(rw http.ResponseWriter, r *http.Request) {
	out := map[string][]domain.ToolDescriptor{}
	if h.catalogue != nil {
		out = h.catalogue.AllTools(r.Context())
	}
	writeJSON(rw, http.StatusOK, out)
}

func (h *HTTP) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (h.corsAny || h.corsOrigins[origin]) {
			rw.Header().Set("Access-Control-Allow-Origin", origin)
			rw.Header().Set("Access-Control-Allow-Credentials", "true")
			rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			rw.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			rw.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	writeJSON(rw, status, map[string]string{"error": msg})
}
