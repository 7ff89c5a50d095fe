package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

// HealthzServer answers /healthz. It reports unhealthy once the last run failed
// when FailOnUnhealthy is set.
type HealthzServer struct {
	Log             log.Logger
	FailOnUnhealthy bool

	ctx     context.Context
	server  *http.Server
	mu      sync.RWMutex
	healthy bool
	status  string
}

func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.mu.Lock()
	h.server = &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.ctx = ctx
	server := h.server
	h.mu.Unlock()
	return server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	h.mu.RLock()
	server, ctx := h.server, h.ctx
	h.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// SetStatus records the result of the latest run
func (h *HealthzServer) SetStatus(healthy bool, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.healthy = healthy
	h.status = status
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	healthy, status := h.healthy, h.status
	h.mu.RUnlock()

	if h.Log != nil {
		h.Log.Debug("Received health check request", "path", r.URL.Path)
	}
	if status == "" {
		status = "OK"
	} else if h.FailOnUnhealthy && !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(status)) //nolint:errcheck
}
