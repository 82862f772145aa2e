package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-pos/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. The server clears it when draining.
func SetReady(v bool) { ready.Store(v) }

// Checker probes the dependencies the entry engine needs to serve traffic.
type Checker interface {
	PingCatalog(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	CatalogTimeout time.Duration
	RedisTimeout   time.Duration
	// Sessions reports the number of open entry sessions, when set.
	Sessions func() int
}

// Report is the readiness body.
type Report struct {
	Status   string `json:"status"`
	Catalog  string `json:"catalog"`
	Redis    string `json:"redis"`
	Sessions *int   `json:"sessions,omitempty"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes the catalog backend and Redis in parallel.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, Report{Status: "unconfigured"})
		return
	}

	report := Report{Status: "ok", Catalog: "ok", Redis: "ok"}
	var g errgroup.Group
	g.Go(func() error {
		if err := h.Checker.PingCatalog(r.Context(), orDefault(h.CatalogTimeout, time.Second)); err != nil {
			report.Catalog = err.Error()
		}
		return nil
	})
	g.Go(func() error {
		if err := h.Checker.PingRedis(r.Context(), orDefault(h.RedisTimeout, 300*time.Millisecond)); err != nil {
			report.Redis = err.Error()
		}
		return nil
	})
	_ = g.Wait()

	if h.Sessions != nil {
		n := h.Sessions()
		report.Sessions = &n
	}
	status := http.StatusOK
	if report.Catalog != "ok" || report.Redis != "ok" {
		report.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, report)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
