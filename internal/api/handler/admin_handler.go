package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/service"
)

// Sweeper runs a reconciliation pass over stored jobs.
type Sweeper interface {
	Sweep(ctx context.Context, opts service.SweepOptions) (*service.SweepStats, error)
}

// AdminHandler exposes operator endpoints for reconciling the job table
// against the escrow contract.
type AdminHandler struct {
	sweeper Sweeper

	mu      sync.RWMutex
	running bool
	last    sweepRun
}

type sweepRun struct {
	finished time.Time
	status   string
	stats    *service.SweepStats
}

func NewAdminHandler(sweeper Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// SweepRequest narrows an operator-triggered sweep. An empty body sweeps
// every job without repair.
type SweepRequest struct {
	Limit       int  `json:"limit" binding:"min=0,max=100000"`
	OnChainOnly bool `json:"on_chain_only"`
	Repair      bool `json:"repair"`
}

type SweepResponse struct {
	Message string              `json:"message"`
	Stats   *service.SweepStats `json:"stats,omitempty"`
}

type SweepStatusResponse struct {
	IsRunning     bool                `json:"is_running"`
	LastRunTime   string              `json:"last_run_time,omitempty"`
	LastRunStatus string              `json:"last_run_status,omitempty"`
	LastStats     *service.SweepStats `json:"last_stats,omitempty"`
}

// tryStart claims the single sweep slot.
func (h *AdminHandler) tryStart() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return false
	}
	h.running = true
	return true
}

func (h *AdminHandler) finish(stats *service.SweepStats, err error) {
	run := sweepRun{finished: time.Now(), status: "success", stats: stats}
	if err != nil {
		run.status = "failed: " + err.Error()
	}
	h.mu.Lock()
	h.running = false
	h.last = run
	h.mu.Unlock()
}

// TriggerSweep reconciles stored jobs synchronously and answers with the
// sweep statistics. A second request while one runs gets 409.
//
// Parameters:
//   - c: Gin request context; body is an optional SweepRequest.
//
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	ctx := logger.SetComponent(c.Request.Context(), "admin")

	var req SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if !h.tryStart() {
		logger.CtxWarn(ctx, "Sweep already running, rejecting request from %s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "a reconciliation sweep is already running"})
		return
	}

	start := time.Now()
	// The sweep outlives a disconnecting client but keeps the request's log tags.
	stats, err := h.sweeper.Sweep(context.WithoutCancel(ctx), service.SweepOptions{
		Limit:       req.Limit,
		OnChainOnly: req.OnChainOnly,
		Repair:      req.Repair,
	})
	h.finish(stats, err)

	if err != nil {
		logger.With(nil).Since(start).Error(ctx, "Reconciliation sweep failed: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SweepResponse{Message: "sweep completed", Stats: stats})
}

// GetSweepStatus reports whether a sweep is running and how the last one ended.
func (h *AdminHandler) GetSweepStatus(c *gin.Context) {
	h.mu.RLock()
	resp := SweepStatusResponse{
		IsRunning:     h.running,
		LastRunStatus: h.last.status,
		LastStats:     h.last.stats,
	}
	if !h.last.finished.IsZero() {
		resp.LastRunTime = h.last.finished.Format(time.RFC3339)
	}
	h.mu.RUnlock()

	c.JSON(http.StatusOK, resp)
}
