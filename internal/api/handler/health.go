package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db        Pinger
	chainName string
	chainOn   bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, chainName string, chainEnabled bool) *HealthHandler {
	return &HealthHandler{db: db, chainName: chainName, chainOn: chainEnabled}
}

// Health returns the health status of the service. The chain is reported
// but never fails the check; reads degrade without it.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	database := "ok"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			status, code, database = "degraded", http.StatusServiceUnavailable, err.Error()
		}
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": database,
		"chain": gin.H{
			"name":    h.chainName,
			"enabled": h.chainOn,
		},
	})
}
