package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/observability"
)

type HealthHandler struct {
	dbs *db.Service
	ops *observability.OperationLog
}

func NewHealthHandler(dbs *db.Service, ops *observability.OperationLog) *HealthHandler {
	return &HealthHandler{dbs: dbs, ops: ops}
}

func (hh *HealthHandler) Healthz(c *gin.Context) {
	h := hh.dbs.Probe(c.Request.Context())
	status := http.StatusOK
	if !h.Write.Healthy {
		// Read and raw pool outages degrade; a dead primary is down.
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ok", false: "down"}[h.Write.Healthy],
		"pools":  h,
	})
}

// Diagnostics exposes the in-memory operation log: per-operation aggregates
// plus the newest entries, newest first.
func (hh *HealthHandler) Diagnostics(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": hh.ops.Summary(),
		"recent":  hh.ops.Recent(n),
	})
}
