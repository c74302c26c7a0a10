package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberbrowser/sentinel/internal/audit"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
	"github.com/emberbrowser/sentinel/internal/store"
)

type StatsHandler struct {
	store   *store.PolicyStore
	limiter *ratelimit.Limiter
	audit   *audit.Logger
}

func NewStatsHandler(st *store.PolicyStore, limiter *ratelimit.Limiter, auditLog *audit.Logger) *StatsHandler {
	return &StatsHandler{store: st, limiter: limiter, audit: auditLog}
}

// Stats reports engine-wide operational counters.
func (h *StatsHandler) Stats(c *gin.Context) {
	policyCount, err := h.store.PolicyCount()
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	threatCount, err := h.store.ThreatCount()
	if err != nil {
		respondStoreErr(c, err)
		return
	}

	resp := gin.H{
		"policies":  policyCount,
		"threats":   threatCount,
		"cache":     h.store.CacheMetrics(),
		"rateLimit": h.limiter.Stats(),
	}
	if h.audit != nil {
		resp["audit"] = h.audit.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
