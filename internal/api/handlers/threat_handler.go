package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/store"
)

type ThreatHandler struct {
	store *store.PolicyStore
}

func NewThreatHandler(st *store.PolicyStore) *ThreatHandler {
	return &ThreatHandler{store: st}
}

// List returns detection events, newest first. since is a millisecond epoch
// lower bound; rule restricts to one rule name.
func (h *ThreatHandler) List(c *gin.Context) {
	if rule := c.Query("rule"); rule != "" {
		threats, err := h.store.ThreatsByRule(rule)
		if err != nil {
			respondStoreErr(c, err)
			return
		}
		if threats == nil {
			threats = []models.ThreatRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"threats": threats})
		return
	}

	var since *models.UnixMillis
	if raw := c.Query("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a millisecond epoch integer"})
			return
		}
		t := models.FromMillis(ms)
		since = &t
	}

	threats, err := h.store.ThreatHistory(since)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	if threats == nil {
		threats = []models.ThreatRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"threats": threats})
}
