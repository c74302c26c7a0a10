package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emberbrowser/sentinel/internal/audit"
	"github.com/emberbrowser/sentinel/internal/logger"
	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
	"github.com/emberbrowser/sentinel/internal/store"
)

type PolicyHandler struct {
	store   *store.PolicyStore
	limiter *ratelimit.Limiter
	audit   *audit.Logger
}

func NewPolicyHandler(st *store.PolicyStore, limiter *ratelimit.Limiter, auditLog *audit.Logger) *PolicyHandler {
	return &PolicyHandler{store: st, limiter: limiter, audit: auditLog}
}

func (h *PolicyHandler) admit(c *gin.Context) bool {
	if h.limiter.Admit(ratelimit.ClassPolicy) == ratelimit.Rejected {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return false
	}
	return true
}

func (h *PolicyHandler) List(c *gin.Context) {
	if !h.admit(c) {
		return
	}
	policies, err := h.store.ListPolicies()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "policy store unavailable"})
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *PolicyHandler) Get(c *gin.Context) {
	if !h.admit(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	policy, err := h.store.GetPolicy(id)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *PolicyHandler) Create(c *gin.Context) {
	if !h.admit(c) {
		return
	}
	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if policy.CreatedBy == "" {
		policy.CreatedBy = clientName(c)
	}

	id, err := h.store.CreatePolicy(&policy)
	if err != nil {
		if errors.Is(err, store.ErrStorage) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "policy store unavailable"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.recordAudit(c, audit.EventPolicyCreated, id, policy.RuleName)
	c.JSON(http.StatusCreated, policy)
}

func (h *PolicyHandler) Update(c *gin.Context) {
	if !h.admit(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.store.UpdatePolicy(id, policy); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStorage) {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.recordAudit(c, audit.EventPolicyUpdated, id, policy.RuleName)

	updated, err := h.store.GetPolicy(id)
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *PolicyHandler) Delete(c *gin.Context) {
	if !h.admit(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeletePolicy(id); err != nil {
		respondStoreErr(c, err)
		return
	}
	h.recordAudit(c, audit.EventPolicyDeleted, id, "")
	c.JSON(http.StatusOK, gin.H{"message": "policy deleted"})
}

func (h *PolicyHandler) recordAudit(c *gin.Context, eventType audit.EventType, id int64, ruleName string) {
	if h.audit == nil {
		return
	}
	err := h.audit.Record(audit.Event{
		Type:     eventType,
		User:     clientName(c),
		Resource: fmt.Sprintf("policy/%d", id),
		Action:   string(eventType),
		Result:   "success",
		Reason:   ruleName,
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("audit record failed")
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func respondStoreErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrStorage):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "policy store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
