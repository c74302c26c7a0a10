package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberbrowser/sentinel/internal/enforcer"
	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/ratelimit"
)

type EvaluateHandler struct {
	enforcer *enforcer.Enforcer
}

func NewEvaluateHandler(e *enforcer.Enforcer) *EvaluateHandler {
	return &EvaluateHandler{enforcer: e}
}

type evaluateRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	FileHash string `json:"fileHash"`
	MimeType string `json:"mimeType"`
	FileSize uint64 `json:"fileSize"`
	Remember bool   `json:"remember"`
}

// Evaluate resolves one resource to an enforcement decision.
func (h *EvaluateHandler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.URL == "" && req.FileHash == "" && req.MimeType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to evaluate"})
		return
	}

	desc := models.ResourceDescriptor{
		URL:      req.URL,
		Filename: req.Filename,
		FileHash: req.FileHash,
		MimeType: req.MimeType,
		FileSize: req.FileSize,
	}
	decision, err := h.enforcer.Evaluate(desc, enforcer.Options{
		Client:   clientName(c),
		Remember: req.Remember,
	})
	if err != nil {
		if errors.Is(err, ratelimit.ErrRejected) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// clientName resolves the audit identity for a request: the authenticated
// subject when present, otherwise the caller's address.
func clientName(c *gin.Context) string {
	if v, ok := c.Get("user"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return c.ClientIP()
}
