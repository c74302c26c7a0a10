package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberbrowser/sentinel/internal/store"
	"github.com/emberbrowser/sentinel/internal/template"
)

type TemplateHandler struct {
	engine *template.Engine
	store  *store.PolicyStore
}

func NewTemplateHandler(engine *template.Engine, st *store.PolicyStore) *TemplateHandler {
	return &TemplateHandler{engine: engine, store: st}
}

func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.engine.List(c.Query("category"))
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

type instantiateRequest struct {
	Variables map[string]string `json:"variables"`
	Persist   bool              `json:"persist"`
}

// Instantiate fills a template's placeholders. With persist set the
// resulting policy is stored; otherwise it is returned for preview.
func (h *TemplateHandler) Instantiate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req instantiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	policy, err := h.engine.Instantiate(id, req.Variables)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrStorage) {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Persist {
		policy.ID = 0
		if _, err := h.store.CreatePolicy(&policy); err != nil {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, policy)
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *TemplateHandler) Export(c *gin.Context) {
	doc, err := h.engine.ExportJSON()
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(doc))
}

func (h *TemplateHandler) Import(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}
	result, err := h.engine.ImportJSON(string(body))
	if err != nil {
		if errors.Is(err, store.ErrStorage) {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
