package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emberbrowser/sentinel/internal/models"
	"github.com/emberbrowser/sentinel/internal/store"
)

type NetworkPolicyHandler struct {
	store *store.PolicyStore
}

func NewNetworkPolicyHandler(st *store.PolicyStore) *NetworkPolicyHandler {
	return &NetworkPolicyHandler{store: st}
}

func (h *NetworkPolicyHandler) List(c *gin.Context) {
	policies, err := h.store.ListNetworkBehaviorPolicies()
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (h *NetworkPolicyHandler) Upsert(c *gin.Context) {
	var policy models.NetworkBehaviorPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.store.UpsertNetworkBehaviorPolicy(&policy); err != nil {
		if errors.Is(err, store.ErrStorage) {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (h *NetworkPolicyHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteNetworkBehaviorPolicy(id); err != nil {
		respondStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "network behavior policy deleted"})
}

func (h *NetworkPolicyHandler) Export(c *gin.Context) {
	doc, err := h.store.ExportNetworkBehaviorPolicies()
	if err != nil {
		respondStoreErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(doc))
}

func (h *NetworkPolicyHandler) Import(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}
	imported, skipped, err := h.store.ImportNetworkBehaviorPolicies(string(body))
	if err != nil {
		if errors.Is(err, store.ErrStorage) {
			respondStoreErr(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "skipped": skipped})
}
