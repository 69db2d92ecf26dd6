package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/version"
)

// HealthHandler reports liveness and store reachability.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health returns service status. The store being unreachable is reported but
// still a 200: the gate keeps answering (fail-open) without it.
func (h *HealthHandler) Health(c *gin.Context) {
	storeOK := true
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		storeOK = false
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Full(),
		"store":   storeOK,
	})
}
