package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// AlertHandler exposes emitted alerts and delivery channel management.
type AlertHandler struct {
	alerts *services.AlertService
}

// NewAlertHandler creates an AlertHandler.
func NewAlertHandler(alerts *services.AlertService) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// List returns recent alerts.
func (h *AlertHandler) List(c *gin.Context) {
	alerts, err := h.alerts.ListAlerts(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// ListChannels returns configured delivery channels.
func (h *AlertHandler) ListChannels(c *gin.Context) {
	channels, err := h.alerts.ListChannels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, channels)
}

// CreateChannel registers a shoutrrr delivery channel.
func (h *AlertHandler) CreateChannel(c *gin.Context) {
	var ch models.AlertChannel
	if err := c.ShouldBindJSON(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.alerts.CreateChannel(&ch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// DeleteChannel removes a channel by UUID.
func (h *AlertHandler) DeleteChannel(c *gin.Context) {
	if err := h.alerts.DeleteChannel(c.Param("uuid")); err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
