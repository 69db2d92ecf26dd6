package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// IPListHandler manages whitelist/blacklist entries and exposes recent events.
type IPListHandler struct {
	lists  *services.IPListService
	events *services.EventService
}

// NewIPListHandler creates an IPListHandler.
func NewIPListHandler(lists *services.IPListService, events *services.EventService) *IPListHandler {
	return &IPListHandler{lists: lists, events: events}
}

type listEntryRequest struct {
	IP         string `json:"ip" binding:"required"`
	TTLMinutes int    `json:"ttl_minutes"`
	Reason     string `json:"reason"`
}

// List enumerates active entries, optionally filtered by ?type=.
func (h *IPListHandler) List(c *gin.Context) {
	entries, err := h.lists.List(c.Query("type"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidListType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// AddWhitelist inserts a whitelist entry.
func (h *IPListHandler) AddWhitelist(c *gin.Context) {
	h.add(c, models.ListTypeWhitelist)
}

// AddBlacklist inserts a blacklist entry.
func (h *IPListHandler) AddBlacklist(c *gin.Context) {
	h.add(c, models.ListTypeBlacklist)
}

func (h *IPListHandler) add(c *gin.Context, listType string) {
	var req listEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var entry *models.IPListEntry
	var err error
	if listType == models.ListTypeWhitelist {
		entry, err = h.lists.WhitelistAdd(req.IP, req.TTLMinutes, req.Reason)
	} else {
		entry, err = h.lists.BlacklistAdd(req.IP, req.TTLMinutes, req.Reason)
	}
	if err != nil {
		if errors.Is(err, services.ErrInvalidIPAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// Remove deletes the active entry for /:type/:ip.
func (h *IPListHandler) Remove(c *gin.Context) {
	err := h.lists.Remove(c.Param("ip"), c.Param("type"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidIPAddress), errors.Is(err, services.ErrInvalidListType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrEntryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// RecentEvents returns the newest security events for the ops view.
func (h *IPListHandler) RecentEvents(c *gin.Context) {
	events, err := h.events.Recent(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}
