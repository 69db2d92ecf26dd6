package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/argus-sec/argus/internal/api/middleware"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// GateHandler exposes the synchronous decision surface: check, record,
// stats, reset, analyze, block, unblock.
type GateHandler struct {
	limiter   *services.RateLimitService
	abuse     *services.AbuseService
	lists     *services.IPListService
	responder *services.ResponseService
}

// NewGateHandler creates a GateHandler.
func NewGateHandler(limiter *services.RateLimitService, abuse *services.AbuseService, lists *services.IPListService, responder *services.ResponseService) *GateHandler {
	return &GateHandler{limiter: limiter, abuse: abuse, lists: lists, responder: responder}
}

type gateRequest struct {
	IP         string `json:"ip" binding:"required"`
	Endpoint   string `json:"endpoint"`
	APIKey     string `json:"api_key"`
	UserAgent  string `json:"user_agent"`
	StatusCode int    `json:"status_code"`
}

type blockRequest struct {
	IP         string `json:"ip" binding:"required"`
	TTLMinutes int    `json:"ttl_minutes"`
	Reason     string `json:"reason"`
}

// Check evaluates the gate for a request and records the observation, so a
// single call is a complete admission decision. 200 = allowed, 429 = rate
// limited, 403 = blocked. Infrastructure trouble never surfaces as an error
// here, only as decision.degraded.
func (h *GateHandler) Check(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision, err := h.limiter.Check(req.IP, req.Endpoint, req.APIKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_ = h.limiter.Record(req.IP, req.Endpoint, req.APIKey, req.UserAgent, req.StatusCode)
	if decision.Outcome == services.OutcomeRateLimited {
		_ = h.limiter.RecordDenied(req.IP, req.Endpoint, req.APIKey)
	}

	c.JSON(statusFor(decision.Outcome), decision)
}

// Record appends a request observation without evaluating the gate, for
// callers that decide asynchronously.
func (h *GateHandler) Record(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.limiter.Record(req.IP, req.Endpoint, req.APIKey, req.UserAgent, req.StatusCode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

// Stats returns current window counts for an IP.
func (h *GateHandler) Stats(c *gin.Context) {
	stats, err := h.limiter.Stats(c.Param("ip"))
	if err != nil {
		if errors.Is(err, services.ErrInvalidIPAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Reset deletes counted events for an IP (optionally one endpoint).
func (h *GateHandler) Reset(c *gin.Context) {
	var req struct {
		IP       string `json:"ip" binding:"required"`
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed, err := h.limiter.Reset(req.IP, req.Endpoint)
	if err != nil {
		if errors.Is(err, services.ErrInvalidIPAddress) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Analyze runs abuse analysis for an IP. With enforce (the default), abusive
// findings are escalated through the response coordinator.
func (h *GateHandler) Analyze(c *gin.Context) {
	var req struct {
		IP      string `json:"ip" binding:"required"`
		Enforce *bool  `json:"enforce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.abuse.Analyze(req.IP)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enforced := false
	if report.Abusive() && (req.Enforce == nil || *req.Enforce) {
		if err := h.responder.RespondToReport(report); err != nil {
			middleware.GetRequestLogger(c).Warnf("escalation failed: %v", err)
		} else {
			enforced = true
		}
	}

	c.JSON(http.StatusOK, gin.H{"report": report, "enforced": enforced})
}

// Block adds a manual blacklist entry.
func (h *GateHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "manual block"
	}

	entry, err := h.lists.BlacklistAdd(req.IP, req.TTLMinutes, req.Reason)
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

// Unblock removes the active blacklist entry for an IP.
func (h *GateHandler) Unblock(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.lists.Remove(req.IP, models.ListTypeBlacklist); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidIPAddress):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrEntryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"unblocked": true})
}

func statusFor(outcome services.Outcome) int {
	switch outcome {
	case services.OutcomeRateLimited:
		return http.StatusTooManyRequests
	case services.OutcomeBlocked:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}
