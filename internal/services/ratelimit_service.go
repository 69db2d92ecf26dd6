package services

import (
	"fmt"
	"net"
	"time"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
)

// Outcome is the machine-readable verdict of a gate check.
type Outcome string

const (
	OutcomeAllowed     Outcome = "ALLOWED"
	OutcomeRateLimited Outcome = "RATE_LIMITED"
	OutcomeBlocked     Outcome = "BLOCKED"
)

// Decision is the result of a gate check. Degraded marks a fail-open verdict
// taken because the store could not be reached: the outcome is unchanged but
// observability can tell "genuinely clean" from "could not evaluate".
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Degraded bool    `json:"degraded,omitempty"`
}

// Denied reports whether the caller should reject the request.
func (d Decision) Denied() bool {
	return d.Outcome != OutcomeAllowed
}

// RateLimitStats is the current window view for one IP.
type RateLimitStats struct {
	IPAddress     string `json:"ip_address"`
	MinuteCount   int64  `json:"minute_count"`
	HourCount     int64  `json:"hour_count"`
	DayCount      int64  `json:"day_count"`
	DeniedLastDay int64  `json:"denied_last_day"`
}

// RateLimitService is the sliding-window admission gate. Every check is
// recomputed from the event store, so concurrent recorders make the window
// count approximate near the boundary; that imprecision is accepted rather
// than paid for with a distributed lock.
type RateLimitService struct {
	events *EventService
	lists  *IPListService
	limits config.Thresholds
}

// NewRateLimitService returns a RateLimitService over the shared store.
func NewRateLimitService(events *EventService, lists *IPListService, limits config.Thresholds) *RateLimitService {
	return &RateLimitService{events: events, lists: lists, limits: limits}
}

// Check evaluates whitelist, blacklist, then every applicable sliding-window
// limit for the request. Endpoint and API key limits only apply when those
// attributes are present. The returned error covers input validation only;
// store failures degrade to ALLOWED and are visible via Decision.Degraded.
func (s *RateLimitService) Check(ip, endpoint, apiKey string) (Decision, error) {
	if net.ParseIP(ip) == nil {
		return Decision{}, fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	whitelisted, err := s.lists.IsWhitelisted(ip)
	if err != nil {
		return s.degraded("whitelist lookup", err), nil
	}
	if whitelisted {
		return s.decided(Decision{Outcome: OutcomeAllowed, Reason: "whitelisted"}), nil
	}

	blacklisted, err := s.lists.IsBlacklisted(ip)
	if err != nil {
		return s.degraded("blacklist lookup", err), nil
	}
	if blacklisted {
		return s.decided(Decision{Outcome: OutcomeBlocked, Reason: "blacklisted"}), nil
	}

	now := time.Now()

	type window struct {
		name  string
		count func() (int64, error)
		limit int
	}
	windows := []window{
		{"ip minute limit", func() (int64, error) {
			return s.events.CountRequests(ip, now.Add(-time.Minute))
		}, s.limits.PerIPPerMinute + s.limits.Burst},
		{"ip hour limit", func() (int64, error) {
			return s.events.CountRequests(ip, now.Add(-time.Hour))
		}, s.limits.PerIPPerHour},
		{"ip day limit", func() (int64, error) {
			return s.events.CountRequests(ip, now.Add(-24*time.Hour))
		}, s.limits.PerIPPerDay},
	}
	if endpoint != "" {
		windows = append(windows, window{"endpoint limit", func() (int64, error) {
			return s.events.CountEndpointRequests(ip, endpoint, now.Add(-time.Minute))
		}, s.limits.PerEndpointPerMinute + s.limits.Burst})
	}
	if apiKey != "" {
		windows = append(windows, window{"api key limit", func() (int64, error) {
			return s.events.CountAPIKeyRequests(apiKey, now.Add(-time.Minute))
		}, s.limits.PerAPIKeyPerMinute + s.limits.Burst})
	}

	for _, w := range windows {
		count, err := w.count()
		if err != nil {
			return s.degraded(w.name, err), nil
		}
		if count >= int64(w.limit) {
			return s.decided(Decision{
				Outcome: OutcomeRateLimited,
				Reason:  fmt.Sprintf("%s exceeded (%d/%d)", w.name, count, w.limit),
			}), nil
		}
	}

	return s.decided(Decision{Outcome: OutcomeAllowed}), nil
}

// Record appends a request-kind event so subsequent checks see it. Store
// failures are logged and absorbed; recording must never push an error back
// into the request path.
func (s *RateLimitService) Record(ip, endpoint, apiKey, userAgent string, statusCode int) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	ev := &models.SecurityEvent{
		IPAddress:  ip,
		EventKind:  models.EventKindRequest,
		Endpoint:   endpoint,
		APIKey:     apiKey,
		UserAgent:  userAgent,
		StatusCode: statusCode,
	}
	if err := s.events.Record(ev); err != nil {
		logger.WithComponent("ratelimit").WithField("ip", ip).Warnf("record request: %v", err)
	}
	return nil
}

// RecordDenied appends the audit event behind a deny verdict, feeding the
// abuse detector and the escalation history.
func (s *RateLimitService) RecordDenied(ip, endpoint, apiKey string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	ev := &models.SecurityEvent{
		IPAddress: ip,
		EventKind: models.EventKindRateLimit,
		Endpoint:  endpoint,
		APIKey:    apiKey,
		Metadata:  `{"reason":"exceeded"}`,
	}
	if err := s.events.Record(ev); err != nil {
		logger.WithComponent("ratelimit").WithField("ip", ip).Warnf("record denial: %v", err)
	}
	return nil
}

// Stats returns current trailing-window counts for an IP.
func (s *RateLimitService) Stats(ip string) (RateLimitStats, error) {
	if net.ParseIP(ip) == nil {
		return RateLimitStats{}, fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	now := time.Now()
	stats := RateLimitStats{IPAddress: ip}

	var err error
	if stats.MinuteCount, err = s.events.CountRequests(ip, now.Add(-time.Minute)); err != nil {
		return RateLimitStats{}, err
	}
	if stats.HourCount, err = s.events.CountRequests(ip, now.Add(-time.Hour)); err != nil {
		return RateLimitStats{}, err
	}
	if stats.DayCount, err = s.events.CountRequests(ip, now.Add(-24*time.Hour)); err != nil {
		return RateLimitStats{}, err
	}
	stats.DeniedLastDay, err = s.countDenials(ip, now.Add(-24*time.Hour))
	if err != nil {
		return RateLimitStats{}, err
	}
	return stats, nil
}

// Reset deletes the counted events for an IP, optionally scoped to one
// endpoint. Manual remediation; errors are surfaced to the operator.
func (s *RateLimitService) Reset(ip, endpoint string) (int64, error) {
	if net.ParseIP(ip) == nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}
	return s.events.Reset(ip, endpoint)
}

func (s *RateLimitService) countDenials(ip string, since time.Time) (int64, error) {
	var n int64
	err := s.events.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND event_kind = ? AND timestamp >= ?", ip, models.EventKindRateLimit, since).
		Count(&n).Error
	return n, err
}

func (s *RateLimitService) decided(d Decision) Decision {
	metrics.IncCheck(string(d.Outcome))
	return d
}

func (s *RateLimitService) degraded(stage string, err error) Decision {
	logger.WithComponent("ratelimit").Warnf("%s unavailable, failing open: %v", stage, err)
	metrics.IncDegraded("ratelimit")
	return s.decided(Decision{Outcome: OutcomeAllowed, Reason: "store unavailable", Degraded: true})
}
