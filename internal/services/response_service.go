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

// Block reasons accepted by the coordinator. Detectors pass one of these so
// alert severity and metrics stay consistent.
const (
	ReasonPattern        = "pattern"
	ReasonAnomaly        = "anomaly"
	ReasonBehavioral     = "behavioral"
	ReasonDDoS           = "ddos"
	ReasonVolumetric     = "volumetric"
	ReasonGeo            = "geo"
	ReasonConnectionRate = "connection_rate"
)

// ResponseService is the automatic response coordinator: the single place
// where a detection becomes enforcement. Detectors decide, this escalates.
type ResponseService struct {
	lists  *IPListService
	events *EventService
	alerts Alerter
	limits config.Thresholds
}

// NewResponseService wires the coordinator to the access list, event store,
// and the alerting collaborator.
func NewResponseService(lists *IPListService, events *EventService, alerts Alerter, limits config.Thresholds) *ResponseService {
	return &ResponseService{lists: lists, events: events, alerts: alerts, limits: limits}
}

// Respond blacklists the IP for an escalating duration derived from its
// violation history and raises an alert. The alert is attempted even when
// the block write fails: in a degraded store, visibility beats enforcement.
// The block error (if any) is returned for the caller's log.
func (s *ResponseService) Respond(ip, reason, message string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	lookback := time.Duration(s.limits.EscalationLookbackHours) * time.Hour
	prior, err := s.lists.CountBlacklistedSince(ip, time.Now().Add(-lookback))
	if err != nil {
		logger.WithComponent("response").WithField("ip", ip).
			Warnf("violation history unavailable, treating as first offense: %v", err)
		metrics.IncDegraded("response")
		prior = 0
	}
	violations := prior + 1

	duration := s.tierMinutes(violations)
	_, blockErr := s.lists.BlacklistAdd(ip, duration, reason)
	if blockErr != nil {
		logger.WithComponent("response").WithField("ip", ip).Warnf("blacklist write failed: %v", blockErr)
	} else {
		logger.WithComponent("response").WithFields(map[string]interface{}{
			"ip":         ip,
			"reason":     reason,
			"violations": violations,
			"minutes":    duration,
		}).Info("auto-blocked")
	}

	s.recordDetection(ip, reason, message)

	level := s.severity(reason, violations)
	alertMsg := fmt.Sprintf("%s blocked for %d min (violation %d): %s", ip, duration, violations, logSafe(message))
	if err := s.alerts.Send("response", level, reason, alertMsg); err != nil {
		logger.WithComponent("response").Warnf("alert emission failed: %v", err)
	}

	metrics.IncAutoBlock(reason)

	if blockErr != nil {
		return fmt.Errorf("blacklist %s: %w", ip, blockErr)
	}
	return nil
}

// RespondToReport maps an abuse report onto Respond, using the first finding
// to pick the reason bucket.
func (s *ResponseService) RespondToReport(report AbuseReport) error {
	if !report.Abusive() {
		return nil
	}

	first := report.Findings[0]
	reason := ReasonPattern
	switch first.Kind {
	case FindingAnomaly:
		reason = ReasonAnomaly
	case FindingEndpointDiversity, FindingUserAgentDiversity:
		reason = ReasonBehavioral
	}
	return s.Respond(report.IPAddress, reason, first.Detail)
}

// tierMinutes maps a violation count to a block duration. Tiers are
// monotonically non-decreasing in the count.
func (s *ResponseService) tierMinutes(violations int64) int {
	switch {
	case violations <= 1:
		return s.limits.Tier1Minutes
	case violations == 2:
		return s.limits.Tier2Minutes
	default:
		return s.limits.Tier3Minutes
	}
}

// severity is warning for first-time pattern/anomaly/behavioral/ddos
// detections and critical for volumetric/connection-rate attacks or repeat
// offenders.
func (s *ResponseService) severity(reason string, violations int64) string {
	if violations >= 3 {
		return models.AlertLevelCritical
	}
	switch reason {
	case ReasonVolumetric, ReasonConnectionRate:
		return models.AlertLevelCritical
	default:
		return models.AlertLevelWarning
	}
}

// recordDetection appends the detection event flowing into audit history.
func (s *ResponseService) recordDetection(ip, reason, message string) {
	kind := models.EventKindAbuse
	switch reason {
	case ReasonDDoS, ReasonVolumetric, ReasonGeo, ReasonConnectionRate:
		kind = models.EventKindDDoS
	}
	ev := &models.SecurityEvent{
		IPAddress: ip,
		EventKind: kind,
		Metadata:  fmt.Sprintf(`{"reason":%q,"message":%q}`, reason, logSafe(message)),
	}
	if err := s.events.Record(ev); err != nil {
		logger.WithComponent("response").Warnf("record detection event: %v", err)
	}
}
