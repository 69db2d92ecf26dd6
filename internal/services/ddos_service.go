package services

import (
	"context"
	"fmt"
	"time"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/geoip"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
)

const volumetricWindow = 60 * time.Second

// GeoViolation is one IP observed from a country outside the allow-list.
type GeoViolation struct {
	IPAddress string `json:"ip_address"`
	Country   string `json:"country"`
}

// DDoSService detects volumetric attacks, watches the connection rate, and
// optionally enforces a geographic allow-list. Like the other detectors it
// only decides; blocking happens in the response coordinator.
type DDoSService struct {
	events   *EventService
	lists    *IPListService
	limits   config.Thresholds
	alerts   Alerter
	resolver geoip.Resolver
}

// NewDDoSService returns a DDoSService over the shared store. The resolver
// may be nil when geographic filtering is disabled.
func NewDDoSService(events *EventService, lists *IPListService, limits config.Thresholds, alerts Alerter, resolver geoip.Resolver) *DDoSService {
	return &DDoSService{events: events, lists: lists, limits: limits, alerts: alerts, resolver: resolver}
}

// DetectAttack aggregates the last 60 seconds per IP and returns every
// non-whitelisted IP above the volumetric threshold. Several rows at once is
// the distributed-attack case. An unreachable store yields no offenders.
func (s *DDoSService) DetectAttack() ([]Offender, bool) {
	offenders, err := s.events.TopOffenders(time.Now().Add(-volumetricWindow), s.limits.DDoSVolumetric)
	if err != nil {
		logger.WithComponent("ddos").Warnf("volumetric aggregation unavailable, reporting no attack: %v", err)
		metrics.IncDegraded("ddos")
		return nil, true
	}

	filtered := offenders[:0]
	for _, o := range offenders {
		whitelisted, err := s.lists.IsWhitelisted(o.IPAddress)
		if err != nil {
			logger.WithComponent("ddos").Warnf("whitelist lookup for %s: %v", logSafe(o.IPAddress), err)
			metrics.IncDegraded("ddos")
			continue
		}
		if whitelisted {
			continue
		}
		metrics.IncDetection("volumetric")
		filtered = append(filtered, o)
	}
	return filtered, false
}

// CheckConnectionRate compares the caller-reported concurrent connection
// count against the threshold. Over threshold raises a critical alert but
// blocks nobody: in a distributed flood there is no single attacker to block.
func (s *DDoSService) CheckConnectionRate(current int) bool {
	if current <= s.limits.ConnectionRate {
		return false
	}

	metrics.IncDetection("connection_rate")
	msg := fmt.Sprintf("concurrent connections %d exceed threshold %d", current, s.limits.ConnectionRate)
	if err := s.alerts.Send("ddos", models.AlertLevelCritical, "connection_rate", msg); err != nil {
		logger.WithComponent("ddos").Warnf("connection rate alert: %v", err)
	}
	return true
}

// GeoCheck resolves each IP's country and flags those outside the allow-list.
// When the filter is disabled it returns immediately without a single lookup.
// A failed lookup skips that IP rather than flagging it.
func (s *DDoSService) GeoCheck(ctx context.Context, ips []string) []GeoViolation {
	if !s.limits.GeoFilterEnabled || s.resolver == nil {
		return nil
	}

	var violations []GeoViolation
	for _, ip := range ips {
		whitelisted, err := s.lists.IsWhitelisted(ip)
		if err != nil || whitelisted {
			continue
		}

		country, err := s.resolver.Country(ctx, ip)
		if err != nil {
			logger.WithComponent("ddos").Warnf("geo lookup for %s failed, skipping: %v", logSafe(ip), err)
			continue
		}
		if !s.limits.AllowsCountry(country) {
			metrics.IncDetection("geo")
			violations = append(violations, GeoViolation{IPAddress: ip, Country: country})
		}
	}
	return violations
}

// Sweep runs volumetric detection and the geographic filter over recent
// traffic, handing every offender to respond.
func (s *DDoSService) Sweep(ctx context.Context, respond func(ip, reason, message string)) {
	offenders, _ := s.DetectAttack()
	for _, o := range offenders {
		respond(o.IPAddress, ReasonVolumetric,
			fmt.Sprintf("%d requests in %s (threshold %d)", o.Count, volumetricWindow, s.limits.DDoSVolumetric))
	}

	if s.limits.GeoFilterEnabled {
		ips, err := s.events.RecentIPs(time.Now().Add(-volumetricWindow))
		if err != nil {
			logger.WithComponent("ddos").Warnf("sweep: list recent IPs: %v", err)
			metrics.IncDegraded("ddos")
			return
		}
		for _, v := range s.GeoCheck(ctx, ips) {
			respond(v.IPAddress, ReasonGeo,
				fmt.Sprintf("request from disallowed country %s", v.Country))
		}
	}
}
