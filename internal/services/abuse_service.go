package services

import (
	"fmt"
	"net"
	"time"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
)

// Finding kinds reported by the abuse detector.
const (
	FindingRapidRequests      = "pattern_rapid_requests"
	FindingErrorRate          = "pattern_error_rate"
	FindingExcessiveVolume    = "pattern_excessive_volume"
	FindingAnomaly            = "anomaly"
	FindingEndpointDiversity  = "behavioral_endpoint_diversity"
	FindingUserAgentDiversity = "behavioral_user_agent_diversity"
)

// Analysis windows. Fixed by the detection design, not operator-tunable.
const (
	rapidWindow       = 10 * time.Second
	analysisWindow    = time.Hour
	diversityWindow   = 5 * time.Minute
	userAgentWindow   = time.Hour
	anomalyMultiplier = 3
)

// Finding is one detection with a human-readable detail string.
type Finding struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// AbuseReport is the result of analyzing one IP. Degraded marks a report cut
// short by store unavailability; whatever was found before the failure is
// kept, but absence of findings then means "could not evaluate", not clean.
type AbuseReport struct {
	IPAddress string    `json:"ip_address"`
	Findings  []Finding `json:"findings"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// Abusive reports whether any analysis fired.
func (r AbuseReport) Abusive() bool {
	return len(r.Findings) > 0
}

// AbuseService runs pattern, anomaly, and behavioral analysis over the event
// history of a single IP. It holds no state between calls: every report is
// computed fresh from the store.
type AbuseService struct {
	events *EventService
	lists  *IPListService
	limits config.Thresholds
}

// NewAbuseService returns an AbuseService over the shared store.
func NewAbuseService(events *EventService, lists *IPListService, limits config.Thresholds) *AbuseService {
	return &AbuseService{events: events, lists: lists, limits: limits}
}

// Analyze runs all three analyses for an IP. Whitelisted IPs bypass every
// query. The returned error covers input validation only; an unreachable
// store yields an empty degraded report (fail-open).
func (s *AbuseService) Analyze(ip string) (AbuseReport, error) {
	if net.ParseIP(ip) == nil {
		return AbuseReport{}, fmt.Errorf("%w: %s", ErrInvalidIPAddress, ip)
	}

	report := AbuseReport{IPAddress: ip}

	whitelisted, err := s.lists.IsWhitelisted(ip)
	if err != nil {
		return s.degraded(report, "whitelist lookup", err), nil
	}
	if whitelisted {
		return report, nil
	}

	now := time.Now()

	// Pattern: rapid requests.
	rapid, err := s.events.CountRequests(ip, now.Add(-rapidWindow))
	if err != nil {
		return s.degraded(report, "rapid request count", err), nil
	}
	if rapid > int64(s.limits.RapidRequests) {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingRapidRequests,
			Detail: fmt.Sprintf("%d requests in %s (threshold %d)", rapid, rapidWindow, s.limits.RapidRequests),
		})
	}

	// Pattern: error rate and excessive volume share the 1h window total.
	total, err := s.events.CountRequests(ip, now.Add(-analysisWindow))
	if err != nil {
		return s.degraded(report, "window total", err), nil
	}
	if total > 0 {
		errCount, err := s.events.CountErrors(ip, now.Add(-analysisWindow))
		if err != nil {
			return s.degraded(report, "error count", err), nil
		}
		pct := float64(errCount) / float64(total) * 100
		if pct > float64(s.limits.ErrorRatePercent) {
			report.Findings = append(report.Findings, Finding{
				Kind:   FindingErrorRate,
				Detail: fmt.Sprintf("%.1f%% errors over %s (threshold %d%%)", pct, analysisWindow, s.limits.ErrorRatePercent),
			})
		}
	}
	if total > int64(s.limits.ExcessiveRequests) {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingExcessiveVolume,
			Detail: fmt.Sprintf("%d requests over %s (threshold %d)", total, analysisWindow, s.limits.ExcessiveRequests),
		})
	}

	// Anomaly: current hour against the 7-day hourly baseline. A zero
	// baseline is insufficient evidence, never an anomaly.
	baseline, err := s.events.HourlyBaseline(ip, now)
	if err != nil {
		return s.degraded(report, "hourly baseline", err), nil
	}
	if baseline > 0 {
		current, err := s.events.CurrentHourCount(ip, now)
		if err != nil {
			return s.degraded(report, "current hour count", err), nil
		}
		if float64(current) > anomalyMultiplier*baseline {
			report.Findings = append(report.Findings, Finding{
				Kind:   FindingAnomaly,
				Detail: fmt.Sprintf("current hour %d vs baseline %.1f (x%d)", current, baseline, anomalyMultiplier),
			})
		}
	}

	// Behavioral: endpoint and user-agent diversity.
	endpoints, err := s.events.DistinctEndpoints(ip, now.Add(-diversityWindow))
	if err != nil {
		return s.degraded(report, "endpoint diversity", err), nil
	}
	if endpoints > int64(s.limits.EndpointDiversity) {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingEndpointDiversity,
			Detail: fmt.Sprintf("%d distinct endpoints in %s (threshold %d)", endpoints, diversityWindow, s.limits.EndpointDiversity),
		})
	}
	agents, err := s.events.DistinctUserAgents(ip, now.Add(-userAgentWindow))
	if err != nil {
		return s.degraded(report, "user agent diversity", err), nil
	}
	if agents > int64(s.limits.UserAgentDiversity) {
		report.Findings = append(report.Findings, Finding{
			Kind:   FindingUserAgentDiversity,
			Detail: fmt.Sprintf("%d distinct user agents in %s (threshold %d)", agents, userAgentWindow, s.limits.UserAgentDiversity),
		})
	}

	for _, f := range report.Findings {
		metrics.IncDetection(f.Kind)
	}
	return report, nil
}

// SweepWindow is how far back the periodic sweep looks for active IPs.
const SweepWindow = 5 * time.Minute

// Sweep analyzes every IP with recent activity and hands abusive reports to
// respond, which is the only place a detection becomes enforcement.
func (s *AbuseService) Sweep(respond func(report AbuseReport)) error {
	ips, err := s.events.RecentIPs(time.Now().Add(-SweepWindow))
	if err != nil {
		logger.WithComponent("abuse").Warnf("sweep: list recent IPs: %v", err)
		metrics.IncDegraded("abuse")
		return nil
	}

	for _, ip := range ips {
		report, err := s.Analyze(ip)
		if err != nil {
			logger.WithComponent("abuse").Warnf("sweep: analyze %s: %v", logSafe(ip), err)
			continue
		}
		if report.Abusive() {
			respond(report)
		}
	}
	return nil
}

func (s *AbuseService) degraded(report AbuseReport, stage string, err error) AbuseReport {
	logger.WithComponent("abuse").WithField("ip", report.IPAddress).
		Warnf("%s unavailable, reporting no abuse: %v", stage, err)
	metrics.IncDegraded("abuse")
	report.Degraded = true
	return report
}
