package services

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
)

// EventService is the store adapter for the append-only security_events
// table. Every decision in the system is a fresh aggregate over these rows;
// no component keeps counters in memory.
type EventService struct {
	db *gorm.DB
}

// NewEventService returns an EventService using the provided DB.
func NewEventService(db *gorm.DB) *EventService {
	return &EventService{db: db}
}

// Record appends a security event, filling UUID and timestamp if unset.
func (s *EventService) Record(ev *models.SecurityEvent) error {
	if ev.UUID == "" {
		ev.UUID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return s.db.Create(ev).Error
}

// CountRequests counts request-kind events for an IP since the given instant.
func (s *EventService) CountRequests(ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND event_kind = ? AND timestamp >= ?", ip, models.EventKindRequest, since).
		Count(&n).Error
	return n, err
}

// CountEndpointRequests counts request-kind events for an IP on one endpoint.
func (s *EventService) CountEndpointRequests(ip, endpoint string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND endpoint = ? AND event_kind = ? AND timestamp >= ?",
			ip, endpoint, models.EventKindRequest, since).
		Count(&n).Error
	return n, err
}

// CountAPIKeyRequests counts request-kind events for an API key across all
// source IPs, so a key shared between hosts is still bounded as one client.
func (s *EventService) CountAPIKeyRequests(apiKey string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("api_key = ? AND event_kind = ? AND timestamp >= ?", apiKey, models.EventKindRequest, since).
		Count(&n).Error
	return n, err
}

// CountErrors counts request-kind events for an IP that completed with a 4xx
// or 5xx status.
func (s *EventService) CountErrors(ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND event_kind = ? AND timestamp >= ? AND status_code >= 400",
			ip, models.EventKindRequest, since).
		Count(&n).Error
	return n, err
}

// DistinctEndpoints counts the distinct endpoints an IP has touched.
func (s *EventService) DistinctEndpoints(ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND event_kind = ? AND timestamp >= ? AND endpoint <> ''",
			ip, models.EventKindRequest, since).
		Distinct("endpoint").
		Count(&n).Error
	return n, err
}

// DistinctUserAgents counts the distinct user agents observed for an IP.
func (s *EventService) DistinctUserAgents(ip string, since time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND event_kind = ? AND timestamp >= ? AND user_agent <> ''",
			ip, models.EventKindRequest, since).
		Distinct("user_agent").
		Count(&n).Error
	return n, err
}

// HourlyBaseline returns the mean hourly request count for an IP over the
// seven days preceding the current hour. A client with no history gets 0,
// which anomaly detection treats as insufficient evidence, never as a signal.
func (s *EventService) HourlyBaseline(ip string, now time.Time) (float64, error) {
	hourStart := now.Truncate(time.Hour)
	windowStart := hourStart.Add(-7 * 24 * time.Hour)

	var n int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("ip_address = ? AND event_kind = ? AND timestamp >= ? AND timestamp < ?",
			ip, models.EventKindRequest, windowStart, hourStart).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return float64(n) / (7 * 24), nil
}

// CurrentHourCount counts request-kind events for an IP in the running hour.
func (s *EventService) CurrentHourCount(ip string, now time.Time) (int64, error) {
	return s.CountRequests(ip, now.Truncate(time.Hour))
}

// Offender is one IP aggregated above a volumetric threshold.
type Offender struct {
	IPAddress string
	Count     int64
}

// TopOffenders groups request-kind events per IP since the given instant and
// returns every IP whose count exceeds the threshold, busiest first. Multiple
// rows in one pass is the distributed-attack case.
func (s *EventService) TopOffenders(since time.Time, threshold int) ([]Offender, error) {
	var offenders []Offender
	err := s.db.Model(&models.SecurityEvent{}).
		Select("ip_address, COUNT(*) AS count").
		Where("event_kind = ? AND timestamp >= ?", models.EventKindRequest, since).
		Group("ip_address").
		Having("COUNT(*) > ?", threshold).
		Order("count DESC").
		Scan(&offenders).Error
	return offenders, err
}

// RecentIPs lists the distinct IPs with request activity since the instant,
// feeding the periodic abuse sweep.
func (s *EventService) RecentIPs(since time.Time) ([]string, error) {
	var ips []string
	err := s.db.Model(&models.SecurityEvent{}).
		Where("event_kind = ? AND timestamp >= ?", models.EventKindRequest, since).
		Distinct().
		Pluck("ip_address", &ips).Error
	return ips, err
}

// Reset deletes the counted request events for an IP, optionally scoped to
// one endpoint. Manual remediation only; nothing in the decision path calls it.
func (s *EventService) Reset(ip, endpoint string) (int64, error) {
	q := s.db.Where("ip_address = ? AND event_kind = ?", ip, models.EventKindRequest)
	if endpoint != "" {
		q = q.Where("endpoint = ?", endpoint)
	}
	res := q.Delete(&models.SecurityEvent{})
	return res.RowsAffected, res.Error
}

// PruneBefore deletes events older than the cutoff. Housekeeping, driven by
// the sweep scheduler; correctness never depends on it running.
func (s *EventService) PruneBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("timestamp < ?", cutoff).Delete(&models.SecurityEvent{})
	return res.RowsAffected, res.Error
}

// Recent returns the newest events for the ops API, newest first.
func (s *EventService) Recent(limit int) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent
	q := s.db.Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}
