package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/util"
)

var ErrInvalidAlertLevel = errors.New("invalid alert level")

var alertLevelRank = map[string]int{
	models.AlertLevelInfo:     0,
	models.AlertLevelWarning:  1,
	models.AlertLevelCritical: 2,
}

// Alerter is the alerting collaborator: fire-and-forget, a delivery failure
// must never fail the security decision that raised it.
type Alerter interface {
	Send(component, level, alertType, message string) error
}

// AlertService persists alerts and delivers them to configured shoutrrr
// channels. It satisfies Alerter.
type AlertService struct {
	db *gorm.DB
}

// NewAlertService returns an AlertService using the provided DB.
func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{db: db}
}

// Send stores the alert and pushes it to every enabled channel whose minimum
// level admits it. Delivery failures are logged and absorbed; only a failure
// to persist the alert row is returned.
func (s *AlertService) Send(component, level, alertType, message string) error {
	if _, ok := alertLevelRank[level]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidAlertLevel, level)
	}

	alert := &models.Alert{
		UUID:      uuid.NewString(),
		Component: component,
		Level:     level,
		AlertType: alertType,
		Message:   message,
		CreatedAt: time.Now(),
	}

	metrics.IncAlert(level)

	channels, chanErr := s.enabledChannels(level)
	delivered := len(channels) > 0
	for _, ch := range channels {
		body := fmt.Sprintf("[%s] %s/%s: %s", level, component, alertType, message)
		if err := shoutrrr.Send(ch.URL, body); err != nil {
			delivered = false
			logger.WithComponent("alerts").WithField("channel", ch.Name).
				Warnf("alert delivery failed: %v", err)
		}
	}
	alert.Delivered = delivered

	if err := s.db.Create(alert).Error; err != nil {
		logger.WithComponent("alerts").Warnf("persist alert: %v", err)
		return err
	}
	if chanErr != nil {
		logger.WithComponent("alerts").Warnf("load alert channels: %v", chanErr)
	}
	return nil
}

func (s *AlertService) enabledChannels(level string) ([]models.AlertChannel, error) {
	var channels []models.AlertChannel
	if err := s.db.Where("enabled = ?", true).Find(&channels).Error; err != nil {
		return nil, err
	}

	eligible := channels[:0]
	for _, ch := range channels {
		min, ok := alertLevelRank[ch.MinLevel]
		if !ok {
			min = alertLevelRank[models.AlertLevelWarning]
		}
		if alertLevelRank[level] >= min {
			eligible = append(eligible, ch)
		}
	}
	return eligible, nil
}

// CreateChannel registers a delivery channel after a light sanity check of
// the shoutrrr URL.
func (s *AlertService) CreateChannel(ch *models.AlertChannel) error {
	if ch.Name == "" || ch.URL == "" {
		return errors.New("channel name and url are required")
	}
	if ch.MinLevel == "" {
		ch.MinLevel = models.AlertLevelWarning
	}
	if _, ok := alertLevelRank[ch.MinLevel]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidAlertLevel, ch.MinLevel)
	}
	ch.UUID = uuid.NewString()
	return s.db.Create(ch).Error
}

// ListChannels returns all channels.
func (s *AlertService) ListChannels() ([]models.AlertChannel, error) {
	var channels []models.AlertChannel
	err := s.db.Order("created_at desc").Find(&channels).Error
	return channels, err
}

// DeleteChannel removes a channel by UUID.
func (s *AlertService) DeleteChannel(uuidStr string) error {
	res := s.db.Where("uuid = ?", uuidStr).Delete(&models.AlertChannel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// ListAlerts returns recent alerts, newest first.
func (s *AlertService) ListAlerts(limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&alerts).Error
	return alerts, err
}

// logSafe trims user-controlled text before it is interpolated into alert
// bodies or logs.
func logSafe(s string) string {
	return util.TruncateForLog(util.SanitizeForLog(s), 256)
}
