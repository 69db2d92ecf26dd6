package models

import (
	"time"
)

// Alert severity levels, ordered.
const (
	AlertLevelInfo     = "info"
	AlertLevelWarning  = "warning"
	AlertLevelCritical = "critical"
)

// Alert is an emitted security alert, persisted for the ops UI/API regardless
// of whether external delivery succeeded.
type Alert struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Component string    `json:"component"` // ratelimit, abuse, ddos, response
	Level     string    `json:"level"`     // info, warning, critical
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message" gorm:"type:text"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// AlertChannel is an external delivery target expressed as a shoutrrr URL
// (discord://..., slack://..., smtp://...). MinLevel filters what it receives.
type AlertChannel struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	MinLevel  string    `json:"min_level"` // info, warning, critical
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
