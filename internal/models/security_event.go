package models

import (
	"time"
)

// Event kinds recorded in the security_events table.
const (
	EventKindRequest   = "request"
	EventKindRateLimit = "rate_limit"
	EventKindAbuse     = "abuse"
	EventKindDDoS      = "ddos"
)

// SecurityEvent is one observed request or detection. Rows are append-only:
// every decision is recomputed by counting them, nothing is ever mutated.
// Old rows are pruned by housekeeping, not by the decision path.
type SecurityEvent struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UUID       string    `json:"uuid" gorm:"uniqueIndex"`
	IPAddress  string    `json:"ip_address" gorm:"index:idx_events_ip_ts"`
	EventKind  string    `json:"event_kind" gorm:"index"`
	Endpoint   string    `json:"endpoint"`
	APIKey     string    `json:"api_key" gorm:"index"`
	UserAgent  string    `json:"user_agent"`
	StatusCode int       `json:"status_code"`
	Timestamp  time.Time `json:"timestamp" gorm:"index:idx_events_ip_ts"`
	Metadata   string    `json:"metadata" gorm:"type:text"`
}
