package models

import (
	"time"
)

// List types for IPListEntry.
const (
	ListTypeWhitelist = "whitelist"
	ListTypeBlacklist = "blacklist"
)

// IPListEntry is one whitelist/blacklist row. Inserts append; the most recent
// row per (ip, list_type) is authoritative (last-write-wins), and expiry is
// evaluated lazily at read time. Historical blacklist rows double as the
// violation history that drives escalation, so they are never rewritten.
type IPListEntry struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UUID      string     `json:"uuid" gorm:"uniqueIndex"`
	IPAddress string     `json:"ip_address" gorm:"index:idx_iplist_ip_type"`
	ListType  string     `json:"list_type" gorm:"index:idx_iplist_ip_type"`
	ExpiresAt *time.Time `json:"expires_at"` // nil = permanent
	Reason    string     `json:"reason"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
}

// Active reports whether the entry is still in force at the given instant.
func (e *IPListEntry) Active(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}
