package models

import (
	"time"
)

// Setting is a simple key/value row for runtime state that does not warrant
// its own table (operator token hash, last prune timestamp).
type Setting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"uniqueIndex"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}
