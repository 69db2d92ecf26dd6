package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.SecurityEvent{},
		&models.IPListEntry{},
		&models.Alert{},
		&models.AlertChannel{},
		&models.Setting{},
	))

	return db
}

// closeStore severs the underlying connection so every subsequent query
// fails, simulating an unreachable store.
func closeStore(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func testThresholds() config.Thresholds {
	return config.DefaultThresholds()
}

// seedRequests inserts n request events for ip at the given instant.
func seedRequests(t *testing.T, events *EventService, ip string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, events.Record(&models.SecurityEvent{
			IPAddress: ip,
			EventKind: models.EventKindRequest,
			Timestamp: at,
		}))
	}
}

type alertCall struct {
	Component string
	Level     string
	AlertType string
	Message   string
}

// fakeAlerter captures alerts for assertions.
type fakeAlerter struct {
	mu    sync.Mutex
	calls []alertCall
	err   error
}

func (f *fakeAlerter) Send(component, level, alertType, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, alertCall{component, level, alertType, message})
	return f.err
}

func (f *fakeAlerter) sent() []alertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alertCall(nil), f.calls...)
}

// fakeResolver maps IPs to fixed countries and counts lookups.
type fakeResolver struct {
	countries map[string]string
	lookups   int
}

func (f *fakeResolver) Country(_ context.Context, ip string) (string, error) {
	f.lookups++
	if c, ok := f.countries[ip]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown ip %s", ip)
}
