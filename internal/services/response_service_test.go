package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-sec/argus/internal/models"
)

func newResponder(t *testing.T) (*ResponseService, *IPListService, *EventService, *fakeAlerter) {
	t.Helper()
	db := setupTestDB(t)
	lists := NewIPListService(db)
	events := NewEventService(db)
	alerter := &fakeAlerter{}
	return NewResponseService(lists, events, alerter, testThresholds()), lists, events, alerter
}

func activeBlockMinutes(t *testing.T, lists *IPListService, ip string) int {
	t.Helper()
	entries, err := lists.List(models.ListTypeBlacklist)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IPAddress == ip {
			require.NotNil(t, e.ExpiresAt)
			return int(time.Until(*e.ExpiresAt).Round(time.Minute) / time.Minute)
		}
	}
	t.Fatalf("no active blacklist entry for %s", ip)
	return 0
}

func TestResponseService_EscalationTiers(t *testing.T) {
	responder, lists, _, _ := newResponder(t)

	// First offense: 15 minutes.
	require.NoError(t, responder.Respond("203.0.113.30", ReasonPattern, "rapid requests"))
	assert.Equal(t, 15, activeBlockMinutes(t, lists, "203.0.113.30"))

	// Second offense: 60 minutes.
	require.NoError(t, responder.Respond("203.0.113.30", ReasonPattern, "again"))
	assert.Equal(t, 60, activeBlockMinutes(t, lists, "203.0.113.30"))

	// Third offense: 24 hours.
	require.NoError(t, responder.Respond("203.0.113.30", ReasonPattern, "and again"))
	assert.Equal(t, 1440, activeBlockMinutes(t, lists, "203.0.113.30"))

	// Tiers are monotone: a fourth offense stays at the top tier.
	require.NoError(t, responder.Respond("203.0.113.30", ReasonPattern, "still"))
	assert.Equal(t, 1440, activeBlockMinutes(t, lists, "203.0.113.30"))
}

func TestResponseService_AlertSeverity(t *testing.T) {
	t.Run("detection reasons alert as warning", func(t *testing.T) {
		for _, reason := range []string{ReasonPattern, ReasonAnomaly, ReasonBehavioral, ReasonDDoS} {
			responder, _, _, alerter := newResponder(t)
			require.NoError(t, responder.Respond("203.0.113.31", reason, "detected"))

			calls := alerter.sent()
			require.Len(t, calls, 1)
			assert.Equalf(t, models.AlertLevelWarning, calls[0].Level, "reason=%s", reason)
		}
	})

	t.Run("volumetric attacks alert as critical", func(t *testing.T) {
		responder, _, _, alerter := newResponder(t)
		require.NoError(t, responder.Respond("203.0.113.32", ReasonVolumetric, "flood"))

		calls := alerter.sent()
		require.Len(t, calls, 1)
		assert.Equal(t, models.AlertLevelCritical, calls[0].Level)
	})

	t.Run("repeat offenders alert as critical", func(t *testing.T) {
		responder, _, _, alerter := newResponder(t)
		require.NoError(t, responder.Respond("203.0.113.33", ReasonPattern, "1"))
		require.NoError(t, responder.Respond("203.0.113.33", ReasonPattern, "2"))
		require.NoError(t, responder.Respond("203.0.113.33", ReasonPattern, "3"))

		calls := alerter.sent()
		require.Len(t, calls, 3)
		assert.Equal(t, models.AlertLevelWarning, calls[0].Level)
		assert.Equal(t, models.AlertLevelWarning, calls[1].Level)
		assert.Equal(t, models.AlertLevelCritical, calls[2].Level)
	})
}

func TestResponseService_AlertAttemptedWhenBlockFails(t *testing.T) {
	db := setupTestDB(t)
	alerter := &fakeAlerter{}
	responder := NewResponseService(NewIPListService(db), NewEventService(db), alerter, testThresholds())
	closeStore(t, db)

	err := responder.Respond("203.0.113.34", ReasonPattern, "store is down")
	assert.Error(t, err, "the failed block write is reported to the caller")
	require.Len(t, alerter.sent(), 1, "visibility matters more than the block in a degraded state")
}

func TestResponseService_RecordsDetectionEvent(t *testing.T) {
	responder, _, events, _ := newResponder(t)

	require.NoError(t, responder.Respond("203.0.113.35", ReasonVolumetric, "flood"))

	recent, err := events.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, models.EventKindDDoS, recent[0].EventKind)
	assert.Equal(t, "203.0.113.35", recent[0].IPAddress)
}

func TestResponseService_RespondToReport(t *testing.T) {
	responder, lists, _, alerter := newResponder(t)

	report := AbuseReport{
		IPAddress: "203.0.113.36",
		Findings:  []Finding{{Kind: FindingAnomaly, Detail: "current hour 350 vs baseline 100.0"}},
	}
	require.NoError(t, responder.RespondToReport(report))

	blocked, err := lists.IsBlacklisted("203.0.113.36")
	require.NoError(t, err)
	assert.True(t, blocked)

	calls := alerter.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, ReasonAnomaly, calls[0].AlertType)

	// A clean report does nothing.
	require.NoError(t, responder.RespondToReport(AbuseReport{IPAddress: "203.0.113.37"}))
	blocked, err = lists.IsBlacklisted("203.0.113.37")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestResponseService_InvalidIP(t *testing.T) {
	responder, _, _, _ := newResponder(t)
	assert.ErrorIs(t, responder.Respond("nope", ReasonPattern, ""), ErrInvalidIPAddress)
}
