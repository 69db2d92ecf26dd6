package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/geoip"
	"github.com/argus-sec/argus/internal/models"
)

func newDDoSProtector(t *testing.T, limits func(*config.Thresholds), alerter Alerter, resolver *fakeResolver) (*DDoSService, *EventService, *IPListService) {
	t.Helper()
	db := setupTestDB(t)
	events := NewEventService(db)
	lists := NewIPListService(db)
	th := testThresholds()
	if limits != nil {
		limits(&th)
	}
	if alerter == nil {
		alerter = &fakeAlerter{}
	}
	var geo geoip.Resolver
	if resolver != nil {
		geo = resolver
	}
	return NewDDoSService(events, lists, th, alerter, geo), events, lists
}

func TestDDoSService_DetectAttack(t *testing.T) {
	t.Run("flags every ip above the volumetric threshold", func(t *testing.T) {
		svc, events, _ := newDDoSProtector(t, func(th *config.Thresholds) {
			th.DDoSVolumetric = 100
		}, nil, nil)

		seedRequests(t, events, "203.0.113.1", 150, time.Now())
		seedRequests(t, events, "203.0.113.2", 120, time.Now())
		seedRequests(t, events, "203.0.113.3", 10, time.Now())

		offenders, degraded := svc.DetectAttack()
		require.False(t, degraded)
		require.Len(t, offenders, 2, "distributed attack returns multiple offenders in one pass")
		assert.Equal(t, "203.0.113.1", offenders[0].IPAddress)
		assert.EqualValues(t, 150, offenders[0].Count)
		assert.Equal(t, "203.0.113.2", offenders[1].IPAddress)
	})

	t.Run("whitelisted ips are never offenders", func(t *testing.T) {
		svc, events, lists := newDDoSProtector(t, nil, nil, nil)
		_, err := lists.WhitelistAdd("203.0.113.4", 0, "load balancer")
		require.NoError(t, err)
		seedRequests(t, events, "203.0.113.4", 500, time.Now())

		offenders, degraded := svc.DetectAttack()
		require.False(t, degraded)
		assert.Empty(t, offenders)
	})

	t.Run("old traffic is outside the window", func(t *testing.T) {
		svc, events, _ := newDDoSProtector(t, nil, nil, nil)
		seedRequests(t, events, "203.0.113.5", 500, time.Now().Add(-5*time.Minute))

		offenders, degraded := svc.DetectAttack()
		require.False(t, degraded)
		assert.Empty(t, offenders)
	})

	t.Run("unreachable store reports no attack, degraded", func(t *testing.T) {
		db := setupTestDB(t)
		svc := NewDDoSService(NewEventService(db), NewIPListService(db), testThresholds(), &fakeAlerter{}, nil)
		closeStore(t, db)

		offenders, degraded := svc.DetectAttack()
		assert.Empty(t, offenders)
		assert.True(t, degraded)
	})
}

func TestDDoSService_ConnectionRate(t *testing.T) {
	alerter := &fakeAlerter{}
	svc, _, _ := newDDoSProtector(t, func(th *config.Thresholds) {
		th.ConnectionRate = 500
	}, alerter, nil)

	assert.False(t, svc.CheckConnectionRate(400))
	assert.Empty(t, alerter.sent())

	assert.True(t, svc.CheckConnectionRate(900))
	calls := alerter.sent()
	require.Len(t, calls, 1)
	assert.Equal(t, models.AlertLevelCritical, calls[0].Level)
	assert.Equal(t, "connection_rate", calls[0].AlertType)
}

func TestDDoSService_GeoCheck(t *testing.T) {
	t.Run("disabled filter makes zero lookups", func(t *testing.T) {
		resolver := &fakeResolver{countries: map[string]string{"203.0.113.10": "RU"}}
		svc, _, _ := newDDoSProtector(t, func(th *config.Thresholds) {
			th.GeoFilterEnabled = false
		}, nil, resolver)

		violations := svc.GeoCheck(context.Background(), []string{"203.0.113.10"})
		assert.Empty(t, violations)
		assert.Zero(t, resolver.lookups)
	})

	t.Run("flags ips outside the allow list", func(t *testing.T) {
		resolver := &fakeResolver{countries: map[string]string{
			"203.0.113.10": "DE",
			"203.0.113.11": "US",
		}}
		svc, _, _ := newDDoSProtector(t, func(th *config.Thresholds) {
			th.GeoFilterEnabled = true
			th.AllowedCountries = []string{"US", "CA"}
		}, nil, resolver)

		violations := svc.GeoCheck(context.Background(), []string{"203.0.113.10", "203.0.113.11"})
		require.Len(t, violations, 1)
		assert.Equal(t, "203.0.113.10", violations[0].IPAddress)
		assert.Equal(t, "DE", violations[0].Country)
	})

	t.Run("lookup failure skips the ip", func(t *testing.T) {
		resolver := &fakeResolver{countries: map[string]string{}}
		svc, _, _ := newDDoSProtector(t, func(th *config.Thresholds) {
			th.GeoFilterEnabled = true
			th.AllowedCountries = []string{"US"}
		}, nil, resolver)

		violations := svc.GeoCheck(context.Background(), []string{"203.0.113.12"})
		assert.Empty(t, violations)
		assert.Equal(t, 1, resolver.lookups)
	})

	t.Run("whitelisted ips are not resolved", func(t *testing.T) {
		resolver := &fakeResolver{countries: map[string]string{"203.0.113.13": "KP"}}
		svc, _, lists := newDDoSProtector(t, func(th *config.Thresholds) {
			th.GeoFilterEnabled = true
			th.AllowedCountries = []string{"US"}
		}, nil, resolver)
		_, err := lists.WhitelistAdd("203.0.113.13", 0, "")
		require.NoError(t, err)

		violations := svc.GeoCheck(context.Background(), []string{"203.0.113.13"})
		assert.Empty(t, violations)
		assert.Zero(t, resolver.lookups)
	})
}

func TestDDoSService_Sweep(t *testing.T) {
	svc, events, _ := newDDoSProtector(t, func(th *config.Thresholds) {
		th.DDoSVolumetric = 50
	}, nil, nil)
	seedRequests(t, events, "203.0.113.20", 80, time.Now())

	type call struct{ ip, reason string }
	var calls []call
	svc.Sweep(context.Background(), func(ip, reason, message string) {
		calls = append(calls, call{ip, reason})
	})

	require.Len(t, calls, 1)
	assert.Equal(t, "203.0.113.20", calls[0].ip)
	assert.Equal(t, ReasonVolumetric, calls[0].reason)
}
