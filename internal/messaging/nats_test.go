package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twofivefivedev/nz-transit-app/internal/common/logger"
	"github.com/twofivefivedev/nz-transit-app/pkg/transit/models"
)

func TestSubjectToken(t *testing.T) {
	cases := map[string]string{
		"WELL":       "WELL",
		" 5515 ":     "5515",
		"a.b":        "a_b",
		"stop>*":     "stop__",
		"route/14 x": "route_14_x",
		"":           "_",
	}
	for in, want := range cases {
		assert.Equal(t, want, subjectToken(in), "input %q", in)
	}
}

func TestSubjects(t *testing.T) {
	s := Subjects{Prefix: "metlink"}
	assert.Equal(t, "metlink.vehicles", s.Vehicles())
	assert.Equal(t, "metlink.alerts", s.Alerts())
	assert.Equal(t, "metlink.sync", s.Sync())
	assert.Equal(t, "metlink.stop.WELL", s.StopDepartures("WELL"))
	assert.Equal(t, "metlink.stop.a_b", s.StopDepartures("a.b"))
}

type fixedRunner struct{ result models.SyncResult }

func (r fixedRunner) SyncAll(context.Context) models.SyncResult { return r.result }

func TestSyncTriggerRunEncodesResult(t *testing.T) {
	trigger := NewSyncTrigger(fixedRunner{result: models.SyncResult{
		Success:             false,
		DelayCount:          4,
		AlertCount:          1,
		Errors:              []string{"Vehicle positions: GTFS-RT fetch failed: 503 Service Unavailable"},
		TotalDurationMillis: 812,
	}}, logger.Nop())

	body, err := trigger.Run(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": false,
		"tripUpdates": 4,
		"vehiclePositions": 0,
		"serviceAlerts": 1,
		"errors": ["Vehicle positions: GTFS-RT fetch failed: 503 Service Unavailable"],
		"duration": 812
	}`, string(body))
}

func TestSyncTriggerUnsubscribeWithoutSubscription(t *testing.T) {
	assert.NoError(t, NewSyncTrigger(fixedRunner{}, logger.Nop()).Unsubscribe())
}
