package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIncidentID = "2f1c7c1e-6a39-4a7e-9a43-0d4b9b0b1a11"

func TestParseVerdict(t *testing.T) {
	ts := time.Date(2024, 7, 30, 3, 15, 0, 0, time.UTC)

	t.Run("full payload", func(t *testing.T) {
		raw := RawEvent{
			Value:     []byte(`{"incident_id":"` + testIncidentID + `","verified":true,"source":"community","decided_at":"2024-07-30T04:00:00Z"}`),
			Timestamp: ts,
		}
		v, err := ParseVerdict(raw)

		require.NoError(t, err)
		assert.Equal(t, testIncidentID, v.IncidentID)
		assert.True(t, v.Verified)
		assert.Equal(t, "community", v.Source)
		assert.Equal(t, time.Date(2024, 7, 30, 4, 0, 0, 0, time.UTC), v.DecidedAt)
	})

	t.Run("incident id from key and source from header", func(t *testing.T) {
		raw := RawEvent{
			Key:       []byte(testIncidentID),
			Value:     []byte(`{"verified":false}`),
			Headers:   map[string]string{"source": "moderator-panel"},
			Timestamp: ts,
		}
		v, err := ParseVerdict(raw)

		require.NoError(t, err)
		assert.Equal(t, testIncidentID, v.IncidentID)
		assert.False(t, v.Verified)
		assert.Equal(t, "moderator-panel", v.Source)
		assert.Equal(t, ts, v.DecidedAt)
	})

	t.Run("missing incident id", func(t *testing.T) {
		_, err := ParseVerdict(RawEvent{Value: []byte(`{"verified":true}`)})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseVerdict(RawEvent{Value: []byte("{invalid json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse verdict")
	})
}

func TestNewIncidentEvent(t *testing.T) {
	fixed := time.Date(2024, 7, 30, 6, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(fixed))
	defer SetClock(nil)

	inc := Incident{
		ID:       testIncidentID,
		District: "Wayanad",
		Status:   StatusPending,
		CrisisID: "crisis-1",
		Scores:   ScoreSet{FinalPriority: 0.72, Action: ActionDispatch},
	}
	evt := NewIncidentEvent(EventForwarded, inc, "mod-7")

	assert.Equal(t, EventForwarded, evt.Type)
	assert.Equal(t, testIncidentID, evt.IncidentID)
	assert.Equal(t, "crisis-1", evt.CrisisID)
	assert.Equal(t, "Wayanad", evt.District)
	assert.Equal(t, ActionDispatch, evt.Action)
	assert.Equal(t, 0.72, evt.Priority)
	assert.Equal(t, "mod-7", evt.ActorID)
	assert.Equal(t, fixed, evt.OccurredAt)
}

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		priority float64
		want     Action
	}{
		{1.0, ActionDispatch},
		{0.7, ActionDispatch},
		{math.Nextafter(0.7, 0), ActionValidate},
		{0.4, ActionValidate},
		{math.Nextafter(0.4, 0), ActionHold},
		{0.0, ActionHold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyAction(tt.priority), "priority %v", tt.priority)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.3))
	assert.Equal(t, 0.55, Clamp01(0.55))
}

func TestDefaultAudience(t *testing.T) {
	assert.Equal(t, AudienceCitizens, DefaultAudience(KindBroadcast))
	assert.Equal(t, AudienceCitizens, DefaultAudience(KindAuthorityAlert))
	assert.Equal(t, AudienceModerators, DefaultAudience(KindAuthorityInstruction))
}

func TestValidateStruct(t *testing.T) {
	t.Run("coordinates in range", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(Coordinates{Lat: 10.85, Lng: 76.27}))
	})

	t.Run("latitude out of range", func(t *testing.T) {
		err := ValidateStruct(Coordinates{Lat: 91, Lng: 76.27})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.Contains(t, err.Error(), "lat")
	})

	t.Run("unknown weather tier", func(t *testing.T) {
		err := ValidateStruct(Conditions{Weather: "apocalyptic"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
	})
}

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixedTime))

		assert.Equal(t, fixedTime, Now())

		SetClock(nil)
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)

		assert.True(t, time.Since(Now()) < time.Second)
	})
}
