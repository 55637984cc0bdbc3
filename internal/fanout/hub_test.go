package fanout_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/incident-triage-service/internal/adapter/memory"
	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/fanout"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHub_BroadcastVisibility(t *testing.T) {
	h := fanout.NewHub(4, discard())

	citizens, stopC := h.Listen("Wayanad", domain.AudienceCitizens)
	defer stopC()
	mods, stopM := h.Listen("Wayanad", domain.AudienceModerators)
	defer stopM()
	other, stopO := h.Listen("Kollam", domain.AudienceCitizens)
	defer stopO()

	h.Broadcast(domain.ZoneMessage{ID: "m1", District: "Wayanad", Audience: domain.AudienceCitizens})
	h.Broadcast(domain.ZoneMessage{ID: "m2", District: "Wayanad", Audience: domain.AudienceModerators})

	require.Len(t, citizens, 1)
	assert.Equal(t, "m1", (<-citizens).ID)

	require.Len(t, mods, 2)
	assert.Equal(t, "m1", (<-mods).ID)
	assert.Equal(t, "m2", (<-mods).ID)

	assert.Empty(t, other)
}

func TestHub_FullQueueDropsWithoutBlocking(t *testing.T) {
	h := fanout.NewHub(1, discard())
	ch, stop := h.Listen("Kollam", domain.AudienceCitizens)
	defer stop()

	h.Broadcast(domain.ZoneMessage{ID: "a", District: "Kollam", Audience: domain.AudienceCitizens})
	h.Broadcast(domain.ZoneMessage{ID: "b", District: "Kollam", Audience: domain.AudienceCitizens})

	require.Len(t, ch, 1)
	assert.Equal(t, "a", (<-ch).ID)
}

func TestHub_StopClosesAndUnregisters(t *testing.T) {
	h := fanout.NewHub(0, discard())
	ch, stop := h.Listen("Kollam", domain.AudienceCitizens)
	assert.Equal(t, 1, h.Listeners("Kollam", domain.AudienceCitizens))

	stop()
	stop()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Listeners("Kollam", domain.AudienceCitizens))

	// Broadcasting after stop must not panic on the closed channel.
	h.Broadcast(domain.ZoneMessage{ID: "x", District: "Kollam", Audience: domain.AudienceCitizens})
}

func TestRouter_ListenReceivesPublished(t *testing.T) {
	h := fanout.NewHub(4, discard())
	r := fanout.NewRouter(memory.NewFeedStore(10), discard(), observability.NewMetricsForTesting(), fanout.WithHub(h))

	ch, stop, err := r.Listen("calicut", domain.AudienceModerators)
	require.NoError(t, err)
	defer stop()

	msg, err := r.Publish(context.Background(), broadcast("Kozhikode", "Road closed"))
	require.NoError(t, err)

	require.Len(t, ch, 1)
	assert.Equal(t, msg.ID, (<-ch).ID)
}

func TestRouter_ListenErrors(t *testing.T) {
	plain := fanout.NewRouter(memory.NewFeedStore(10), discard(), observability.NewMetricsForTesting())
	_, _, err := plain.Listen("Kollam", domain.AudienceCitizens)
	assert.ErrorIs(t, err, fanout.ErrStreamingDisabled)

	r := fanout.NewRouter(memory.NewFeedStore(10), discard(), observability.NewMetricsForTesting(),
		fanout.WithHub(fanout.NewHub(1, discard())))
	_, _, err = r.Listen("Atlantis", domain.AudienceCitizens)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, _, err = r.Listen("Kollam", domain.Audience("press"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
