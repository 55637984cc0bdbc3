//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/adapter/postgres"
	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/trust"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPostgres(ctx context.Context, t *testing.T) *postgres.DB {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("triage"),
		tcpostgres.WithUsername("triage"),
		tcpostgres.WithPassword("triage"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start postgres container")

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.Open(ctx, dsn, discardLogger())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "schema must be re-runnable")
	return db
}

func newIncident(district string, at time.Time) domain.Incident {
	return domain.Incident{
		ID:          uuid.NewString(),
		ReporterID:  "citizen-1",
		Description: "Landslide near the tea estate, road blocked",
		Evidence:    domain.Evidence{Modality: domain.ModalityImage, HasLocationMetadata: true},
		Location:    &domain.Coordinates{Lat: 9.85, Lng: 76.97},
		District:    district,
		Conditions:  domain.Conditions{Weather: domain.WeatherSevere},
		Status:      domain.StatusPending,
		Scores: domain.ScoreSet{
			Severity: 0.9, Trust: 0.5, Evidence: 0.8, ContextRisk: 0.6,
			FinalPriority: 0.216, Action: domain.ActionHold,
			EmergencyType: "natural_disaster", Keywords: []string{"landslide"},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestIncidentStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)
	store := postgres.NewIncidentStore(db)
	require.NoError(t, db.CheckReadiness(ctx))

	base := time.Date(2024, 7, 30, 2, 0, 0, 0, time.UTC)
	first := newIncident("Idukki", base)
	second := newIncident("Idukki", base.Add(time.Minute))
	other := newIncident("Kollam", base.Add(2*time.Minute))
	other.Location = nil
	for _, inc := range []domain.Incident{first, second, other} {
		require.NoError(t, store.CreateIncident(ctx, inc))
	}

	t.Run("get round trips scores and location", func(t *testing.T) {
		got, err := store.GetIncident(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first, got)

		got, err = store.GetIncident(ctx, other.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Location)
	})

	t.Run("missing incident", func(t *testing.T) {
		_, err := store.GetIncident(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list newest first with filters", func(t *testing.T) {
		got, err := store.ListIncidents(ctx, domain.IncidentFilter{District: "Idukki", Status: domain.StatusPending})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, second.ID, got[0].ID)

		got, err = store.ListIncidents(ctx, domain.IncidentFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, other.ID, got[0].ID)
	})

	t.Run("update aborts on callback error", func(t *testing.T) {
		_, err := store.UpdateIncident(ctx, first.ID, func(inc *domain.Incident) error {
			inc.Status = domain.StatusResolved
			return domain.ErrInvalidTransition
		})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := store.GetIncident(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
	})

	t.Run("concurrent open crisis creates one record", func(t *testing.T) {
		const n = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			ids     = map[string]int{}
			created int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, ok, err := store.OpenCrisis(ctx, second.ID, func(inc domain.Incident) (domain.CrisisRecord, error) {
					return domain.CrisisRecord{
						ID: uuid.NewString(), IncidentID: inc.ID, District: inc.District,
						Authority: "Central Kerala Disaster Response Authority", Priority: inc.Scores.FinalPriority,
						Action: inc.Scores.Action, CrisisLevel: "critical", EmergencyType: inc.Scores.EmergencyType,
						Description: inc.Description, Status: domain.CrisisOpen, ForwardedBy: "mod-1",
						CreatedAt: base.Add(time.Hour),
					}, nil
				})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[c.ID]++
				if ok {
					created++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Len(t, ids, 1)

		inc, err := store.GetIncident(ctx, second.ID)
		require.NoError(t, err)
		assert.True(t, inc.Forwarded)
		assert.NotEmpty(t, inc.CrisisID)
	})

	t.Run("update crisis closes and verifies together", func(t *testing.T) {
		crises, err := store.ListCrises(ctx, domain.CrisisFilter{Authority: "Central Kerala Disaster Response Authority"})
		require.NoError(t, err)
		require.Len(t, crises, 1)

		closedAt := base.Add(2 * time.Hour)
		c, inc, err := store.UpdateCrisis(ctx, crises[0].ID, func(c *domain.CrisisRecord, inc *domain.Incident) error {
			c.Status = domain.CrisisClosed
			c.ClosedBy = "authority-central"
			c.ClosedAt = &closedAt
			inc.Status = domain.StatusVerified
			inc.Outcome = domain.OutcomeVerified
			inc.UpdatedAt = closedAt
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.CrisisClosed, c.Status)
		assert.Equal(t, domain.StatusVerified, inc.Status)

		got, err := store.GetCrisis(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ClosedAt)
		assert.True(t, closedAt.Equal(*got.ClosedAt))

		open, err := store.ListCrises(ctx, domain.CrisisFilter{Status: domain.CrisisOpen})
		require.NoError(t, err)
		assert.Empty(t, open)
	})
}

func TestTrustStore_WithLedger(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)
	ledger := trust.NewLedger(postgres.NewTrustStore(db), discardLogger())

	p, err := ledger.GetOrCreate(ctx, "citizen-9")
	require.NoError(t, err)
	assert.Equal(t, trust.InitialTrust, p.TrustScore)

	for _, verified := range []bool{true, true, false, true} {
		_, err := ledger.RecordOutcome(ctx, "citizen-9", verified)
		require.NoError(t, err)
	}

	p, err = ledger.GetOrCreate(ctx, "citizen-9")
	require.NoError(t, err)
	assert.Equal(t, 4, p.TotalReports)
	assert.Equal(t, 3, p.VerifiedReports)
	assert.Equal(t, 1, p.FalseReports)
	assert.InDelta(t, 0.75, p.VerificationRatio, 1e-9)
	assert.Len(t, p.RatioHistory, trust.TrendWindow)
}

// Separate ledgers stand in for separate service instances: they share the
// database but not the in-process reporter lock.
func TestTrustStore_ConcurrentLedgersDoNotLoseUpdates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)
	store := postgres.NewTrustStore(db)

	const perLedger = 10
	ledgers := []*trust.Ledger{
		trust.NewLedger(store, discardLogger()),
		trust.NewLedger(store, discardLogger()),
		trust.NewLedger(store, discardLogger()),
	}

	var wg sync.WaitGroup
	for _, l := range ledgers {
		for i := range perLedger {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := l.RecordOutcome(ctx, "shared-reporter", i%2 == 0)
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := l.GetOrCreate(ctx, "shared-reporter")
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	p, err := store.GetTrust(ctx, "shared-reporter")
	require.NoError(t, err)
	total := perLedger * len(ledgers)
	assert.Equal(t, total, p.TotalReports)
	assert.Equal(t, p.TotalReports, p.VerifiedReports+p.FalseReports)
	assert.Equal(t, total/2, p.VerifiedReports)
}
