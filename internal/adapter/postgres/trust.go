package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/jackc/pgx/v5"
)

const trustColumns = `reporter_id, total_reports, verified_reports, false_reports,
	verification_ratio, trust_score, trend, ratio_history, updated_at`

// TrustStore persists reporter trust profiles. Updates lock the profile row,
// so writers on different instances serialize per reporter.
type TrustStore struct {
	db *DB
}

// NewTrustStore creates a TrustStore on db.
func NewTrustStore(db *DB) *TrustStore {
	return &TrustStore{db: db}
}

func (s *TrustStore) GetTrust(ctx context.Context, reporterID string) (domain.TrustProfile, error) {
	return getTrust(ctx, s.db.pool, reporterID, false)
}

// CreateTrust inserts p unless the reporter already has a profile, and
// returns whichever profile is stored. An existing profile is never
// overwritten.
func (s *TrustStore) CreateTrust(ctx context.Context, p domain.TrustProfile) (domain.TrustProfile, error) {
	if err := insertTrust(ctx, s.db.pool, p); err != nil {
		return domain.TrustProfile{}, err
	}
	return getTrust(ctx, s.db.pool, p.ReporterID, false)
}

// UpdateTrust replaces the reporter's profile with fn applied to it inside
// one transaction, seeding the row from initial when it does not exist.
func (s *TrustStore) UpdateTrust(
	ctx context.Context,
	initial domain.TrustProfile,
	fn func(domain.TrustProfile) domain.TrustProfile,
) (domain.TrustProfile, error) {
	var out domain.TrustProfile
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := insertTrust(ctx, tx, initial); err != nil {
			return err
		}
		cur, err := getTrust(ctx, tx, initial.ReporterID, true)
		if err != nil {
			return err
		}

		next := fn(cur)
		history := next.RatioHistory
		if history == nil {
			history = []float64{}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE trust_profiles
			SET total_reports = $2, verified_reports = $3, false_reports = $4,
				verification_ratio = $5, trust_score = $6, trend = $7,
				ratio_history = $8, updated_at = $9
			WHERE reporter_id = $1`,
			cur.ReporterID, next.TotalReports, next.VerifiedReports, next.FalseReports,
			next.VerificationRatio, next.TrustScore, next.Trend, history, next.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update trust profile %s: %w", cur.ReporterID, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.TrustProfile{}, err
	}
	return out, nil
}

func insertTrust(ctx context.Context, q querier, p domain.TrustProfile) error {
	history := p.RatioHistory
	if history == nil {
		history = []float64{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO trust_profiles (`+trustColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (reporter_id) DO NOTHING`,
		p.ReporterID, p.TotalReports, p.VerifiedReports, p.FalseReports,
		p.VerificationRatio, p.TrustScore, p.Trend, history, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create trust profile %s: %w", p.ReporterID, err)
	}
	return nil
}

func getTrust(ctx context.Context, q querier, reporterID string, forUpdate bool) (domain.TrustProfile, error) {
	query := "SELECT " + trustColumns + " FROM trust_profiles WHERE reporter_id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var p domain.TrustProfile
	err := q.QueryRow(ctx, query, reporterID).Scan(
		&p.ReporterID, &p.TotalReports, &p.VerifiedReports, &p.FalseReports,
		&p.VerificationRatio, &p.TrustScore, &p.Trend, &p.RatioHistory, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TrustProfile{}, fmt.Errorf("trust profile %s: %w", reporterID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TrustProfile{}, fmt.Errorf("get trust profile %s: %w", reporterID, err)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
