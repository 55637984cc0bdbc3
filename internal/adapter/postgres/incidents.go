package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const incidentColumns = `id, reporter_id, description, evidence_modality, evidence_has_location,
	latitude, longitude, district, conditions, status, forwarded, COALESCE(crisis_id, ''),
	outcome, scores, created_at, updated_at`

const crisisColumns = `id, incident_id, district, authority, priority, action, crisis_level,
	emergency_type, description, status, forwarded_by, closed_by, created_at, closed_at`

// IncidentStore persists incidents and crisis records. Read-modify-write
// operations lock the affected rows with SELECT ... FOR UPDATE.
type IncidentStore struct {
	db *DB
}

// NewIncidentStore creates an IncidentStore on db.
func NewIncidentStore(db *DB) *IncidentStore {
	return &IncidentStore{db: db}
}

func (s *IncidentStore) CreateIncident(ctx context.Context, inc domain.Incident) error {
	lat, lng := coordinates(inc.Location)
	_, err := s.db.pool.Exec(ctx, `
		INSERT INTO incidents (
			id, reporter_id, description, evidence_modality, evidence_has_location,
			latitude, longitude, district, conditions, status, forwarded, crisis_id,
			outcome, priority, scores, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14, $15, $16, $17)`,
		inc.ID, inc.ReporterID, inc.Description, inc.Evidence.Modality, inc.Evidence.HasLocationMetadata,
		lat, lng, inc.District, inc.Conditions, inc.Status, inc.Forwarded, inc.CrisisID,
		inc.Outcome, inc.Scores.FinalPriority, inc.Scores, inc.CreatedAt, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.ID, err)
	}
	return nil
}

func (s *IncidentStore) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	return getIncident(ctx, s.db.pool, id, false)
}

func (s *IncidentStore) ListIncidents(ctx context.Context, f domain.IncidentFilter) ([]domain.Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.District != "" {
		args = append(args, f.District)
		where = append(where, fmt.Sprintf("district = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + incidentColumns + " FROM incidents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

func (s *IncidentStore) UpdateIncident(ctx context.Context, id string, fn func(*domain.Incident) error) (domain.Incident, error) {
	var out domain.Incident
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		inc, err := getIncident(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&inc); err != nil {
			return err
		}
		if err := saveIncident(ctx, tx, inc); err != nil {
			return err
		}
		out = inc
		return nil
	})
	return out, err
}

func (s *IncidentStore) OpenCrisis(ctx context.Context, incidentID string, fn func(domain.Incident) (domain.CrisisRecord, error)) (domain.CrisisRecord, bool, error) {
	var (
		out     domain.CrisisRecord
		created bool
	)
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		inc, err := getIncident(ctx, tx, incidentID, true)
		if err != nil {
			return err
		}

		existing, err := scanCrisis(tx.QueryRow(ctx,
			"SELECT "+crisisColumns+" FROM crises WHERE incident_id = $1", incidentID))
		switch {
		case err == nil:
			out = existing
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("read crisis for incident %s: %w", incidentID, err)
		}

		crisis, err := fn(inc)
		if err != nil {
			return err
		}
		if err := insertCrisis(ctx, tx, crisis); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE incidents SET forwarded = TRUE, crisis_id = $2, updated_at = $3 WHERE id = $1`,
			incidentID, crisis.ID, crisis.CreatedAt,
		); err != nil {
			return fmt.Errorf("mark incident %s forwarded: %w", incidentID, err)
		}
		out, created = crisis, true
		return nil
	})
	if err != nil {
		return domain.CrisisRecord{}, false, err
	}
	return out, created, nil
}

func (s *IncidentStore) GetCrisis(ctx context.Context, id string) (domain.CrisisRecord, error) {
	c, err := scanCrisis(s.db.pool.QueryRow(ctx, "SELECT "+crisisColumns+" FROM crises WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CrisisRecord{}, fmt.Errorf("crisis %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CrisisRecord{}, fmt.Errorf("get crisis %s: %w", id, err)
	}
	return c, nil
}

func (s *IncidentStore) ListCrises(ctx context.Context, f domain.CrisisFilter) ([]domain.CrisisRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Authority != "" {
		args = append(args, f.Authority)
		where = append(where, fmt.Sprintf("authority = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + crisisColumns + " FROM crises"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list crises: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CrisisRecord, 0)
	for rows.Next() {
		c, err := scanCrisis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crisis: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list crises: %w", err)
	}
	return out, nil
}

func (s *IncidentStore) UpdateCrisis(ctx context.Context, id string, fn func(*domain.CrisisRecord, *domain.Incident) error) (domain.CrisisRecord, domain.Incident, error) {
	var (
		outCrisis   domain.CrisisRecord
		outIncident domain.Incident
	)
	err := s.db.RunInTx(ctx, func(tx pgx.Tx) error {
		c, err := scanCrisis(tx.QueryRow(ctx,
			"SELECT "+crisisColumns+" FROM crises WHERE id = $1 FOR UPDATE", id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("crisis %s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get crisis %s: %w", id, err)
		}
		inc, err := getIncident(ctx, tx, c.IncidentID, true)
		if err != nil {
			return err
		}

		if err := fn(&c, &inc); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE crises SET status = $2, closed_by = $3, closed_at = $4 WHERE id = $1`,
			c.ID, c.Status, c.ClosedBy, c.ClosedAt,
		); err != nil {
			return fmt.Errorf("update crisis %s: %w", id, err)
		}
		if err := saveIncident(ctx, tx, inc); err != nil {
			return err
		}
		outCrisis, outIncident = c, inc
		return nil
	})
	return outCrisis, outIncident, err
}

func getIncident(ctx context.Context, q querier, id string, forUpdate bool) (domain.Incident, error) {
	query := "SELECT " + incidentColumns + " FROM incidents WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	inc, err := scanIncident(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, fmt.Errorf("incident %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("get incident %s: %w", id, err)
	}
	return inc, nil
}

// saveIncident writes the mutable incident fields. Scores are immutable and
// never rewritten.
func saveIncident(ctx context.Context, q querier, inc domain.Incident) error {
	_, err := q.Exec(ctx, `
		UPDATE incidents
		SET district = $2, status = $3, forwarded = $4, crisis_id = NULLIF($5, ''),
			outcome = $6, updated_at = $7
		WHERE id = $1`,
		inc.ID, inc.District, inc.Status, inc.Forwarded, inc.CrisisID, inc.Outcome, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident %s: %w", inc.ID, err)
	}
	return nil
}

func insertCrisis(ctx context.Context, q querier, c domain.CrisisRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO crises (
			id, incident_id, district, authority, priority, action, crisis_level,
			emergency_type, description, status, forwarded_by, closed_by, created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.IncidentID, c.District, c.Authority, c.Priority, c.Action, c.CrisisLevel,
		c.EmergencyType, c.Description, c.Status, c.ForwardedBy, c.ClosedBy, c.CreatedAt, c.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert crisis for incident %s: %w", c.IncidentID, err)
	}
	return nil
}

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var (
		inc      domain.Incident
		lat, lng *float64
	)
	err := row.Scan(
		&inc.ID, &inc.ReporterID, &inc.Description, &inc.Evidence.Modality, &inc.Evidence.HasLocationMetadata,
		&lat, &lng, &inc.District, &inc.Conditions, &inc.Status, &inc.Forwarded, &inc.CrisisID,
		&inc.Outcome, &inc.Scores, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return domain.Incident{}, err
	}
	if lat != nil && lng != nil {
		inc.Location = &domain.Coordinates{Lat: *lat, Lng: *lng}
	}
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	return inc, nil
}

func scanCrisis(row pgx.Row) (domain.CrisisRecord, error) {
	var c domain.CrisisRecord
	err := row.Scan(
		&c.ID, &c.IncidentID, &c.District, &c.Authority, &c.Priority, &c.Action, &c.CrisisLevel,
		&c.EmergencyType, &c.Description, &c.Status, &c.ForwardedBy, &c.ClosedBy, &c.CreatedAt, &c.ClosedAt,
	)
	if err != nil {
		return domain.CrisisRecord{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if c.ClosedAt != nil {
		t := c.ClosedAt.UTC()
		c.ClosedAt = &t
	}
	return c, nil
}

func coordinates(c *domain.Coordinates) (lat, lng *float64) {
	if c == nil {
		return nil, nil
	}
	return &c.Lat, &c.Lng
}
