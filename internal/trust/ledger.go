// Package trust maintains per-reporter reputation from adjudicated outcomes.
package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

const (
	// InitialTrust is the prior assigned to reporters with no history.
	InitialTrust = 0.5
	// MinTrust keeps a reporter's reports from being suppressed entirely.
	MinTrust = 0.1
	// MinSamples is the outcome count at which trust equals the raw ratio.
	MinSamples = 5
	// TrendWindow is the number of ratios compared to derive the trend.
	TrendWindow = 3
)

// Store persists trust profiles. GetTrust returns domain.ErrNotFound for
// unknown reporters. CreateTrust never overwrites an existing profile, and
// UpdateTrust is an atomic read-modify-write that starts from initial when
// the reporter has no profile yet.
type Store interface {
	GetTrust(ctx context.Context, reporterID string) (domain.TrustProfile, error)
	CreateTrust(ctx context.Context, p domain.TrustProfile) (domain.TrustProfile, error)
	UpdateTrust(ctx context.Context, initial domain.TrustProfile, fn func(domain.TrustProfile) domain.TrustProfile) (domain.TrustProfile, error)
}

// Ledger reads and updates trust profiles. Updates to one reporter are
// linearized by the store; the ledger also queues same-reporter updates in
// process so they do not pile up on the store's lock.
type Ledger struct {
	store  Store
	locks  *keyedMutex
	logger *slog.Logger
}

// NewLedger creates a Ledger backed by store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// GetOrCreate returns the reporter's profile, creating and persisting the
// new-reporter default on first sight.
func (l *Ledger) GetOrCreate(ctx context.Context, reporterID string) (domain.TrustProfile, error) {
	p, err := l.store.GetTrust(ctx, reporterID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.TrustProfile{}, fmt.Errorf("get trust profile: %w", err)
	}

	// A concurrent writer may win the insert; CreateTrust returns its profile.
	p, err = l.store.CreateTrust(ctx, NewProfile(reporterID))
	if err != nil {
		return domain.TrustProfile{}, fmt.Errorf("create trust profile: %w", err)
	}
	return p, nil
}

// RecordOutcome applies one adjudicated outcome to the reporter's profile
// and returns the updated profile.
func (l *Ledger) RecordOutcome(ctx context.Context, reporterID string, verified bool) (domain.TrustProfile, error) {
	unlock := l.locks.lock(reporterID)
	defer unlock()

	p, err := l.store.UpdateTrust(ctx, NewProfile(reporterID), func(cur domain.TrustProfile) domain.TrustProfile {
		return Apply(cur, verified)
	})
	if err != nil {
		return domain.TrustProfile{}, fmt.Errorf("record trust outcome: %w", err)
	}

	l.logger.Debug("trust outcome recorded",
		"reporter_id", reporterID,
		"verified", verified,
		"trust_score", p.TrustScore,
		"trend", p.Trend,
	)
	return p, nil
}

// NewProfile returns the default profile for a reporter with no history.
func NewProfile(reporterID string) domain.TrustProfile {
	return domain.TrustProfile{
		ReporterID: reporterID,
		TrustScore: InitialTrust,
		Trend:      domain.TrendStable,
		UpdatedAt:  domain.Now(),
	}
}

// Apply returns p updated with one outcome. It does not mutate p.
func Apply(p domain.TrustProfile, verified bool) domain.TrustProfile {
	p.TotalReports++
	if verified {
		p.VerifiedReports++
	} else {
		p.FalseReports++
	}
	p.VerificationRatio = float64(p.VerifiedReports) / float64(p.TotalReports)
	p.TrustScore = Score(p.VerifiedReports, p.TotalReports)

	history := make([]float64, 0, TrendWindow)
	history = append(history, p.RatioHistory...)
	history = append(history, p.VerificationRatio)
	if len(history) > TrendWindow {
		history = history[len(history)-TrendWindow:]
	}
	p.RatioHistory = history
	p.Trend = trend(history)
	p.UpdatedAt = domain.Now()
	return p
}

// Score blends the verification ratio with the new-reporter prior until
// MinSamples outcomes have been seen, then clamps to [MinTrust, 1].
func Score(verified, total int) float64 {
	if total <= 0 {
		return InitialTrust
	}
	ratio := float64(verified) / float64(total)
	weight := min(1.0, float64(total)/MinSamples)
	return max(MinTrust, min(1.0, InitialTrust+(ratio-InitialTrust)*weight))
}

func trend(history []float64) domain.Trend {
	if len(history) < TrendWindow {
		return domain.TrendStable
	}
	increasing, decreasing := true, true
	for i := 1; i < len(history); i++ {
		if history[i] <= history[i-1] {
			increasing = false
		}
		if history[i] >= history[i-1] {
			decreasing = false
		}
	}
	switch {
	case increasing:
		return domain.TrendImproving
	case decreasing:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// Level labels a trust score for display.
func Level(score float64) string {
	switch {
	case score >= 0.8:
		return "HIGHLY_TRUSTED"
	case score >= 0.6:
		return "TRUSTED"
	case score >= 0.4:
		return "MODERATE"
	case score >= 0.2:
		return "LOW"
	default:
		return "UNTRUSTED"
	}
}
