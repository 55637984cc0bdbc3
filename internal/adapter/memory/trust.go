package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// TrustStore keeps trust profiles in a map.
type TrustStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.TrustProfile
}

// NewTrustStore creates an empty TrustStore.
func NewTrustStore() *TrustStore {
	return &TrustStore{profiles: make(map[string]domain.TrustProfile)}
}

func (s *TrustStore) GetTrust(_ context.Context, reporterID string) (domain.TrustProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[reporterID]
	if !ok {
		return domain.TrustProfile{}, fmt.Errorf("trust profile %s: %w", reporterID, domain.ErrNotFound)
	}
	return cloneProfile(p), nil
}

// CreateTrust stores p unless the reporter already has a profile and
// returns the stored one.
func (s *TrustStore) CreateTrust(_ context.Context, p domain.TrustProfile) (domain.TrustProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.profiles[p.ReporterID]; ok {
		return cloneProfile(cur), nil
	}
	s.profiles[p.ReporterID] = cloneProfile(p)
	return cloneProfile(p), nil
}

// UpdateTrust applies fn to the reporter's profile, or to initial when none
// exists, under the store lock.
func (s *TrustStore) UpdateTrust(
	_ context.Context,
	initial domain.TrustProfile,
	fn func(domain.TrustProfile) domain.TrustProfile,
) (domain.TrustProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[initial.ReporterID]
	if !ok {
		cur = initial
	}
	next := fn(cloneProfile(cur))
	next.ReporterID = initial.ReporterID
	s.profiles[next.ReporterID] = cloneProfile(next)
	return next, nil
}

func cloneProfile(p domain.TrustProfile) domain.TrustProfile {
	p.RatioHistory = slices.Clone(p.RatioHistory)
	return p
}
