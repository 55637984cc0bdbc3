// Package memory provides in-process stores for single-instance deployments
// and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// IncidentStore keeps incidents and crises in maps guarded by one mutex, so
// every callback runs with exclusive access to both.
type IncidentStore struct {
	mu         sync.Mutex
	incidents  map[string]domain.Incident
	crises     map[string]domain.CrisisRecord
	byIncident map[string]string // incident ID -> crisis ID
}

// NewIncidentStore creates an empty IncidentStore.
func NewIncidentStore() *IncidentStore {
	return &IncidentStore{
		incidents:  make(map[string]domain.Incident),
		crises:     make(map[string]domain.CrisisRecord),
		byIncident: make(map[string]string),
	}
}

func (s *IncidentStore) CreateIncident(_ context.Context, inc domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[inc.ID]; ok {
		return fmt.Errorf("incident %s already exists", inc.ID)
	}
	s.incidents[inc.ID] = cloneIncident(inc)
	return nil
}

func (s *IncidentStore) GetIncident(_ context.Context, id string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, fmt.Errorf("incident %s: %w", id, domain.ErrNotFound)
	}
	return cloneIncident(inc), nil
}

func (s *IncidentStore) ListIncidents(_ context.Context, f domain.IncidentFilter) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Incident, 0)
	for _, inc := range s.incidents {
		if f.District != "" && inc.District != f.District {
			continue
		}
		if f.Status != "" && inc.Status != f.Status {
			continue
		}
		out = append(out, cloneIncident(inc))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *IncidentStore) UpdateIncident(_ context.Context, id string, fn func(*domain.Incident) error) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return domain.Incident{}, fmt.Errorf("incident %s: %w", id, domain.ErrNotFound)
	}
	inc = cloneIncident(inc)
	if err := fn(&inc); err != nil {
		return domain.Incident{}, err
	}
	s.incidents[id] = inc
	return cloneIncident(inc), nil
}

func (s *IncidentStore) OpenCrisis(_ context.Context, incidentID string, fn func(domain.Incident) (domain.CrisisRecord, error)) (domain.CrisisRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[incidentID]
	if !ok {
		return domain.CrisisRecord{}, false, fmt.Errorf("incident %s: %w", incidentID, domain.ErrNotFound)
	}
	if crisisID, ok := s.byIncident[incidentID]; ok {
		return s.crises[crisisID], false, nil
	}

	crisis, err := fn(cloneIncident(inc))
	if err != nil {
		return domain.CrisisRecord{}, false, err
	}

	inc.Forwarded = true
	inc.CrisisID = crisis.ID
	inc.UpdatedAt = crisis.CreatedAt
	s.incidents[incidentID] = inc
	s.crises[crisis.ID] = crisis
	s.byIncident[incidentID] = crisis.ID
	return crisis, true, nil
}

func (s *IncidentStore) GetCrisis(_ context.Context, id string) (domain.CrisisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.crises[id]
	if !ok {
		return domain.CrisisRecord{}, fmt.Errorf("crisis %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *IncidentStore) ListCrises(_ context.Context, f domain.CrisisFilter) ([]domain.CrisisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CrisisRecord, 0)
	for _, c := range s.crises {
		if f.Authority != "" && c.Authority != f.Authority {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *IncidentStore) UpdateCrisis(_ context.Context, id string, fn func(*domain.CrisisRecord, *domain.Incident) error) (domain.CrisisRecord, domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.crises[id]
	if !ok {
		return domain.CrisisRecord{}, domain.Incident{}, fmt.Errorf("crisis %s: %w", id, domain.ErrNotFound)
	}
	inc, ok := s.incidents[c.IncidentID]
	if !ok {
		return domain.CrisisRecord{}, domain.Incident{}, fmt.Errorf("incident %s: %w", c.IncidentID, domain.ErrNotFound)
	}
	inc = cloneIncident(inc)
	if err := fn(&c, &inc); err != nil {
		return domain.CrisisRecord{}, domain.Incident{}, err
	}
	s.crises[id] = c
	s.incidents[inc.ID] = inc
	return c, cloneIncident(inc), nil
}

// cloneIncident copies the slices and pointers inside inc so callers never
// share backing arrays with the map.
func cloneIncident(inc domain.Incident) domain.Incident {
	if inc.Location != nil {
		loc := *inc.Location
		inc.Location = &loc
	}
	inc.Scores.Keywords = slices.Clone(inc.Scores.Keywords)
	inc.Scores.ContextFactors = slices.Clone(inc.Scores.ContextFactors)
	inc.Scores.Degraded = slices.Clone(inc.Scores.Degraded)
	return inc
}
