// Package lifecycle owns incident state: submission and scoring, the
// pending to verified to resolved state machine, and the crisis records
// that forwarding creates for the regional authorities.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/couchcryptid/incident-triage-service/internal/scoring"
	"github.com/couchcryptid/incident-triage-service/internal/zone"
	"github.com/google/uuid"
)

// MinDescriptionLength is the shortest trimmed description accepted.
const MinDescriptionLength = 10

// DefaultListLimit applies when a listing does not ask for a page size.
const DefaultListLimit = 100

// Transition labels used for metrics and logs.
const (
	TransitionSubmit  = "submit"
	TransitionForward = "forward"
	TransitionClose   = "close"
	TransitionResolve = "resolve"
	TransitionDismiss = "dismiss"
	TransitionVerdict = "verdict"
)

// errNoChange aborts a store callback when the requested state already holds.
var errNoChange = errors.New("no change")

// SubmitRequest is a citizen report as received from a client.
type SubmitRequest struct {
	ReporterID  string              `json:"reporter_id" validate:"required,max=128"`
	Description string              `json:"description" validate:"required,max=4000"`
	Evidence    domain.Evidence     `json:"evidence"`
	Location    *domain.Coordinates `json:"location,omitempty"`
	District    string              `json:"district,omitempty"`
	Conditions  domain.Conditions   `json:"conditions"`
}

// Stats summarizes the current incident and crisis population.
type Stats struct {
	Incidents    int                   `json:"incidents"`
	ByStatus     map[domain.Status]int `json:"by_status"`
	ByAction     map[domain.Action]int `json:"by_action"`
	OpenCrises   int                   `json:"open_crises"`
	ClosedCrises int                   `json:"closed_crises"`
}

// Service implements the incident lifecycle on top of a Store.
type Service struct {
	store    Store
	ledger   TrustLedger
	scorer   Scorer
	resolver DistrictResolver
	events   EventPublisher
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithEventPublisher publishes a lifecycle event after every transition.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithDependencyTimeout bounds every store, resolver, ledger, and
// publisher call.
func WithDependencyTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// NewService creates a Service.
func NewService(
	store Store,
	ledger TrustLedger,
	scorer Scorer,
	resolver DistrictResolver,
	logger *slog.Logger,
	metrics *observability.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		ledger:   ledger,
		scorer:   scorer,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates, scores, and stores a new report. The incident and its
// scores are written together; nothing is stored if scoring is cancelled.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.Incident, error) {
	req.ReporterID = strings.TrimSpace(req.ReporterID)
	req.Description = strings.TrimSpace(req.Description)
	req.Conditions.DisasterZone = false
	if err := domain.ValidateStruct(req); err != nil {
		return domain.Incident{}, err
	}
	if utf8.RuneCountInString(req.Description) < MinDescriptionLength {
		return domain.Incident{}, fmt.Errorf("%w: description must be at least %d characters",
			domain.ErrValidation, MinDescriptionLength)
	}

	district, err := s.district(ctx, req)
	if err != nil {
		return domain.Incident{}, err
	}

	now := domain.Now()
	inc := domain.Incident{
		ID:          uuid.NewString(),
		ReporterID:  req.ReporterID,
		Description: req.Description,
		Evidence:    req.Evidence,
		Location:    req.Location,
		District:    district,
		Conditions:  req.Conditions,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	scores, err := s.scorer.Compute(ctx, inc)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("score incident: %w", err)
	}
	inc.Scores = scores

	err = s.withStore(ctx, func(sctx context.Context) error {
		return s.store.CreateIncident(sctx, inc)
	})
	if err != nil {
		return domain.Incident{}, fmt.Errorf("store incident: %w", err)
	}

	s.metrics.ReportsSubmitted.WithLabelValues(string(scores.Action)).Inc()
	s.metrics.PriorityScore.Observe(scores.FinalPriority)
	s.metrics.LifecycleTransitions.WithLabelValues(TransitionSubmit).Inc()
	s.logger.Info("incident submitted",
		"incident_id", inc.ID,
		"district", inc.District,
		"priority", scores.FinalPriority,
		"action", scores.Action,
		"emergency_type", scores.EmergencyType,
	)
	s.publish(ctx, domain.NewIncidentEvent(domain.EventSubmitted, inc, inc.ReporterID))
	return inc, nil
}

// district picks the explicit district when given, otherwise resolves the
// report's coordinates.
func (s *Service) district(ctx context.Context, req SubmitRequest) (string, error) {
	if req.District != "" {
		name, ok := zone.Canonical(req.District)
		if !ok {
			return "", fmt.Errorf("%w: unknown district %q", domain.ErrValidation, req.District)
		}
		return name, nil
	}
	if req.Location == nil {
		return "", fmt.Errorf("%w: location or district is required", domain.ErrValidation)
	}
	rctx, cancel := s.bound(ctx)
	defer cancel()
	return s.resolver.ResolveDistrict(rctx, req.Location.Lat, req.Location.Lng), nil
}

// Forward hands a pending or community-verified incident to the authority
// owning its district. Forwarding is idempotent: an already forwarded
// incident returns its existing crisis without a write.
func (s *Service) Forward(ctx context.Context, incidentID, moderatorID string) (domain.CrisisRecord, error) {
	if strings.TrimSpace(moderatorID) == "" {
		return domain.CrisisRecord{}, fmt.Errorf("%w: moderator identity is required", domain.ErrValidation)
	}

	inc, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return domain.CrisisRecord{}, err
	}
	if inc.Forwarded && inc.CrisisID != "" {
		return s.GetCrisis(ctx, inc.CrisisID)
	}
	if !forwardable(inc) {
		return domain.CrisisRecord{}, fmt.Errorf("%w: cannot forward %s incident", domain.ErrInvalidTransition, inc.Status)
	}

	district, authority, err := s.authorityFor(ctx, inc)
	if err != nil {
		return domain.CrisisRecord{}, err
	}

	var (
		crisis  domain.CrisisRecord
		created bool
	)
	err = s.withStore(ctx, func(sctx context.Context) error {
		var oerr error
		crisis, created, oerr = s.store.OpenCrisis(sctx, incidentID, func(cur domain.Incident) (domain.CrisisRecord, error) {
			if !forwardable(cur) {
				return domain.CrisisRecord{}, fmt.Errorf("%w: cannot forward %s incident", domain.ErrInvalidTransition, cur.Status)
			}
			return domain.CrisisRecord{
				ID:            uuid.NewString(),
				IncidentID:    cur.ID,
				District:      district,
				Authority:     authority,
				Priority:      cur.Scores.FinalPriority,
				Action:        cur.Scores.Action,
				CrisisLevel:   cur.Scores.CrisisLevel,
				EmergencyType: cur.Scores.EmergencyType,
				Description:   cur.Description,
				Status:        domain.CrisisOpen,
				ForwardedBy:   moderatorID,
				CreatedAt:     domain.Now(),
			}, nil
		})
		return oerr
	})
	if err != nil {
		return domain.CrisisRecord{}, fmt.Errorf("forward incident %s: %w", incidentID, err)
	}
	if !created {
		return crisis, nil
	}

	s.metrics.LifecycleTransitions.WithLabelValues(TransitionForward).Inc()
	s.logger.Info("incident forwarded",
		"incident_id", incidentID,
		"crisis_id", crisis.ID,
		"district", crisis.District,
		"authority", crisis.Authority,
		"moderator_id", moderatorID,
	)

	inc.Forwarded = true
	inc.CrisisID = crisis.ID
	evt := domain.NewIncidentEvent(domain.EventForwarded, inc, moderatorID)
	evt.District = crisis.District
	evt.Authority = crisis.Authority
	s.publish(ctx, evt)
	return crisis, nil
}

// authorityFor maps the incident's district to its authority, re-resolving
// from coordinates when the stored district is not a known one.
func (s *Service) authorityFor(ctx context.Context, inc domain.Incident) (district, authority string, err error) {
	if a, aerr := zone.AuthorityFor(inc.District); aerr == nil {
		d, _ := zone.Canonical(inc.District)
		return d, a, nil
	}
	if inc.Location == nil {
		return "", "", fmt.Errorf("%w: incident %s has district %q", domain.ErrZoneUnresolved, inc.ID, inc.District)
	}

	rctx, cancel := s.bound(ctx)
	defer cancel()
	district = s.resolver.ResolveDistrict(rctx, inc.Location.Lat, inc.Location.Lng)
	authority, err = zone.AuthorityFor(district)
	if err != nil {
		return "", "", fmt.Errorf("%w: incident %s: %w", domain.ErrZoneUnresolved, inc.ID, err)
	}
	return district, authority, nil
}

// forwardable reports whether inc may open a crisis: it must not have one
// yet and must be pending or verified by a community verdict.
func forwardable(inc domain.Incident) bool {
	if inc.Forwarded {
		return false
	}
	return inc.Status == domain.StatusPending || inc.Status == domain.StatusVerified
}

// CloseCrisis archives an open crisis and marks its incident verified. The
// verified outcome is credited to the reporter once. Closing a closed
// crisis returns it unchanged.
func (s *Service) CloseCrisis(ctx context.Context, crisisID, authorityID string) (domain.CrisisRecord, error) {
	if strings.TrimSpace(authorityID) == "" {
		return domain.CrisisRecord{}, fmt.Errorf("%w: authority identity is required", domain.ErrValidation)
	}

	var (
		credit bool
		crisis domain.CrisisRecord
		inc    domain.Incident
	)
	err := s.withStore(ctx, func(sctx context.Context) error {
		var uerr error
		crisis, inc, uerr = s.store.UpdateCrisis(sctx, crisisID, func(c *domain.CrisisRecord, inc *domain.Incident) error {
			if c.Status == domain.CrisisClosed {
				return errNoChange
			}
			now := domain.Now()
			c.Status = domain.CrisisClosed
			c.ClosedBy = authorityID
			c.ClosedAt = &now

			if inc.Status == domain.StatusPending {
				inc.Status = domain.StatusVerified
			}
			if inc.Outcome == domain.OutcomeNone {
				inc.Outcome = domain.OutcomeVerified
				credit = true
			}
			inc.UpdatedAt = now
			return nil
		})
		return uerr
	})
	if errors.Is(err, errNoChange) {
		return s.GetCrisis(ctx, crisisID)
	}
	if err != nil {
		return domain.CrisisRecord{}, fmt.Errorf("close crisis %s: %w", crisisID, err)
	}

	if credit {
		s.recordOutcome(ctx, inc, true)
	}
	s.metrics.LifecycleTransitions.WithLabelValues(TransitionClose).Inc()
	s.logger.Info("crisis closed",
		"crisis_id", crisis.ID,
		"incident_id", crisis.IncidentID,
		"authority_id", authorityID,
	)

	evt := domain.NewIncidentEvent(domain.EventCrisisClosed, inc, authorityID)
	evt.Authority = crisis.Authority
	s.publish(ctx, evt)
	return crisis, nil
}

// Resolve moves a verified incident, or a pending one that was never
// forwarded, to resolved. A forwarded incident waits for its crisis to
// close. Resolved is terminal.
func (s *Service) Resolve(ctx context.Context, incidentID, actorID string) (domain.Incident, error) {
	// Crises never reopen, so a closed crisis read here stays closed.
	crisisOpen, err := s.crisisOpen(ctx, incidentID)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("resolve incident %s: %w", incidentID, err)
	}

	inc, err := s.updateIncident(ctx, incidentID, func(inc *domain.Incident) error {
		switch {
		case inc.Forwarded && crisisOpen && inc.Status != domain.StatusResolved:
			return fmt.Errorf("%w: incident is forwarded and awaiting its authority", domain.ErrInvalidTransition)
		case inc.Status == domain.StatusVerified:
		case inc.Status == domain.StatusPending && !inc.Forwarded:
		case inc.Status == domain.StatusPending:
			return fmt.Errorf("%w: incident is forwarded and awaiting its authority", domain.ErrInvalidTransition)
		default:
			return fmt.Errorf("%w: incident is already %s", domain.ErrInvalidTransition, inc.Status)
		}
		inc.Status = domain.StatusResolved
		inc.UpdatedAt = domain.Now()
		return nil
	})
	if err != nil {
		return domain.Incident{}, fmt.Errorf("resolve incident %s: %w", incidentID, err)
	}

	s.metrics.LifecycleTransitions.WithLabelValues(TransitionResolve).Inc()
	s.logger.Info("incident resolved", "incident_id", incidentID, "actor_id", actorID)
	s.publish(ctx, domain.NewIncidentEvent(domain.EventResolved, inc, actorID))
	return inc, nil
}

// crisisOpen reports whether the incident has a crisis that is still open.
func (s *Service) crisisOpen(ctx context.Context, incidentID string) (bool, error) {
	inc, err := s.GetIncident(ctx, incidentID)
	if err != nil {
		return false, err
	}
	if !inc.Forwarded || inc.CrisisID == "" {
		return false, nil
	}
	c, err := s.GetCrisis(ctx, inc.CrisisID)
	if err != nil {
		return false, err
	}
	return c.Status == domain.CrisisOpen, nil
}

// Dismiss closes a pending, unforwarded incident as a false alarm and
// debits the reporter's trust.
func (s *Service) Dismiss(ctx context.Context, incidentID, moderatorID string) (domain.Incident, error) {
	var debit bool
	inc, err := s.updateIncident(ctx, incidentID, func(inc *domain.Incident) error {
		if inc.Status != domain.StatusPending || inc.Forwarded {
			return fmt.Errorf("%w: only pending, unforwarded incidents can be dismissed", domain.ErrInvalidTransition)
		}
		inc.Status = domain.StatusResolved
		if inc.Outcome == domain.OutcomeNone {
			inc.Outcome = domain.OutcomeFalseAlarm
			debit = true
		}
		inc.UpdatedAt = domain.Now()
		return nil
	})
	if err != nil {
		return domain.Incident{}, fmt.Errorf("dismiss incident %s: %w", incidentID, err)
	}

	if debit {
		s.recordOutcome(ctx, inc, false)
	}
	s.metrics.LifecycleTransitions.WithLabelValues(TransitionDismiss).Inc()
	s.logger.Info("incident dismissed", "incident_id", incidentID, "moderator_id", moderatorID)
	s.publish(ctx, domain.NewIncidentEvent(domain.EventDismissed, inc, moderatorID))
	return inc, nil
}

// RecordVerdict applies an externally sourced verification outcome. Each
// incident accepts one outcome; later verdicts are ignored. A verified
// verdict promotes a pending incident, which stays forwardable; a false one
// resolves it unless it is already with an authority.
func (s *Service) RecordVerdict(ctx context.Context, v domain.Verdict) (domain.Incident, error) {
	inc, err := s.updateIncident(ctx, v.IncidentID, func(inc *domain.Incident) error {
		if inc.Outcome != domain.OutcomeNone {
			return errNoChange
		}
		if v.Verified {
			inc.Outcome = domain.OutcomeVerified
			if inc.Status == domain.StatusPending {
				inc.Status = domain.StatusVerified
			}
		} else {
			inc.Outcome = domain.OutcomeFalseAlarm
			if inc.Status == domain.StatusPending && !inc.Forwarded {
				inc.Status = domain.StatusResolved
			}
		}
		inc.UpdatedAt = domain.Now()
		return nil
	})
	if errors.Is(err, errNoChange) {
		s.logger.Debug("verdict ignored, outcome already recorded",
			"incident_id", v.IncidentID, "source", v.Source)
		return s.GetIncident(ctx, v.IncidentID)
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("record verdict for %s: %w", v.IncidentID, err)
	}

	s.recordOutcome(ctx, inc, v.Verified)
	s.metrics.LifecycleTransitions.WithLabelValues(TransitionVerdict).Inc()
	s.logger.Info("verdict recorded",
		"incident_id", inc.ID,
		"verified", v.Verified,
		"source", v.Source,
		"status", inc.Status,
	)
	return inc, nil
}

// GetIncident returns one incident.
func (s *Service) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	var inc domain.Incident
	err := s.withStore(ctx, func(sctx context.Context) error {
		var gerr error
		inc, gerr = s.store.GetIncident(sctx, id)
		return gerr
	})
	return inc, err
}

// GetCrisis returns one crisis record.
func (s *Service) GetCrisis(ctx context.Context, id string) (domain.CrisisRecord, error) {
	var c domain.CrisisRecord
	err := s.withStore(ctx, func(sctx context.Context) error {
		var gerr error
		c, gerr = s.store.GetCrisis(sctx, id)
		return gerr
	})
	return c, err
}

// PendingIncidents returns pending incidents, highest priority first. An
// empty district lists every district.
func (s *Service) PendingIncidents(ctx context.Context, district string, limit int) ([]domain.Incident, error) {
	f := domain.IncidentFilter{Status: domain.StatusPending}
	if district != "" {
		name, ok := zone.Canonical(district)
		if !ok {
			return nil, fmt.Errorf("%w: unknown district %q", domain.ErrValidation, district)
		}
		f.District = name
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	incidents, err := s.listIncidents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	// Stable so equal priorities keep the store's newest-first order.
	slices.SortStableFunc(incidents, func(a, b domain.Incident) int {
		switch {
		case a.Scores.FinalPriority > b.Scores.FinalPriority:
			return -1
		case a.Scores.FinalPriority < b.Scores.FinalPriority:
			return 1
		default:
			return 0
		}
	})
	if len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents, nil
}

// Crises lists crisis records for an authority, newest first. An empty
// authority lists all of them.
func (s *Service) Crises(ctx context.Context, authority string, status domain.CrisisStatus, limit int) ([]domain.CrisisRecord, error) {
	if authority != "" && !slices.Contains(zone.Authorities(), authority) {
		return nil, fmt.Errorf("%w: unknown authority %q", domain.ErrValidation, authority)
	}
	if status != "" && status != domain.CrisisOpen && status != domain.CrisisClosed {
		return nil, fmt.Errorf("%w: unknown crisis status %q", domain.ErrValidation, status)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	crises, err := s.listCrises(ctx, domain.CrisisFilter{Authority: authority, Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list crises: %w", err)
	}
	return crises, nil
}

// TrustProfile returns the reporter's profile, creating the default one on
// first sight.
func (s *Service) TrustProfile(ctx context.Context, reporterID string) (domain.TrustProfile, error) {
	if strings.TrimSpace(reporterID) == "" {
		return domain.TrustProfile{}, fmt.Errorf("%w: reporter id is required", domain.ErrValidation)
	}
	lctx, cancel := s.bound(ctx)
	defer cancel()
	return s.ledger.GetOrCreate(lctx, reporterID)
}

// PreviewSeverity classifies a description without storing anything.
func (s *Service) PreviewSeverity(description string) scoring.Classification {
	return s.scorer.Classify(description)
}

// Stats counts incidents by status and action, and crises by status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	incidents, err := s.listIncidents(ctx, domain.IncidentFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("list incidents: %w", err)
	}
	crises, err := s.listCrises(ctx, domain.CrisisFilter{})
	if err != nil {
		return Stats{}, fmt.Errorf("list crises: %w", err)
	}

	st := Stats{
		Incidents: len(incidents),
		ByStatus:  make(map[domain.Status]int),
		ByAction:  make(map[domain.Action]int),
	}
	for _, inc := range incidents {
		st.ByStatus[inc.Status]++
		st.ByAction[inc.Scores.Action]++
	}
	for _, c := range crises {
		if c.Status == domain.CrisisClosed {
			st.ClosedCrises++
		} else {
			st.OpenCrises++
		}
	}
	return st, nil
}

// recordOutcome credits or debits the reporter. The incident write has
// already committed, so a ledger failure is logged rather than returned.
func (s *Service) recordOutcome(ctx context.Context, inc domain.Incident, verified bool) {
	lctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.ledger.RecordOutcome(lctx, inc.ReporterID, verified); err != nil {
		s.logger.Error("failed to record trust outcome",
			"incident_id", inc.ID,
			"reporter_id", inc.ReporterID,
			"verified", verified,
			"error", err,
		)
	}
}

// publish emits evt best effort; the transition is already durable.
func (s *Service) publish(ctx context.Context, evt domain.IncidentEvent) {
	if s.events == nil {
		return
	}
	pctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.events.Publish(pctx, evt); err != nil {
		s.metrics.EventsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("failed to publish lifecycle event",
			"type", evt.Type, "incident_id", evt.IncidentID, "error", err)
		return
	}
	s.metrics.EventsPublished.WithLabelValues("success").Inc()
}

func (s *Service) updateIncident(ctx context.Context, id string, fn func(*domain.Incident) error) (domain.Incident, error) {
	var inc domain.Incident
	err := s.withStore(ctx, func(sctx context.Context) error {
		var uerr error
		inc, uerr = s.store.UpdateIncident(sctx, id, fn)
		return uerr
	})
	return inc, err
}

func (s *Service) listIncidents(ctx context.Context, f domain.IncidentFilter) ([]domain.Incident, error) {
	var out []domain.Incident
	err := s.withStore(ctx, func(sctx context.Context) error {
		var lerr error
		out, lerr = s.store.ListIncidents(sctx, f)
		return lerr
	})
	return out, err
}

func (s *Service) listCrises(ctx context.Context, f domain.CrisisFilter) ([]domain.CrisisRecord, error) {
	var out []domain.CrisisRecord
	err := s.withStore(ctx, func(sctx context.Context) error {
		var lerr error
		out, lerr = s.store.ListCrises(sctx, f)
		return lerr
	})
	return out, err
}

// withStore runs one store round trip under the dependency timeout.
func (s *Service) withStore(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := s.bound(ctx)
	defer cancel()
	return fn(sctx)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
