// Package fanout publishes zone-scoped messages and serves them to readers.
// A message is stored once per district and audience and read by whoever
// asks for that zone; a Hub can additionally push it to live listeners.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/couchcryptid/incident-triage-service/internal/zone"
	"github.com/google/uuid"
)

// DefaultFetchLimit applies when a reader does not ask for a page size.
const DefaultFetchLimit = 50

// Store persists zone messages and subscriber sets. Recent returns messages
// newest first.
type Store interface {
	Append(ctx context.Context, msg domain.ZoneMessage) error
	Recent(ctx context.Context, district string, audience domain.Audience, limit int) ([]domain.ZoneMessage, error)
	AddSubscriber(ctx context.Context, district string, audience domain.Audience, identity string) (bool, error)
	CountSubscribers(ctx context.Context, district string, audience domain.Audience) (int, error)
}

// Router validates and stores zone messages.
type Router struct {
	store   Store
	hub     *Hub
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithHub pushes every published message to h's live listeners.
func WithHub(h *Hub) Option {
	return func(r *Router) { r.hub = h }
}

// WithDependencyTimeout bounds every store call.
func WithDependencyTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// NewRouter creates a Router backed by store.
func NewRouter(store Store, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Router {
	r := &Router{store: store, logger: logger, metrics: metrics}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish stores msg for its district and audience. The returned message
// carries the assigned ID, timestamp, and the number of subscriptions that
// can see it: a citizen message counts citizen and moderator subscribers,
// since moderators read citizen traffic too. An identity subscribed to both
// audiences is counted once per audience.
func (r *Router) Publish(ctx context.Context, msg domain.ZoneMessage) (domain.ZoneMessage, error) {
	district, ok := zone.Canonical(msg.District)
	if !ok {
		return domain.ZoneMessage{}, fmt.Errorf("%w: unknown district %q", domain.ErrValidation, msg.District)
	}
	msg.District = district
	if msg.Audience == "" {
		msg.Audience = domain.DefaultAudience(msg.Kind)
	}
	if msg.Severity == "" {
		msg.Severity = "info"
	}
	msg.Title = strings.TrimSpace(msg.Title)
	msg.Body = strings.TrimSpace(msg.Body)
	if err := domain.ValidateStruct(msg); err != nil {
		return domain.ZoneMessage{}, err
	}

	count, err := r.countRecipients(ctx, msg.District, msg.Audience)
	if err != nil {
		return domain.ZoneMessage{}, err
	}

	msg.ID = uuid.NewString()
	msg.RecipientCount = count
	msg.CreatedAt = domain.Now()

	actx, cancel := r.bound(ctx)
	err = r.store.Append(actx, msg)
	cancel()
	if err != nil {
		return domain.ZoneMessage{}, fmt.Errorf("store zone message: %w", err)
	}

	if r.hub != nil {
		r.hub.Broadcast(msg)
	}
	r.metrics.ZoneMessages.WithLabelValues(string(msg.Kind)).Inc()
	r.logger.Info("zone message published",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"district", msg.District,
		"audience", msg.Audience,
		"recipients", msg.RecipientCount,
	)
	return msg, nil
}

// FetchFor returns the newest messages visible to audience in district.
// Moderators also see citizen-facing messages for their zone.
func (r *Router) FetchFor(ctx context.Context, district string, audience domain.Audience, limit int) ([]domain.ZoneMessage, error) {
	canon, ok := zone.Canonical(district)
	if !ok {
		return nil, fmt.Errorf("%w: unknown district %q", domain.ErrValidation, district)
	}
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	switch audience {
	case domain.AudienceCitizens:
		return r.recent(ctx, canon, domain.AudienceCitizens, limit)
	case domain.AudienceModerators:
		mods, err := r.recent(ctx, canon, domain.AudienceModerators, limit)
		if err != nil {
			return nil, err
		}
		citizens, err := r.recent(ctx, canon, domain.AudienceCitizens, limit)
		if err != nil {
			return nil, err
		}
		return mergeNewest(mods, citizens, limit), nil
	default:
		return nil, fmt.Errorf("%w: unknown audience %q", domain.ErrValidation, audience)
	}
}

// Subscribe adds identity to the audience of district. Subscribing twice
// is a no-op.
func (r *Router) Subscribe(ctx context.Context, district string, audience domain.Audience, identity string) error {
	canon, ok := zone.Canonical(district)
	if !ok {
		return fmt.Errorf("%w: unknown district %q", domain.ErrValidation, district)
	}
	if audience != domain.AudienceCitizens && audience != domain.AudienceModerators {
		return fmt.Errorf("%w: unknown audience %q", domain.ErrValidation, audience)
	}
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: identity is required", domain.ErrValidation)
	}
	sctx, cancel := r.bound(ctx)
	defer cancel()
	added, err := r.store.AddSubscriber(sctx, canon, audience, identity)
	if err != nil {
		return fmt.Errorf("add subscriber: %w", err)
	}
	if added {
		r.logger.Debug("zone subscriber added", "district", canon, "audience", audience)
	}
	return nil
}

// Listen returns a live feed of messages published to audience in district
// from now on, with the same visibility as FetchFor. Call stop to release it.
func (r *Router) Listen(district string, audience domain.Audience) (<-chan domain.ZoneMessage, func(), error) {
	if r.hub == nil {
		return nil, nil, ErrStreamingDisabled
	}
	canon, ok := zone.Canonical(district)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown district %q", domain.ErrValidation, district)
	}
	if audience != domain.AudienceCitizens && audience != domain.AudienceModerators {
		return nil, nil, fmt.Errorf("%w: unknown audience %q", domain.ErrValidation, audience)
	}
	ch, stop := r.hub.Listen(canon, audience)
	return ch, stop, nil
}

func (r *Router) recent(ctx context.Context, district string, audience domain.Audience, limit int) ([]domain.ZoneMessage, error) {
	rctx, cancel := r.bound(ctx)
	defer cancel()
	msgs, err := r.store.Recent(rctx, district, audience, limit)
	if err != nil {
		return nil, fmt.Errorf("read zone messages: %w", err)
	}
	return msgs, nil
}

// countRecipients sums the subscriptions that can see a message addressed
// to audience in district.
func (r *Router) countRecipients(ctx context.Context, district string, audience domain.Audience) (int, error) {
	audiences := []domain.Audience{audience}
	if audience == domain.AudienceCitizens {
		audiences = append(audiences, domain.AudienceModerators)
	}
	var total int
	for _, a := range audiences {
		cctx, cancel := r.bound(ctx)
		n, err := r.store.CountSubscribers(cctx, district, a)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("count %s subscribers: %w", a, err)
		}
		total += n
	}
	return total, nil
}

func (r *Router) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func mergeNewest(a, b []domain.ZoneMessage, limit int) []domain.ZoneMessage {
	out := make([]domain.ZoneMessage, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
