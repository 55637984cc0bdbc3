package memory

import (
	"context"
	"sync"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// FeedStore keeps a bounded, newest-first message list and a subscriber
// set per district and audience.
type FeedStore struct {
	mu          sync.RWMutex
	history     int
	feeds       map[string][]domain.ZoneMessage
	subscribers map[string]map[string]struct{}
}

// NewFeedStore creates a FeedStore that retains up to history messages per
// feed.
func NewFeedStore(history int) *FeedStore {
	return &FeedStore{
		history:     history,
		feeds:       make(map[string][]domain.ZoneMessage),
		subscribers: make(map[string]map[string]struct{}),
	}
}

func feedKey(district string, audience domain.Audience) string {
	return district + "|" + string(audience)
}

func (s *FeedStore) Append(_ context.Context, msg domain.ZoneMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := feedKey(msg.District, msg.Audience)
	feed := append([]domain.ZoneMessage{msg}, s.feeds[key]...)
	if s.history > 0 && len(feed) > s.history {
		feed = feed[:s.history]
	}
	s.feeds[key] = feed
	return nil
}

func (s *FeedStore) Recent(_ context.Context, district string, audience domain.Audience, limit int) ([]domain.ZoneMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feed := s.feeds[feedKey(district, audience)]
	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	out := make([]domain.ZoneMessage, len(feed))
	copy(out, feed)
	return out, nil
}

func (s *FeedStore) AddSubscriber(_ context.Context, district string, audience domain.Audience, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := feedKey(district, audience)
	set, ok := s.subscribers[key]
	if !ok {
		set = make(map[string]struct{})
		s.subscribers[key] = set
	}
	if _, exists := set[identity]; exists {
		return false, nil
	}
	set[identity] = struct{}{}
	return true, nil
}

func (s *FeedStore) CountSubscribers(_ context.Context, district string, audience domain.Audience) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[feedKey(district, audience)]), nil
}
