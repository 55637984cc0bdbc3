// Package redis stores zone message feeds and subscriber sets in Redis.
// Each (district, audience) feed is a capped list, newest at the head.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "triage:zone:"

// FeedStore implements fanout.Store on a Redis client.
type FeedStore struct {
	client  *goredis.Client
	history int64
	logger  *slog.Logger
}

// NewFeedStore connects to addr. history bounds each feed's length.
func NewFeedStore(addr string, history int, logger *slog.Logger) *FeedStore {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	return &FeedStore{client: client, history: int64(history), logger: logger}
}

func feedKey(district string, audience domain.Audience) string {
	return keyPrefix + district + ":" + string(audience) + ":messages"
}

func subscribersKey(district string, audience domain.Audience) string {
	return keyPrefix + district + ":" + string(audience) + ":subscribers"
}

// Append pushes msg to the head of its feed and trims the tail in one
// round trip.
func (s *FeedStore) Append(ctx context.Context, msg domain.ZoneMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal zone message: %w", err)
	}
	key := feedKey(msg.District, msg.Audience)

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, s.history-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append to %s: %w", key, err)
	}
	return nil
}

// Recent returns up to limit messages, newest first. Entries that fail to
// decode are skipped.
func (s *FeedStore) Recent(ctx context.Context, district string, audience domain.Audience, limit int) ([]domain.ZoneMessage, error) {
	key := feedKey(district, audience)
	items, err := s.client.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	out := make([]domain.ZoneMessage, 0, len(items))
	for _, item := range items {
		var msg domain.ZoneMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("skipping undecodable zone message", "key", key, "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *FeedStore) AddSubscriber(ctx context.Context, district string, audience domain.Audience, identity string) (bool, error) {
	n, err := s.client.SAdd(ctx, subscribersKey(district, audience), identity).Result()
	if err != nil {
		return false, fmt.Errorf("add subscriber: %w", err)
	}
	return n > 0, nil
}

func (s *FeedStore) CountSubscribers(ctx context.Context, district string, audience domain.Audience) (int, error) {
	n, err := s.client.SCard(ctx, subscribersKey(district, audience)).Result()
	if err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return int(n), nil
}

// CheckReadiness pings Redis.
func (s *FeedStore) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *FeedStore) Close() error {
	return s.client.Close()
}
