// Package redis provides a Redis-backed audit store. Events live in
// per-subject sorted sets scored by timestamp, which makes the engine's
// windowed counts a single ZCOUNT.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"vaultgate/pkg/platform/audit"
)

const keyPrefix = "audit:events:"

// DefaultRetention bounds how far back counts can reach. The engine's widest
// window is one hour; a day leaves slack for forensics.
const DefaultRetention = 24 * time.Hour

type Store struct {
	client    *redis.Client
	retention time.Duration
}

type Option func(*Store)

// WithRetention overrides how long events stay countable.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(subjectID string, kind audit.Kind) string {
	if kind == audit.KindAny {
		return keyPrefix + subjectID + ":all"
	}
	return keyPrefix + subjectID + ":" + string(kind)
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	score := float64(event.Timestamp.UnixMilli())
	cutoff := strconv.FormatInt(event.Timestamp.Add(-s.retention).UnixMilli(), 10)

	// Write to the kind-specific set and the all-kinds set so both count
	// shapes stay O(log n). Old entries are trimmed on the way in.
	pipe := s.client.TxPipeline()
	for _, k := range []string{key(event.SubjectID, event.Kind), key(event.SubjectID, audit.KindAny)} {
		pipe.ZAdd(ctx, k, redis.Z{Score: score, Member: payload})
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
		pipe.Expire(ctx, k, s.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) CountSince(ctx context.Context, subjectID string, kind audit.Kind, since time.Time) (int, error) {
	min := strconv.FormatInt(since.UnixMilli(), 10)
	count, err := s.client.ZCount(ctx, key(subjectID, kind), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return int(count), nil
}
