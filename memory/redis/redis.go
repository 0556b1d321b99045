// Package redis provides a memory.Store backed by Redis lists, giving
// conversational exchanges durability across process restarts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/CuriosityQuantified/atlas/internal/util"
	"github.com/CuriosityQuantified/atlas/memory"
)

const (
	activeSessionKey = "atlas:session:active"
	exchangeKeyFmt   = "atlas:session:%s:exchanges"
)

// Options configures the Redis store.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Client overrides Addr/Password/DB with a preconfigured client.
	Client *redis.Client
}

// Store implements memory.Store on Redis. Each session's exchanges live in a
// list keyed by session id; the active session id lives under a single key.
type Store struct {
	client *redis.Client
}

// New creates a Redis-backed store.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{Addr: "localhost:6379"}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
	}
	return &Store{client: client}
}

// ActiveSession returns the stored session identifier, creating and
// persisting one if absent.
func (s *Store) ActiveSession(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, activeSessionKey).Result()
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && err != redis.Nil {
		return "", fmt.Errorf("failed to read active session: %w", err)
	}

	id = util.NewID()
	if err := s.client.Set(ctx, activeSessionKey, id, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to persist active session: %w", err)
	}
	return id, nil
}

// AppendExchange pushes one JSON-encoded exchange onto the session's list.
func (s *Store) AppendExchange(ctx context.Context, sessionID string, ex memory.Exchange) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("failed to encode exchange: %w", err)
	}
	key := fmt.Sprintf(exchangeKeyFmt, sessionID)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append exchange: %w", err)
	}
	return nil
}

// History returns the most recent exchanges, oldest first.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]memory.Exchange, error) {
	key := fmt.Sprintf(exchangeKeyFmt, sessionID)

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := make([]memory.Exchange, 0, len(raw))
	for _, item := range raw {
		var ex memory.Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			continue // skip corrupt entries rather than failing the read
		}
		out = append(out, ex)
	}
	return out, nil
}
