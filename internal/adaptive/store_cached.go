package adaptive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/platform/cache"
)

const cacheKeyPrefix = "adaptive:v1:"

// JSONCache is the subset of cache.Cache used by CachedStore.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// CachedStore serves the read-only question bank from a cache and delegates
// everything else. Mastery data is never cached. Cache failures fall back
// to the underlying store.
type CachedStore struct {
	Store
	cache JSONCache
	ttl   time.Duration
}

// NewCachedStore wraps next with a read-through cache.
func NewCachedStore(next Store, c JSONCache, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: next, cache: c, ttl: ttl}
}

func (s *CachedStore) Questions(ctx context.Context, conceptID string) ([]Question, error) {
	key := cacheKeyPrefix + "questions:" + conceptID

	var questions []Question
	if s.lookup(ctx, key, &questions) {
		return questions, nil
	}

	questions, err := s.Store.Questions(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	// An empty pool stays uncached so newly added questions show up at once.
	if len(questions) > 0 {
		s.fill(ctx, key, questions)
	}
	return questions, nil
}

func (s *CachedStore) Question(ctx context.Context, questionID string) (Question, error) {
	key := cacheKeyPrefix + "question:" + questionID

	var q Question
	if s.lookup(ctx, key, &q) {
		return q, nil
	}

	q, err := s.Store.Question(ctx, questionID)
	if err != nil {
		return Question{}, err
	}
	s.fill(ctx, key, q)
	return q, nil
}

func (s *CachedStore) lookup(ctx context.Context, key string, dst any) bool {
	err := s.cache.GetJSON(ctx, key, dst)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("cache read failed, using store", "key", key, "error", err)
	}
	return false
}

func (s *CachedStore) fill(ctx context.Context, key string, v any) {
	if err := s.cache.SetJSON(ctx, key, v, s.ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}
