package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/adaptiq/adaptiq-engine/internal/attempt"
)

const cacheTTL = 24 * time.Hour

// Aggregator owns the per-learner snapshots. Folding is serialized; reads
// get copies. When a redis client is configured, snapshots are written
// through so dashboard instances can read them without hitting this process.
type Aggregator struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
	cache     *redis.Client // optional
	log       *logrus.Logger
}

func NewAggregator(cache *redis.Client, log *logrus.Logger) *Aggregator {
	return &Aggregator{snapshots: map[string]Snapshot{}, cache: cache, log: log}
}

// FinishHook folds terminal attempts as they land. Cache failures are
// logged, never surfaced: analytics must not affect the attempt path.
func (g *Aggregator) FinishHook(ctx context.Context, a attempt.Attempt) {
	g.mu.Lock()
	s := Fold(g.snapshots[a.UserID], a)
	g.snapshots[a.UserID] = s
	g.mu.Unlock()

	if g.cache == nil {
		return
	}
	buf, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(a.UserID), buf, cacheTTL).Err(); err != nil {
		g.log.WithError(err).WithField("user", a.UserID).Warn("analytics cache write failed")
	}
}

// Get returns the learner's snapshot, falling back to the redis cache when
// this process has not folded anything for them yet.
func (g *Aggregator) Get(ctx context.Context, userID string) (Snapshot, bool) {
	g.mu.RLock()
	s, ok := g.snapshots[userID]
	g.mu.RUnlock()
	if ok {
		s.Trend = append(s.Trend[:0:0], s.Trend...)
		return s, true
	}
	if g.cache == nil {
		return Snapshot{}, false
	}
	buf, err := g.cache.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.log.WithError(err).WithField("user", userID).Warn("analytics cache read failed")
		}
		return Snapshot{}, false
	}
	if err := json.Unmarshal(buf, &s); err != nil {
		return Snapshot{}, false
	}
	return s, true
}

func cacheKey(userID string) string { return "analytics:user:" + userID }
