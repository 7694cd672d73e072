package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthRecorder collects token guard activity: one latency collector per
// operation (login, refresh) plus a count of tokens served from cache.
type AuthRecorder struct {
	mu   sync.Mutex
	ops  map[string]*Collector
	hits atomic.Int64
}

// AuthStats is a snapshot of an AuthRecorder.
type AuthStats struct {
	CacheHits  int64            `json:"cache_hits" yaml:"cache_hits"`
	Operations map[string]Stats `json:"operations,omitempty" yaml:"operations,omitempty"`
}

func NewAuthRecorder() *AuthRecorder {
	return &AuthRecorder{ops: make(map[string]*Collector)}
}

// RecordAuth records one login or refresh round-trip.
func (r *AuthRecorder) RecordAuth(op string, latency time.Duration, err error) {
	r.collector(op).RecordRequest(latency, err)
}

// RecordCacheHit counts a token served without contacting the server.
func (r *AuthRecorder) RecordCacheHit() {
	r.hits.Add(1)
}

// Stats returns per-operation statistics over elapsed.
func (r *AuthRecorder) Stats(elapsed time.Duration) AuthStats {
	r.mu.Lock()
	collectors := make(map[string]*Collector, len(r.ops))
	for name, c := range r.ops {
		collectors[name] = c
	}
	r.mu.Unlock()

	stats := AuthStats{CacheHits: r.hits.Load()}
	if len(collectors) > 0 {
		stats.Operations = make(map[string]Stats, len(collectors))
		for name, c := range collectors {
			stats.Operations[name] = c.Stats(elapsed)
		}
	}
	return stats
}

func (r *AuthRecorder) collector(op string) *Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.ops[op]
	if !ok {
		c = NewCollector()
		r.ops[op] = c
	}
	return c
}
