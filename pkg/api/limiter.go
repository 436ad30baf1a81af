package api

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterStore decides whether a client may make another request.
type LimiterStore interface {
	Allow(ctx context.Context, key string, cost int) (bool, error)
}

// LimitPolicy is a token bucket: RPS tokens per second up to Burst.
type LimitPolicy struct {
	RPS   float64
	Burst int
}

// MemoryLimiterStore keeps one token bucket per key in process memory.
type MemoryLimiterStore struct {
	policy LimitPolicy

	mu       sync.Mutex
	visitors map[string]*visitor
	idleTTL  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiterStore starts a store that forgets keys idle for three
// minutes. Call Close to stop the sweeper.
func NewMemoryLimiterStore(policy LimitPolicy) *MemoryLimiterStore {
	s := &MemoryLimiterStore{
		policy:   policy,
		visitors: make(map[string]*visitor),
		idleTTL:  3 * time.Minute,
		stop:     make(chan struct{}),
	}
	go s.sweep(time.Minute)
	return s
}

func (s *MemoryLimiterStore) Allow(_ context.Context, key string, cost int) (bool, error) {
	s.mu.Lock()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(s.policy.RPS), s.policy.Burst)}
		s.visitors[key] = v
	}
	v.lastSeen = time.Now()
	s.mu.Unlock()

	return v.limiter.AllowN(time.Now(), cost), nil
}

func (s *MemoryLimiterStore) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.forgetIdle(time.Now())
		}
	}
}

func (s *MemoryLimiterStore) forgetIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range s.visitors {
		if now.Sub(v.lastSeen) > s.idleTTL {
			delete(s.visitors, key)
		}
	}
}

// Close stops the background sweeper.
func (s *MemoryLimiterStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
