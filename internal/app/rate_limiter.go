package app

import (
	"sync"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"golang.org/x/time/rate"
)

// JoinLimiter allows each channel limit joins per interval.
type JoinLimiter struct {
	mu       sync.Mutex
	limiters map[core.SessionID]*rate.Limiter
	every    rate.Limit
	burst    int
}

func NewJoinLimiter(limit int, interval time.Duration) *JoinLimiter {
	if limit <= 0 || interval <= 0 {
		return &JoinLimiter{limiters: make(map[core.SessionID]*rate.Limiter), every: rate.Inf}
	}
	return &JoinLimiter{
		limiters: make(map[core.SessionID]*rate.Limiter),
		every:    rate.Every(interval / time.Duration(limit)),
		burst:    limit,
	}
}

func (l *JoinLimiter) Allow(sid core.SessionID) bool {
	l.mu.Lock()
	lim, ok := l.limiters[sid]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[sid] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *JoinLimiter) Forget(sid core.SessionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, sid)
}
