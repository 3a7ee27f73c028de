package middleware

import (
	"context"
	"sync"
	"time"

	"judgebox/pkg/errors"
	"judgebox/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig sets token bucket rates. A zero rate disables that bucket.
type RateLimitConfig struct {
	GlobalRPS   float64       `yaml:"globalRps"`
	GlobalBurst int           `yaml:"globalBurst"`
	PerIPRPS    float64       `yaml:"perIpRps"`
	PerIPBurst  int           `yaml:"perIpBurst"`
	IdleTTL     time.Duration `yaml:"idleTtl"`
}

// RateLimiter combines one global bucket with a bucket per client IP.
type RateLimiter struct {
	cfg    RateLimitConfig
	global *rate.Limiter
	onHit  func()

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter. onHit, when set, runs for every rejected request.
func NewRateLimiter(cfg RateLimitConfig, onHit func()) *RateLimiter {
	if cfg.GlobalBurst <= 0 {
		cfg.GlobalBurst = max(int(cfg.GlobalRPS)*2, 1)
	}
	if cfg.PerIPBurst <= 0 {
		cfg.PerIPBurst = max(int(cfg.PerIPRPS)*2, 1)
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{
		cfg:     cfg,
		onHit:   onHit,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
	if cfg.GlobalRPS > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst)
	}
	return rl
}

// IdleTTL is how long an unused client bucket is kept.
func (rl *RateLimiter) IdleTTL() time.Duration {
	return rl.cfg.IdleTTL
}

// Allow reports whether one request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.global != nil && !rl.global.Allow() {
		rl.hit()
		return false
	}
	if rl.cfg.PerIPRPS <= 0 {
		return true
	}
	if !rl.clientLimiter(ip).Allow() {
		rl.hit()
		return false
	}
	return true
}

func (rl *RateLimiter) clientLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.PerIPRPS), rl.cfg.PerIPBurst)}
		rl.clients[ip] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter
}

func (rl *RateLimiter) hit() {
	if rl.onHit != nil {
		rl.onHit()
	}
}

// Prune drops client buckets idle for longer than IdleTTL and returns how many were removed.
func (rl *RateLimiter) Prune() int {
	cutoff := rl.now().Add(-rl.cfg.IdleTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for ip, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// RunCleanup prunes idle buckets every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

// RateLimitMiddleware answers 429 once either bucket is empty.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		if !rl.Allow(c.ClientIP()) {
			response.AbortWithError(c, errors.New(errors.TooManyRequests))
			return
		}
		c.Next()
	}
}
