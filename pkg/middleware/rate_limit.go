package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	apperrors "masterbook/pkg/errors"
	"masterbook/pkg/logger"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

type KeyExtractor func(r *http.Request) string

// PartyKey limits per acting party and falls back to the client address
// for anonymous requests.
func PartyKey(r *http.Request) string {
	if id := r.Header.Get("X-Party-ID"); id != "" {
		return "party:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Stop()
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter keeps one token bucket per key in process memory.
type TokenBucketLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	stopCh   chan struct{}
}

// NewTokenBucketLimiter refills limit tokens per window and holds at most
// burst.
func NewTokenBucketLimiter(limit int, window time.Duration, burst int) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    burst,
		idle:     window,
		stopCh:   make(chan struct{}),
	}

	go l.cleanup()

	return l
}

func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow(), nil
}

func (l *TokenBucketLimiter) cleanup() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			for key, entry := range l.limiters {
				if time.Since(entry.lastSeen) > l.idle {
					delete(l.limiters, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *TokenBucketLimiter) Stop() {
	close(l.stopCh)
}

type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter counts requests per key in fixed windows shared by every
// replica.
type RedisLimiter struct {
	rdb    redisCounter
	limit  int64
	window time.Duration
}

func NewRedisLimiter(rdb redisCounter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: int64(limit), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= l.limit, nil
}

func (l *RedisLimiter) Stop() {}

// RateLimit rejects requests over the limiter's budget with 429. A limiter
// that cannot answer lets the request through.
func RateLimit(limiter Limiter, extract KeyExtractor, log *logger.Logger) func(http.Handler) http.Handler {
	if extract == nil {
		extract = PartyKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extract(r)

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Warn("Rate limiter unavailable", "request_id", requestIDFrom(r), "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				log.Warn("Rate limit exceeded",
					"request_id", requestIDFrom(r),
					"key", key,
					"path", r.URL.Path,
				)
				reject(w, apperrors.RateLimited("Rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
