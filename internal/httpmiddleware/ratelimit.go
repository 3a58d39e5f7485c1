package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"lectureattend/internal/apperrors"
	"lectureattend/internal/vault"
)

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(c *gin.Context) string

// ByClientIP buckets requests per client address.
func ByClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// ByHeaderOrIP buckets by the digest of header when present, so one scanner
// cannot starve others behind the same NAT. The raw value is never kept.
func ByHeaderOrIP(header string) KeyFunc {
	return func(c *gin.Context) string {
		if v := c.GetHeader(header); v != "" {
			return "key:" + vault.DigestOf(v)
		}
		return ByClientIP(c)
	}
}

// DefaultMaxKeys bounds how many buckets one limiter holds.
const DefaultMaxKeys = 10000

// SimpleTokenBucket is an in-memory rate limiter. It holds at most maxKeys
// buckets; when full, buckets that would have refilled completely are
// dropped, and new keys are refused if none can be dropped.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	maxKeys  int
	mu       sync.Mutex
	state    map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		maxKeys:  DefaultMaxKeys,
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// GinMiddleware returns gin handler enforcing limits per key.
func (l *SimpleTokenBucket) GinMiddleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByClientIP
	}
	return func(c *gin.Context) {
		if !l.allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": apperrors.New("RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded"),
			})
			return
		}
		c.Next()
	}
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		if len(l.state) >= l.maxKeys {
			l.evictIdle(now)
			if len(l.state) >= l.maxKeys {
				return false
			}
		}
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// evictIdle drops buckets that are back at full capacity; forgetting them
// changes nothing for their key.
func (l *SimpleTokenBucket) evictIdle(now time.Time) {
	for key, b := range l.state {
		refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
		if b.tokens+refill >= l.capacity {
			delete(l.state, key)
		}
	}
}
