package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/tagstore/pkg/configs"
	"github.com/yeisme/tagstore/pkg/metrics"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// buckets 按 key 分配令牌桶，闲置超过 ttl 的在下一次清扫时释放.
type buckets struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	ttl       time.Duration
	m         map[string]*bucket
	lastSweep time.Time
}

func (b *buckets) allow(key string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ttl > 0 && now.Sub(b.lastSweep) > b.ttl {
		for k, e := range b.m {
			if now.Sub(e.seen) > b.ttl {
				delete(b.m, k)
			}
		}

		b.lastSweep = now
	}

	e, ok := b.m[key]
	if !ok {
		e = &bucket{lim: rate.NewLimiter(b.rps, b.burst)}
		b.m[key] = e
	}

	e.seen = now

	return e.lim.AllowN(now, 1)
}

// keyFunc 按配置的维度取限流 key，返回 nil 表示全局共用一个桶.
func keyFunc(mode string) func(*gin.Context) string {
	mode = strings.TrimSpace(mode)

	switch {
	case mode == "" || strings.EqualFold(mode, "global"):
		return nil
	case len(mode) > len("header:") && strings.EqualFold(mode[:len("header:")], "header:"):
		name := mode[len("header:"):]

		return func(c *gin.Context) string {
			if v := c.GetHeader(name); v != "" {
				return "h:" + v
			}

			return "ip:" + c.ClientIP()
		}
	default:
		return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
	}
}

// RateLimitMiddleware 超出配额时返回 429.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	key := keyFunc(cfg.Key)
	global := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	keyed := &buckets{
		rps:   rate.Limit(cfg.RPS),
		burst: cfg.Burst,
		ttl:   cfg.IdleTTL,
		m:     map[string]*bucket{},
	}

	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		var ok bool
		if key == nil {
			ok = global.Allow()
		} else {
			ok = keyed.allow(key(c), time.Now())
		}

		if !ok {
			metrics.Throttled.WithLabelValues("rate_limit").Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

			return
		}

		c.Next()
	}
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
