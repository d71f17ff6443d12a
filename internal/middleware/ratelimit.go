package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-gateway/pkg/response"
)

// RequestCounter 共享的令牌桶，由 cache.RedisCache 实现
type RequestCounter interface {
	AllowRequest(ctx context.Context, key string, rps, burst int) (bool, error)
}

// RateLimitMiddleware 按客户端 IP 限流
// counter 不为 nil 时使用 Redis 令牌桶，多实例共享额度
// Redis 出错时退回进程内令牌桶，不拒绝请求
func RateLimitMiddleware(counter RequestCounter, rps, burst int, log *zap.Logger) gin.HandlerFunc {
	if burst < rps {
		burst = rps
	}
	local := newLocalLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed := true
		if counter != nil {
			ok, err := counter.AllowRequest(c.Request.Context(), key, rps, burst)
			if err != nil {
				log.Warn("限流计数失败，使用本地限流", zap.Error(err))
				allowed = local.allow(key)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			response.AbortWithCode(c, http.StatusTooManyRequests, response.CodeRateLimited, "too many requests, please retry later")
			return
		}
		c.Next()
	}
}

// localLimiter 每个 IP 一个令牌桶
type localLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter(limit rate.Limit, burst int) *localLimiter {
	return &localLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		lastGC:   time.Now(),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	// 清理长时间没有请求的 IP
	if now.Sub(l.lastGC) > time.Minute {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > 3*time.Minute {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}
