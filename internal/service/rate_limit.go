package service

import (
	"net/http"
	"strconv"
	"time"

	"github-roulette/internal/domain"
)

const (
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateReset     = "X-RateLimit-Reset"

	defaultRateLimit = 60 // 匿名访问每小时 60 次
	lockoutWindow    = time.Hour
)

// ReadRateLimit 从响应头解析配额，缺失或无法解析时取默认值
// 非 2xx 响应同样带这些头，必须照常调用
func ReadRateLimit(h http.Header) domain.RateLimitSnapshot {
	reset := headerInt64(h, headerRateReset, 0)
	return domain.RateLimitSnapshot{
		Remaining: int(headerInt64(h, headerRateRemaining, 0)),
		Limit:     int(headerInt64(h, headerRateLimit, defaultRateLimit)),
		Reset:     reset,
		ResetAt:   time.Unix(reset, 0),
	}
}

// FallbackRateLimit 完全拿不到响应时的合成配额：按锁定一小时处理
func FallbackRateLimit(now time.Time) domain.RateLimitSnapshot {
	resetAt := now.Add(lockoutWindow)
	return domain.RateLimitSnapshot{
		Remaining: 0,
		Limit:     defaultRateLimit,
		Reset:     resetAt.Unix(),
		ResetAt:   resetAt,
	}
}

func headerInt64(h http.Header, key string, def int64) int64 {
	raw := h.Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}
