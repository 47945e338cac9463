package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// ServerConfig HTTP 层配置
type ServerConfig struct {
	// RateLimit 每个 IP 每秒允许的 /api 请求数，0 表示不限流
	RateLimit rate.Limit
	Burst     int
}

// DefaultServerConfig GitHub 匿名配额每小时只有 60 次，入口先挡一层
func DefaultServerConfig() ServerConfig {
	return ServerConfig{RateLimit: 2, Burst: 10}
}

// NewServer 组装 echo 实例：Recover、请求日志、/api 限流
func NewServer(h *Handler, cfg ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				log.Printf("[API] %s %s -> %d (%s) err=%v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				return nil
			}
			log.Printf("[API] %s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", Health)

	api := e.Group("/api")
	if cfg.RateLimit > 0 {
		api.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      cfg.RateLimit,
				Burst:     cfg.Burst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: func(c echo.Context) (string, error) {
				return c.RealIP(), nil
			},
			ErrorHandler: func(c echo.Context, err error) error {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "unable to identify client"})
			},
			DenyHandler: func(c echo.Context, identifier string, err error) error {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			},
		}))
	}
	h.Register(api)

	return e
}
