package httpapi

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github-roulette/internal/common"

	"github.com/labstack/echo/v4"
)

// ValidationError 请求参数不合法，在调用引擎或存储之前返回 400
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// statusOf 把错误映射为 HTTP 状态码
func statusOf(err error) int {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return http.StatusBadRequest
	}
	switch common.CodeOf(err) {
	case common.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case common.ErrCodeNotFound:
		return http.StatusNotFound
	case common.ErrCodeNotification, common.ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError 统一输出 {"error": "..."}，5xx 不暴露内部细节
func respondError(c echo.Context, err error) error {
	status := statusOf(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("[API] ❌ %s %s: %v", c.Request().Method, c.Path(), err)
		message = http.StatusText(status)
	}
	return c.JSON(status, map[string]string{"error": message})
}
