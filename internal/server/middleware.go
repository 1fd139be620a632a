package server

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/getailigned/notification-service/internal/common/logger"
)

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			log.Info("http request", map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"durationMs": time.Since(start).Milliseconds(),
				"requestId":  c.Response().Header().Get(echo.HeaderXRequestID),
			})

			return err
		}
	}
}
