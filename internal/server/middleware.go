package server

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tenantd/internal/metrics"
	"tenantd/pkg/logging"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware attaches a correlation id to each request, honoring a
// caller-supplied X-Request-ID so ids can follow a request across services.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set("request_id", id)
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// observeMiddleware records one log line and the HTTP Prometheus series per
// request. The route template is used as the path label so /tenants/:id
// stays a single series.
func observeMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			path := c.Path()
			if path == "" {
				path = req.URL.Path
			}
			statusCode := strconv.Itoa(c.Response().Status)
			elapsed := time.Since(started)

			metrics.HTTPRequestsTotal.WithLabelValues(req.Method, path, statusCode).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(req.Method, path, statusCode).Observe(elapsed.Seconds())

			requestID, _ := c.Get("request_id").(string)
			logging.Info("Server", "[%s] %s %s -> %s in %s", requestID, req.Method, req.URL.Path, statusCode, elapsed.Round(time.Millisecond))
			return nil
		}
	}
}
