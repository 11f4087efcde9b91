package api

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with status and latency. The
// stream endpoint is logged when the client disconnects.
func RequestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := log.Fields{
				"method":     req.Method,
				"path":       c.Path(),
				"uri":        req.RequestURI,
				"status":     c.Response().Status,
				"bytes_out":  c.Response().Size,
				"latency_ms": durationToMillis(time.Since(start)),
			}
			entry := logger.WithFields(fields)
			if err != nil {
				entry = entry.WithError(err)
			}
			if c.Response().Status >= 500 {
				entry.Warn("http request")
			} else {
				entry.Debug("http request")
			}
			return nil
		}
	}
}
