package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// AccessLogConfig configures AccessLog.
type AccessLogConfig struct {
	// SkipPaths are request paths that are never logged, such as the
	// health check.
	SkipPaths []string
}

// AccessLog writes one "request" record per request after it was served:
// Info for 2xx and 3xx, Warn for 4xx and Error for 5xx. Requests attributed to
// a module by RequestContext carry a module attribute; the request id comes
// from the request context.
func AccessLog(log *slog.Logger, cfg AccessLogConfig) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if module := GetModule(c); module != "" {
			attrs = append(attrs, slog.String("module", module))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		log.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}
