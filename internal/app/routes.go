package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/config"
	"github.com/simp-lee/gomount/internal/middleware"
	"github.com/simp-lee/gomount/internal/pkg"
)

// Names under which initializers can enable host middleware with use().
// Recovery, request tagging and access logging are always installed.
const (
	MiddlewareCORS = "cors"
	MiddlewareCSRF = "csrf"
)

// booter is the part of the runner the health endpoint needs.
type booter interface {
	Done() bool
}

// installBase sets up the main engine right after it is created, before any
// initializer or module route touches it. owner attributes requests to the
// module serving them.
func installBase(e *gin.Engine, log *slog.Logger, b booter, owner middleware.OwnerFunc) {
	e.Use(
		middleware.RequestContext(middleware.RequestContextConfig{Owner: owner}),
		middleware.Recovery(log),
		middleware.AccessLog(log, middleware.AccessLogConfig{SkipPaths: []string{"/health"}}),
	)
	e.GET("/health", healthHandler(b))
	e.NoRoute(noRouteHandler())
}

// healthHandler reports ok once every boot phase completed.
func healthHandler(b booter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if b == nil || !b.Done() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "booting",
				"components": gin.H{
					"modules": "pending",
				},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"components": gin.H{
				"modules": "mounted",
			},
		})
	}
}

// noRouteHandler returns the JSON 404 envelope.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
	}
}

// namedMiddlewares builds the handlers initializers may enable by name.
// csrf is only offered when a secret is available.
func namedMiddlewares(cfg *config.Config, log *slog.Logger) (map[string]gin.HandlerFunc, error) {
	m := map[string]gin.HandlerFunc{
		MiddlewareCORS: middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)),
	}

	secret, err := resolveCSRFSecret(cfg.Server.Mode, cfg.Server.CSRFSecret, log)
	if err != nil {
		return nil, err
	}
	if secret != "" {
		m[MiddlewareCSRF] = middleware.CSRF(secret)
	}
	return m, nil
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

// resolveCSRFSecret returns "" in release mode when no real secret is set.
// Other modes fall back to a random per-process secret.
func resolveCSRFSecret(mode, secret string, log *slog.Logger) (string, error) {
	if !isPlaceholderCSRFSecret(secret) {
		return strings.TrimSpace(secret), nil
	}
	if mode == gin.ReleaseMode {
		log.Warn("no csrf_secret configured, csrf middleware unavailable")
		return "", nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf secret: %w", err)
	}
	log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	return hex.EncodeToString(b), nil
}

// resolveCORSConfig merges the configured CORS settings over the middleware
// defaults. In release mode, when no allowlist is configured, cross-origin
// requests are denied.
func resolveCORSConfig(mode string, cfg config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()

	switch {
	case len(cfg.AllowOrigins) > 0:
		corsConfig.AllowOrigins = cfg.AllowOrigins
	case mode == gin.ReleaseMode:
		corsConfig.AllowOrigins = []string{}
	}
	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials

	// max_age was validated as a positive duration.
	if d, err := time.ParseDuration(cfg.MaxAge); err == nil && d > 0 {
		corsConfig.MaxAge = d
	}

	return corsConfig
}
