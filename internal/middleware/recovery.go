package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/pkg"
)

// Recovery returns a gin middleware that recovers from panics raised by
// module routes, logs the error with stack trace and the owning module, and
// returns an error response.
//
// Browsers (Accept contains "text/html") get a plain text body, since module
// pages are served as static files and there is no template renderer. All
// other requests get the JSON envelope:
//
//	{"code": 500, "message": "internal server error", "data": null}
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()

				attrs := []any{
					slog.Any("panic", err),
					slog.String("method", c.Request.Method),
					slog.String("path", c.Request.URL.Path),
				}
				if module := GetModule(c); module != "" {
					attrs = append(attrs, slog.String("module", module))
				}
				attrs = append(attrs, slog.String("stack", string(stack)))
				logger.ErrorContext(c.Request.Context(), "panic recovered", attrs...)

				if acceptsHTML(c) {
					c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("500 Internal Server Error"))
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, pkg.Response{
					Code:    http.StatusInternalServerError,
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// acceptsHTML returns true if the request's Accept header contains "text/html".
func acceptsHTML(c *gin.Context) bool {
	accept := strings.ToLower(c.GetHeader("Accept"))
	return strings.Contains(accept, "text/html")
}
