package middleware

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	moduleHeader    = "X-Module"

	requestIDKey = "request_id"
	moduleKey    = "module"
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

var requestIDFallback atomic.Uint64

// OwnerFunc reports the module serving a request path on the main
// application.
type OwnerFunc func(path string) (module string, ok bool)

// RequestContextConfig configures RequestContext.
type RequestContextConfig struct {
	// TrustUpstream reuses a well-formed X-Request-ID sent by the client.
	TrustUpstream bool
	// Owner attributes requests to modules. Requests stay unattributed when
	// it is nil or does not know the path.
	Owner OwnerFunc
}

// RequestContext tags each request with a request id and, when known, the
// module that serves it. Both values are stored on the gin.Context, echoed in
// the X-Request-ID and X-Module response headers and attached to the request
// context through logger.WithContextAttrs, so every log line written while
// handling the request carries them.
func RequestContext(cfg RequestContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if cfg.TrustUpstream {
			if upstream := c.GetHeader(requestIDHeader); requestIDPattern.MatchString(upstream) {
				id = upstream
			}
		}
		if id == "" {
			id = newRequestID()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		ctx := c.Request.Context()
		module, ok := "", false
		if cfg.Owner != nil {
			module, ok = cfg.Owner(c.Request.URL.Path)
		}
		if ok {
			c.Set(moduleKey, module)
			c.Header(moduleHeader, module)
			ctx = logger.WithContextAttrs(ctx, slog.String(requestIDKey, id), slog.String(moduleKey, module))
		} else {
			ctx = logger.WithContextAttrs(ctx, slog.String(requestIDKey, id))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID returns the request id set by RequestContext, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetModule returns the module RequestContext attributed the request to,
// or "".
func GetModule(c *gin.Context) string {
	return c.GetString(moduleKey)
}

// newRequestID returns 32 random hex characters. If the system random source
// fails it falls back to the clock and a process counter.
func newRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint64(b[8:], requestIDFallback.Add(1))
	}
	return hex.EncodeToString(b)
}
