package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupAccessLogRouter(buf *bytes.Buffer) *gin.Engine {
	r := gin.New()
	r.Use(RequestContext(RequestContextConfig{Owner: shopOwner}), AccessLog(newTestLogger(buf), AccessLogConfig{SkipPaths: []string{"/health"}}))
	r.GET("/status/:code", func(c *gin.Context) {
		switch c.Param("code") {
		case "404":
			c.Status(http.StatusNotFound)
		case "500":
			c.Status(http.StatusInternalServerError)
		default:
			c.String(http.StatusOK, "ok")
		}
	})
	r.GET("/shop/cart", func(c *gin.Context) { c.String(http.StatusOK, "cart") })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAccessLog_LevelByStatus(t *testing.T) {
	tests := []struct {
		path  string
		level string
	}{
		{"/status/200", "level=INFO"},
		{"/status/404", "level=WARN"},
		{"/status/500", "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var buf bytes.Buffer
			r := setupAccessLogRouter(&buf)
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			if !strings.Contains(out, tt.level) || !strings.Contains(out, "msg=request") {
				t.Errorf("log = %q, want %s request record", out, tt.level)
			}
			if !strings.Contains(out, "path="+tt.path) {
				t.Errorf("log = %q, missing path", out)
			}
			if strings.Contains(out, "module=") {
				t.Errorf("log = %q, unowned path should have no module", out)
			}
		})
	}
}

func TestAccessLog_CarriesModule(t *testing.T) {
	var buf bytes.Buffer
	r := setupAccessLogRouter(&buf)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/shop/cart", nil))

	if out := buf.String(); !strings.Contains(out, "module=shop") || !strings.Contains(out, "status=200") {
		t.Errorf("log = %q, want module=shop status=200", out)
	}
}

func TestAccessLog_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	r := setupAccessLogRouter(&buf)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if buf.Len() != 0 {
		t.Errorf("expected no log for skipped path, got %q", buf.String())
	}
}
