package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/gomount/internal/pkg"
)

const (
	csrfCookieName = "_csrf_token"
	csrfFormField  = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
)

// CSRF protects unsafe requests with a double-submit token signed with
// HMAC-SHA256 over secret.
//
// Safe requests (GET, HEAD, OPTIONS) get a token cookie when they do not
// already carry a valid one. The cookie is readable from script, so module
// pages served as static files can echo it back. Unsafe requests must send
// the same token in the "_csrf_token" form field or the X-CSRF-Token header,
// or they end with a 403 JSON envelope.
//
// Initializers enable it with use("csrf"). It runs on the main application,
// so API and static routes mounted below it are covered too.
func CSRF(secret string) gin.HandlerFunc {
	s := csrfSigner(strings.TrimSpace(secret))
	if s == "" {
		return func(c *gin.Context) {
			abortJSON(c, http.StatusInternalServerError, "csrf secret is required")
		}
	}

	secure := gin.Mode() == gin.ReleaseMode
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if token, err := c.Cookie(csrfCookieName); err != nil || !s.valid(token) {
				token, err = s.issue()
				if err != nil {
					abortJSON(c, http.StatusInternalServerError, "failed to generate csrf token")
					return
				}
				http.SetCookie(c.Writer, &http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     "/",
					Secure:   secure,
					SameSite: http.SameSiteStrictMode,
				})
			}
			c.Next()

		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			cookie, _ := c.Cookie(csrfCookieName)
			sent := c.PostForm(csrfFormField)
			if sent == "" {
				sent = c.GetHeader(csrfHeaderName)
			}
			if cookie == "" || sent == "" {
				abortJSON(c, http.StatusForbidden, "csrf token missing")
				return
			}
			if !s.valid(cookie) || subtle.ConstantTimeCompare([]byte(cookie), []byte(sent)) != 1 {
				abortJSON(c, http.StatusForbidden, "csrf token invalid")
				return
			}
			c.Next()

		default:
			c.Next()
		}
	}
}

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, pkg.Response{Code: status, Message: msg})
}

// csrfSigner is the HMAC key. Tokens are hex(nonce) "." base64url(mac).
type csrfSigner string

func (s csrfSigner) issue() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	n := hex.EncodeToString(nonce)
	return n + "." + s.sign(n), nil
}

func (s csrfSigner) sign(nonce string) string {
	mac := hmac.New(sha256.New, []byte(s))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s csrfSigner) valid(token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(s.sign(nonce))) == 1
}
