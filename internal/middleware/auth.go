package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/songquanpeng/smart-router-gateway/internal/config"
	"github.com/songquanpeng/smart-router-gateway/internal/session"
)

const adminJWTTTL = 24 * time.Hour

func abortJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"message": message,
			"type":    "server_error",
			"code":    code,
		},
	})
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer"))
}

// APIKeyAuth gates the ingress chat-completion routes. When auth is
// disabled in config every caller is admitted under an anonymous session
// key. Otherwise the caller's Authorization header must carry the
// configured static api_token; the masked key, user-agent, and client IP
// are hashed into a §3.7 session key and stashed on the context for the
// dispatcher to attribute cost/usage to.
func APIKeyAuth(cfgReg *config.Registry, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := cfgReg.AuthConfig()
		apiKey := bearerToken(c)

		if cfg.Enabled {
			if apiKey == "" || apiKey != cfg.APIToken {
				abortJSON(c, http.StatusUnauthorized, "invalid_api_key", "invalid or missing API key")
				return
			}
		}

		key := session.Key(apiKey, c.GetHeader("User-Agent"), c.ClientIP())
		c.Set(ginKeySessionKey, key)
		c.Set(ginKeyMaskedAPIKey, session.MaskAPIKey(apiKey))
		c.Next()
	}
}

const (
	ginKeySessionKey   = "session_key"
	ginKeyMaskedAPIKey = "masked_api_key"
)

// SessionKeyFrom reads the session key APIKeyAuth computed for this request.
func SessionKeyFrom(c *gin.Context) string { return c.GetString(ginKeySessionKey) }

// MaskedAPIKeyFrom reads the masked API key APIKeyAuth computed for this request.
func MaskedAPIKeyFrom(c *gin.Context) string { return c.GetString(ginKeyMaskedAPIKey) }

// AdminAuth gates /admin routes (§6.1). It accepts either the raw static
// admin_token (bootstrap credential) or a JWT minted by IssueAdminJWT and
// signed with that same token as the HMAC secret, so an operator can hand
// out a short-lived token instead of the permanent one.
func AdminAuth(cfgReg *config.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := cfgReg.AuthConfig()
		if !cfg.Admin.Enabled {
			abortJSON(c, http.StatusForbidden, "admin_disabled", "admin API is disabled")
			return
		}

		token := bearerToken(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "missing_admin_token", "missing admin token")
			return
		}
		if token == cfg.Admin.AdminToken {
			c.Next()
			return
		}
		if validateAdminJWT(token, cfg.Admin.AdminToken) {
			c.Next()
			return
		}
		abortJSON(c, http.StatusUnauthorized, "invalid_admin_token", "invalid admin token")
	}
}

// IssueAdminJWT mints a 24h JWT for the admin bearer flow, signed with the
// configured admin_token as the HMAC secret.
func IssueAdminJWT(adminToken string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(adminJWTTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(adminToken))
}

func validateAdminJWT(token, adminToken string) bool {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(adminToken), nil
	})
	return err == nil && parsed.Valid
}
