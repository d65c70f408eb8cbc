package middleware

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/errors"
)

// OperatorKey holds the authenticated operator name in the gin context.
const OperatorKey = "operator"

// Authenticator resolves an API key to its operator. service.CredentialService
// satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (string, error)
}

type AuthMiddleware struct {
	creds Authenticator
}

func NewAuthMiddleware(creds Authenticator) *AuthMiddleware {
	return &AuthMiddleware{creds: creds}
}

// RequireAPIKey validates the operator API key (required)
func (m *AuthMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := GetLoggerFromContext(c)

		key, ok := extractAPIKey(c)
		if !ok {
			log.Warn("Missing API key", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			errors.Unauthorized(c, errors.AuthUnauthorized, "")
			c.Abort()
			return
		}

		operator, err := m.creds.Authenticate(c.Request.Context(), key)
		if err != nil {
			log.Warn("API key rejected", map[string]interface{}{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			})
			switch {
			case stderrors.Is(err, service.ErrRevokedAPIKey):
				errors.Unauthorized(c, errors.AuthKeyRevoked, "폐기된 API 키입니다")
			case stderrors.Is(err, service.ErrInvalidAPIKey):
				errors.Unauthorized(c, errors.AuthKeyInvalid, "유효하지 않은 API 키입니다")
			default:
				errors.InternalError(c, "")
			}
			c.Abort()
			return
		}

		c.Set(OperatorKey, operator)
		log.Debug("Operator authenticated", map[string]interface{}{
			"operator": operator,
		})
		c.Next()
	}
}

// extractAPIKey reads "Authorization: Bearer <key>", then X-API-Key, then the
// api_key query parameter (browsers cannot set headers on WebSocket upgrades).
func extractAPIKey(c *gin.Context) (string, bool) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1]), true
		}
		return "", false
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key, true
	}
	if key := c.Query("api_key"); key != "" {
		return key, true
	}
	return "", false
}

// GetOperator returns the authenticated operator, if any.
func GetOperator(c *gin.Context) (string, bool) {
	v, ok := c.Get(OperatorKey)
	if !ok {
		return "", false
	}
	operator, ok := v.(string)
	return operator, ok
}
