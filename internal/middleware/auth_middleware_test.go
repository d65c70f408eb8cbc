package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/stretchr/testify/assert"
)

const testAPIKey = "mk_valid"

type stubAuthenticator struct {
	seen []string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, key string) (string, error) {
	s.seen = append(s.seen, key)
	switch key {
	case testAPIKey:
		return "alice", nil
	case "mk_revoked":
		return "", service.ErrRevokedAPIKey
	case "mk_broken":
		return "", errors.New("db down")
	default:
		return "", service.ErrInvalidAPIKey
	}
}

func setupMiddlewareTest() (*gin.Engine, *stubAuthenticator) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(LoggingMiddleware())

	creds := &stubAuthenticator{}
	m := NewAuthMiddleware(creds)
	router.GET("/test", m.RequireAPIKey(), func(c *gin.Context) {
		operator, _ := GetOperator(c)
		c.JSON(http.StatusOK, gin.H{"operator": operator})
	})
	return router, creds
}

func TestAuthMiddleware_RequireAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"Bearer header", "Authorization", "Bearer " + testAPIKey, "", http.StatusOK, `"operator":"alice"`},
		{"X-API-Key header", "X-API-Key", testAPIKey, "", http.StatusOK, `"operator":"alice"`},
		{"Query parameter", "", "", "?api_key=" + testAPIKey, http.StatusOK, `"operator":"alice"`},
		{"No key", "", "", "", http.StatusUnauthorized, "AUTH_UNAUTHORIZED"},
		{"Malformed authorization", "Authorization", "Token " + testAPIKey, "", http.StatusUnauthorized, "AUTH_UNAUTHORIZED"},
		{"Unknown key", "X-API-Key", "mk_nope", "", http.StatusUnauthorized, "AUTH_KEY_INVALID"},
		{"Revoked key", "X-API-Key", "mk_revoked", "", http.StatusUnauthorized, "AUTH_KEY_REVOKED"},
		{"Lookup failure", "X-API-Key", "mk_broken", "", http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupMiddlewareTest()

			req := httptest.NewRequest(http.MethodGet, "/test"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	router, _ := setupMiddlewareTest()

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))
}
