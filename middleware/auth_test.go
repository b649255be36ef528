package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func callProtected(token string) *httptest.ResponseRecorder {
	handler := AdminOnly(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/tournaments", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminOnlyAcceptsValidToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusNoContent, callProtected(token).Code)
}

func TestAdminOnlyRejectsMissingHeader(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, callProtected("").Code)
}

func TestAdminOnlyRejectsBadSignature(t *testing.T) {
	token := signToken(t, "some-other-secret", jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusUnauthorized, callProtected(token).Code)
}

func TestAdminOnlyRejectsExpiredToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(-time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusUnauthorized, callProtected(token).Code)
}

func TestAdminOnlyRequiresAdminRole(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"role": "player",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, http.StatusForbidden, callProtected(token).Code)
}
