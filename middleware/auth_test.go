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

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func authedRequest(t *testing.T, secret string, claims jwt.MapClaims) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, secret, claims))
	return r
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	var gotUserID int
	var gotIsAdmin bool
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotUserID, err = GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		gotIsAdmin, err = GetIsAdminFromContext(r.Context())
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))

	claims := jwt.MapClaims{
		"user_id":  float64(7),
		"is_admin": true,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, testSecret, claims))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, gotUserID)
	assert.True(t, gotIsAdmin)
}

func TestAuthenticateRejects(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	expired := jwt.MapClaims{
		"user_id": float64(7),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	}

	cases := []struct {
		name    string
		request func(t *testing.T) *http.Request
	}{
		{"missing header", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodGet, "/", nil)
		}},
		{"malformed header", func(t *testing.T) *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("Authorization", "Token abc")
			return r
		}},
		{"wrong secret", func(t *testing.T) *http.Request {
			return authedRequest(t, "other-secret", jwt.MapClaims{"user_id": float64(7)})
		}},
		{"expired token", func(t *testing.T) *http.Request {
			return authedRequest(t, testSecret, expired)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, tc.request(t))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestMaybeAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	var gotUserID int
	var gotErr error
	handler := auth.MaybeAuthenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotErr = GetUserIDFromContext(r.Context())
	}))

	// С токеном claims доступны.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, testSecret, jwt.MapClaims{"user_id": float64(7)}))
	require.NoError(t, gotErr)
	assert.Equal(t, 7, gotUserID)

	// Без токена запрос проходит, но анонимно.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Error(t, gotErr)

	// Негодный токен не отклоняет запрос, а лишь оставляет его анонимным.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, "other-secret", jwt.MapClaims{"user_id": float64(7)}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Error(t, gotErr)
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	handler := auth.Authenticate(auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, testSecret, jwt.MapClaims{"user_id": float64(7), "is_admin": true}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, testSecret, jwt.MapClaims{"user_id": float64(7), "is_admin": false}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Без claim is_admin доступ тоже закрыт.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, testSecret, jwt.MapClaims{"user_id": float64(7)}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetUserIDFromContextValidation(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	cases := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"missing user_id", jwt.MapClaims{"is_admin": false}},
		{"string user_id", jwt.MapClaims{"user_id": "7"}},
		{"fractional user_id", jwt.MapClaims{"user_id": 7.5}},
		{"non-positive user_id", jwt.MapClaims{"user_id": float64(0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var idErr error
			handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, idErr = GetUserIDFromContext(r.Context())
			}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authedRequest(t, testSecret, tc.claims))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Error(t, idErr)
		})
	}
}
