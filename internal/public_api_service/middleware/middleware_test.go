package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_, _ = io.WriteString(w, u.ID)
	})
}

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware(testSecret, discardLogger())(echoUser())
	valid := jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name: "ValidBearer",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, valid))
			},
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name: "QueryToken",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("access_token", signToken(t, jwt.SigningMethodHS256, testSecret, valid))
				r.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
			wantBody:   "alice",
		},
		{
			name:       "MissingHeader",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "WrongScheme",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "WrongSecret",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte("other"), valid))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Expired",
			setup: func(r *http.Request) {
				claims := jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Minute).Unix()}
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, claims))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "NoExpiry",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice"}))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "NoSubject",
			setup: func(r *http.Request) {
				claims := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, claims))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "OtherAlgorithm",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS512, testSecret, valid))
			},
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/chats/c1/messages", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestUserRateLimiter(t *testing.T) {
	limiter := NewUserRateLimiter(2)
	handler := limiter.Middleware(discardLogger())(echoUser())

	do := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
		if userID != "" {
			req = req.WithContext(WithUser(req.Context(), AuthenticatedUser{ID: userID}))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, do("alice").Code)
	assert.Equal(t, http.StatusOK, do("alice").Code)
	limited := do("alice")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do("bob").Code, "buckets are per user")
	assert.Equal(t, http.StatusTeapot, do("").Code, "anonymous requests pass through")

	read := httptest.NewRequest(http.MethodGet, "/v1/messages/m1", nil)
	read = read.WithContext(WithUser(read.Context(), AuthenticatedUser{ID: "alice"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, read)
	assert.Equal(t, http.StatusOK, rr.Code, "reads are not limited")
}
