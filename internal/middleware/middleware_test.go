package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(t *testing.T) (*service.AuthService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}
	return service.NewAuthService(cfg, rdb), mr
}

func okHandler(c *gin.Context) {
	claims := GetClaims(c)
	c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestRequireCandidateJWT(t *testing.T) {
	auth, _ := newAuth(t)
	r := gin.New()
	r.GET("/c", RequireCandidateJWT(auth), okHandler)

	candidate, err := auth.GenerateToken(7, service.TokenTypeCandidate)
	require.NoError(t, err)
	reviewer, err := auth.GenerateToken(8, service.TokenTypeReviewer)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"candidate token", candidate, http.StatusOK, ""},
		{"reviewer token", reviewer, http.StatusForbidden, "CANDIDATE_ACCESS_ONLY"},
		{"garbage", "not-a-jwt", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"missing", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/c", nil)
			if tt.token != "" {
				bearer(req, tt.token)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Contains(t, w.Body.String(), tt.code)
			}
		})
	}
}

func TestRequireCandidateWSAuthReadsQuery(t *testing.T) {
	auth, _ := newAuth(t)
	r := gin.New()
	r.GET("/ws", RequireCandidateWSAuth(auth), okHandler)

	token, err := auth.GenerateToken(3, service.TokenTypeCandidate)
	require.NoError(t, err)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, bearer(httptest.NewRequest(http.MethodGet, "/ws", nil), token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAnyTokenType(t *testing.T) {
	auth, _ := newAuth(t)
	r := gin.New()
	r.GET("/any", RequireJWT(auth), RequireAnyTokenType(service.TokenTypeReviewer), okHandler)

	reviewer, err := auth.GenerateToken(1, service.TokenTypeReviewer)
	require.NoError(t, err)
	candidate, err := auth.GenerateToken(2, service.TokenTypeCandidate)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/any", nil), reviewer)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/any", nil), candidate)).Code)
}

func TestRejectRevokedTokens(t *testing.T) {
	auth, mr := newAuth(t)
	r := gin.New()
	r.GET("/c", RequireCandidateJWT(auth), RejectRevokedTokens(auth, zerolog.Nop()), okHandler)

	token, err := auth.GenerateToken(5, service.TokenTypeCandidate)
	require.NoError(t, err)
	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/c", nil), token)).Code)

	require.NoError(t, auth.Revoke(context.Background(), claims))
	w := serve(r, bearer(httptest.NewRequest(http.MethodGet, "/c", nil), token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REVOKED")

	// Redis outage fails open.
	mr.Close()
	assert.Equal(t, http.StatusOK, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/c", nil), token)).Code)
}

func TestRateLimiterPerCaller(t *testing.T) {
	rl := &RateLimiter{visitors: make(map[string]*visitor), rate: 2, interval: time.Minute}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("user:1"))
	assert.True(t, rl.allow("user:1"))
	assert.False(t, rl.allow("user:1"))
	assert.True(t, rl.allow("user:2"), "buckets are per caller")

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("user:1"))

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestRateLimiterMiddlewareKeysByUser(t *testing.T) {
	auth, _ := newAuth(t)
	rl := &RateLimiter{visitors: make(map[string]*visitor), rate: 1, interval: time.Hour, now: time.Now}
	r := gin.New()
	r.GET("/p", RequireCandidateJWT(auth), rl.Middleware(), okHandler)

	a, err := auth.GenerateToken(1, service.TokenTypeCandidate)
	require.NoError(t, err)
	b, err := auth.GenerateToken(2, service.TokenTypeCandidate)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/p", nil), a)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/p", nil), a)).Code)
	assert.Equal(t, http.StatusOK, serve(r, bearer(httptest.NewRequest(http.MethodGet, "/p", nil), b)).Code)
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	large := strings.Repeat("band ", 2000)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) {
		c.String(http.StatusOK, large[:1500])
		c.String(http.StatusOK, large[1500:])
	})
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))

	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/s", NoStore(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/s", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
