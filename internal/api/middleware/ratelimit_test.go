package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/trueque/internal/api/middleware"
	"greendrake/trueque/internal/auth"
	"greendrake/trueque/internal/config"
)

const testSecret = "middleware-secret"

func setupRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": middleware.UserID(c), "moderator": c.GetBool(middleware.ContextKeyIsModerator)})
	})
	r.GET("/test", chain...)
	return r
}

func token(t *testing.T, userID string, moderator bool) string {
	tok, err := auth.GenerateJWT(userID, moderator, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func doGet(r *gin.Engine, authHeader, remoteAddr string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterMiddleware_PerUser(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateLimitBucketSize = 2
	cfg.RateLimitRefillRate = 1
	rl := middleware.NewRateLimiterMiddleware(cfg)
	r := setupRouter(middleware.AuthMiddleware(testSecret), rl.Limit())

	alice := token(t, "alice", false)
	assert.Equal(t, http.StatusOK, doGet(r, alice, "").Code)
	assert.Equal(t, http.StatusOK, doGet(r, alice, "").Code)

	w := doGet(r, alice, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limited")

	// Another user has their own bucket.
	assert.Equal(t, http.StatusOK, doGet(r, token(t, "bob", false), "").Code)
}

func TestRateLimiterMiddleware_AnonymousByIP(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateLimitBucketSize = 1
	rl := middleware.NewRateLimiterMiddleware(cfg)
	r := setupRouter(rl.Limit())

	assert.Equal(t, http.StatusOK, doGet(r, "", "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(r, "", "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, doGet(r, "", "10.0.0.2:1234").Code)
}

func TestAuthMiddleware(t *testing.T) {
	r := setupRouter(middleware.AuthMiddleware(testSecret))

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Token abc", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Bearer abc", "").Code)

	w := doGet(r, token(t, "mod-1", true), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"mod-1","moderator":true}`, w.Body.String())
}

func TestOptionalAuthMiddleware(t *testing.T) {
	r := setupRouter(middleware.OptionalAuthMiddleware(testSecret))

	w := doGet(r, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"","moderator":false}`, w.Body.String())

	w = doGet(r, token(t, "alice", false), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"alice","moderator":false}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, doGet(r, "Bearer broken", "").Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/test", middleware.TimeoutMiddleware(time.Second), func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": ok})
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/test", nil)
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORSMiddleware([]string{"https://trueque.example"}))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://trueque.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://trueque.example", w.Header().Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
