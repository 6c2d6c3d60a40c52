package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuthAndRole(t *testing.T) {
	auth := service.NewAuthService("secret", time.Hour, nil)
	r := gin.New()
	r.GET("/staff", RequireAuth(auth), RequireStaff(), func(c *gin.Context) {
		actor, ok := GetActor(c)
		require.True(t, ok)
		c.String(http.StatusOK, string(actor.Role))
	})

	instructor, err := auth.Issue(model.Actor{UserID: uuid.New(), Role: model.RoleInstructor}, time.Now())
	require.NoError(t, err)
	student, err := auth.Issue(model.Actor{UserID: uuid.New(), Role: model.RoleStudent}, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("Authorization", "Bearer "+instructor)
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "instructor", w.Body.String())

	// Query token is accepted for EventSource clients.
	w = serve(r, httptest.NewRequest(http.MethodGet, "/staff?token="+instructor, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("Authorization", "Bearer "+student)
	w = serve(r, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "PERMISSION_DENIED")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/staff", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REQUIRED")

	req = httptest.NewRequest(http.MethodGet, "/staff", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_INVALID")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("ip:a"))
	assert.True(t, rl.allow("ip:a"))
	assert.False(t, rl.allow("ip:a"))
	assert.True(t, rl.allow("ip:b"))

	now = now.Add(time.Minute)
	assert.True(t, rl.allow("ip:a"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	defer rl.Stop()

	r := gin.New()
	r.GET("/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestBrotli(t *testing.T) {
	large := strings.Repeat("exam ", 1000)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := serve(r, req)
	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", w.Body.String())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	auth := service.NewAuthService("secret", time.Hour, nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware(), RequestLogger(log))
	r.GET("/exams/:exam_id", RequireAuth(auth), func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside")
		c.Status(http.StatusNotFound)
	})

	userID := uuid.New()
	token, err := auth.Issue(model.Actor{UserID: userID, Role: model.RoleStudent}, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/exams/123", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(response.HeaderRequestID, "trace-1")
	serve(r, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"request_id":"trace-1"`)
	assert.Contains(t, lines[0], `"message":"inside"`)
	assert.Contains(t, lines[1], `"level":"warn"`)
	assert.Contains(t, lines[1], `"path":"/exams/:exam_id"`)
	assert.Contains(t, lines[1], `"status":404`)
	assert.Contains(t, lines[1], `"user_id":"`+userID.String()+`"`)
}

func TestCacheHeaders(t *testing.T) {
	r := gin.New()
	r.GET("/static", CacheControl(time.Hour, true), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/me", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/static", nil))
	assert.Equal(t, "public, max-age=3600, immutable", w.Header().Get("Cache-Control"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
