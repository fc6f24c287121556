package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridez/internal/auth"
	"ridez/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func bearer(t *testing.T, tokens *auth.TokenManager, id int64, role domain.Role) string {
	t.Helper()
	token, _, err := tokens.Issue(&domain.User{ID: id, Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	tokens := auth.NewTokenManager("secret", time.Hour, "ridez")
	expired := auth.NewTokenManager("secret", -time.Minute, "ridez")

	router := gin.New()
	router.GET("/admin", Authenticate(tokens), RequireRole(domain.RoleAdmin), func(c *gin.Context) {
		id, _ := c.Get(ContextUserID)
		c.JSON(http.StatusOK, gin.H{"user": id, "role": CallerRole(c)})
	})

	testCases := []struct {
		name   string
		header string
		status int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"expired token", bearer(t, expired, 1, domain.RoleAdmin), http.StatusUnauthorized},
		{"rider", bearer(t, tokens, 2, domain.RoleRider), http.StatusForbidden},
		{"driver", bearer(t, tokens, 3, domain.RoleDriver), http.StatusForbidden},
		{"admin", bearer(t, tokens, 4, domain.RoleAdmin), http.StatusOK},
		{"lowercase scheme", strings.Replace(bearer(t, tokens, 5, domain.RoleAdmin), "Bearer", "bearer", 1), http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"role":"admin"`)
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestCallerRole_Absent(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, domain.Role(""), CallerRole(c))
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))
	assert.Equal(t, "abc", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 129))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
	assert.Equal(t, w.Header().Get(requestIDHeader), w.Body.String())
}

// idempotencyRouter counts handler invocations behind the middleware.
func idempotencyRouter(t *testing.T, client redis.Cmdable, status int) (*gin.Engine, *int32) {
	t.Helper()
	var calls int32

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id, err := strconv.ParseInt(c.GetHeader("X-Test-User"), 10, 64); err == nil {
			c.Set(ContextUserID, id)
		}
		c.Next()
	})
	router.Use(IdempotencyMiddleware(client, quietLogger()))
	handler := func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(status, gin.H{"call": n})
	}
	router.POST("/things", handler)
	router.POST("/other", handler)
	router.GET("/things", handler)
	return router, &calls
}

func send(router *gin.Engine, method, path, key, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router, calls := idempotencyRouter(t, client, http.StatusCreated)

	first := send(router, http.MethodPost, "/things", "k1", "7")
	second := send(router, http.MethodPost, "/things", "k1", "7")

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Empty(t, first.Header().Get(ReplayedHeader))
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], idempotencyPrefix))
	assert.Equal(t, idempotencyTTL, mr.TTL(keys[0]))
}

func TestIdempotency_KeyScope(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router, calls := idempotencyRouter(t, client, http.StatusCreated)

	// Caller, path, key, a missing key and non-write methods each bypass the first response.
	send(router, http.MethodPost, "/things", "k1", "7")
	send(router, http.MethodPost, "/things", "k1", "8")
	send(router, http.MethodPost, "/other", "k1", "7")
	send(router, http.MethodPost, "/things", "k2", "7")
	send(router, http.MethodPost, "/things", "", "7")
	send(router, http.MethodGet, "/things", "k1", "7")
	send(router, http.MethodGet, "/things", "k1", "7")

	assert.Equal(t, int32(7), atomic.LoadInt32(calls))
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router, calls := idempotencyRouter(t, client, http.StatusInternalServerError)

	send(router, http.MethodPost, "/things", "k1", "7")
	send(router, http.MethodPost, "/things", "k1", "7")

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Empty(t, mr.Keys())
}

func TestIdempotency_StoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	router, calls := idempotencyRouter(t, client, http.StatusCreated)

	w := send(router, http.MethodPost, "/things", "k1", "7")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
