package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	idempotencyPrefix = "idempotency:"

	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"
)

type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// bodyRecorder tees the response body so it can be stored after the handler runs.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a POST, PUT or PATCH
// that repeats an Idempotency-Key. Keys are scoped to the caller, method and
// path. Responses with status 2xx to 4xx are stored; store failures never fail
// the request.
func IdempotencyMiddleware(client redis.Cmdable, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyKey(c, key)

		cached, err := loadResponse(ctx, client, cacheKey)
		switch {
		case err != nil && !errors.Is(err, redis.Nil):
			log.WithError(err).Warn("idempotency lookup failed")
		case cached != nil:
			c.Header(ReplayedHeader, "true")
			c.Data(cached.StatusCode, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		w := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		status := w.Status()
		if status < 200 || status >= 500 {
			return
		}
		response := cachedResponse{
			StatusCode:  status,
			Body:        w.body.Bytes(),
			ContentType: w.Header().Get("Content-Type"),
		}
		if err := storeResponse(ctx, client, cacheKey, &response); err != nil {
			log.WithError(err).Warn("idempotency store failed")
		}
	}
}

func idempotencyKey(c *gin.Context, key string) string {
	userID := "anonymous"
	if id, ok := c.Get(ContextUserID); ok {
		userID = formatID(id)
	}
	sum := sha256.Sum256([]byte(userID + "\x00" + c.Request.Method + "\x00" + c.Request.URL.Path + "\x00" + key))
	return idempotencyPrefix + hex.EncodeToString(sum[:])
}

func loadResponse(ctx context.Context, client redis.Cmdable, key string) (*cachedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

func storeResponse(ctx context.Context, client redis.Cmdable, key string, response *cachedResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	return client.Set(ctx, key, data, idempotencyTTL).Err()
}
