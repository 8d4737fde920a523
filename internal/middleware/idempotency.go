package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// IdempotencyStore keeps replayable responses keyed by Idempotency-Key.
type IdempotencyStore interface {
	// GetResponse returns the stored response, or nil when none was stored.
	GetResponse(ctx context.Context, key string) ([]byte, error)
	SaveResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// carrying an Idempotency-Key that was already served. Operators double
// clicking "dispatch" or "create order" get the first answer back.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := c.Request.Method + " " + c.Request.URL.Path + " " + key

		cached, err := loadResponse(ctx, store, cacheKey)
		if err != nil {
			// Store unavailable - proceed without idempotency.
			log.Printf("[IDEMPOTENCY] Lookup failed for key=%s: %v", key, err)
			c.Next()
			return
		}

		if cached != nil {
			for k, v := range cached.Headers {
				for _, val := range v {
					c.Header(k, val)
				}
			}
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		// Server errors are not cached so the client can retry.
		if status := c.Writer.Status(); status >= 200 && status < 500 {
			response := cachedResponse{
				StatusCode: status,
				Body:       w.body.Bytes(),
				Headers:    extractResponseHeaders(c),
			}
			if err := saveResponse(ctx, store, cacheKey, &response); err != nil {
				log.Printf("[IDEMPOTENCY] Failed to store key=%s: %v", key, err)
			}
		}
	}
}

func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func loadResponse(ctx context.Context, store IdempotencyStore, key string) (*cachedResponse, error) {
	data, err := store.GetResponse(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &cached, nil
}

func saveResponse(ctx context.Context, store IdempotencyStore, key string, response *cachedResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	return store.SaveResponse(ctx, key, data, idempotencyTTL)
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
