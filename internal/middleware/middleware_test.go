package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) GetResponse(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	return s.data[key], nil
}

func (s *memoryStore) SaveResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		s.data[key] = data
	}
	return nil
}

func countingRouter(store IdempotencyStore, status int) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	calls := 0
	r := gin.New()
	r.Use(IdempotencyMiddleware(store))
	r.POST("/v1/orders", func(c *gin.Context) {
		calls++
		c.JSON(status, gin.H{"call": calls})
	})
	r.GET("/v1/orders", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"call": calls})
	})
	return r, &calls
}

func do(r http.Handler, method, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/orders", nil)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	r, calls := countingRouter(newMemoryStore(), http.StatusCreated)

	first := do(r, http.MethodPost, "k-1")
	second := do(r, http.MethodPost, "k-1")

	assert.Equal(t, 1, *calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestIdempotency_DistinctKeysRunHandler(t *testing.T) {
	r, calls := countingRouter(newMemoryStore(), http.StatusCreated)

	do(r, http.MethodPost, "k-1")
	do(r, http.MethodPost, "k-2")
	do(r, http.MethodPost, "")

	assert.Equal(t, 3, *calls)
}

func TestIdempotency_IgnoresReads(t *testing.T) {
	r, calls := countingRouter(newMemoryStore(), http.StatusOK)

	do(r, http.MethodGet, "k-1")
	do(r, http.MethodGet, "k-1")

	assert.Equal(t, 2, *calls)
}

func TestIdempotency_ServerErrorsAreNotCached(t *testing.T) {
	r, calls := countingRouter(newMemoryStore(), http.StatusInternalServerError)

	do(r, http.MethodPost, "k-1")
	do(r, http.MethodPost, "k-1")

	assert.Equal(t, 2, *calls)
}

func TestIdempotency_StoreFailureFallsThrough(t *testing.T) {
	store := newMemoryStore()
	store.failGet = errors.New("connection refused")
	r, calls := countingRouter(store, http.StatusCreated)

	w := do(r, http.MethodPost, "k-1")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, *calls)
}

func TestCORS_AnswersPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware())
	r.POST("/v1/orders", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/orders", nil)
	req.Header.Set("Origin", "http://console.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://console.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), idempotencyHeader)
}
