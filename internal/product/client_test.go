package product

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"stockledger-api/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestClient_Exists(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		switch r.URL.Path {
		case "/api/v1/products/1/exists":
			writeJSON(w, http.StatusOK, `{"exists":true}`)
		case "/api/v1/products/2/exists":
			writeJSON(w, http.StatusOK, `{"exists":false}`)
		case "/api/v1/products/3/exists":
			writeJSON(w, http.StatusNotFound, `{"errors":[]}`)
		default:
			writeJSON(w, http.StatusServiceUnavailable, `{}`)
		}
	})
	ctx := context.Background()

	ok, err := c.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Exists(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Exists(ctx, 4)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, IsTransient(err))
}

func TestClient_Fetch(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/products/42":
			writeJSON(w, http.StatusOK, `{"data":{"id":"42","type":"products","attributes":{
				"name":"Widget","description":"A widget","price":"19.99","category":"tools","active":true,
				"created_at":"2024-01-01T10:00:00Z","updated_at":"2024-01-02T10:00:00Z"}}}`)
		case "/api/v1/products/500":
			writeJSON(w, http.StatusInternalServerError, `{}`)
		default:
			writeJSON(w, http.StatusNotFound, `{}`)
		}
	})
	ctx := context.Background()

	p, err := c.Fetch(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, "19.99", p.Price.StringFixed(2))
	assert.True(t, p.Active)

	_, err = c.Fetch(ctx, 7)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.False(t, IsTransient(err))

	_, err = c.Fetch(ctx, 500)
	require.Error(t, err)
	assert.False(t, IsTransient(err), "500 is a failure but not retried")
}

func TestClient_FetchBatch(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/batch", r.URL.Path)
		assert.Equal(t, "1,2", r.URL.Query().Get("ids"))
		writeJSON(w, http.StatusOK, `{"data":[
			{"id":"1","type":"products","attributes":{"name":"A","price":1}},
			{"id":"2","type":"products","attributes":{"name":"B","price":2.5}}]}`)
	})

	products, err := c.FetchBatch(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "B", products[1].Name)

	empty, err := c.FetchBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClient_TimeoutIsTransient(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Exists(ctx, 1)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClient_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second})
	_, err := c.Exists(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCachedAuthority_Fetch(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusOK, `{"data":{"id":"9","type":"products","attributes":{"name":"Cached","price":"3.00"}}}`)
	})

	mem := cache.NewMemoryCache(0)
	defer mem.Close()
	cached := NewCachedAuthority(c, mem, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := cached.Fetch(context.Background(), 9)
		require.NoError(t, err)
		assert.Equal(t, "Cached", p.Name)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrProductNotFound))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, IsTransient(&StatusError{StatusCode: http.StatusBadRequest}))
}
