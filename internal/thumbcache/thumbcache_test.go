package thumbcache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thumbServer(t *testing.T, size int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(make([]byte, size))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestGetCachesSecondHit(t *testing.T) {
	server, hits := thumbServer(t, 1000)
	c := New(http.DefaultClient, 0, 0)

	a, err := c.Get(context.Background(), server.URL+"/t.jpg")
	require.NoError(t, err)
	b, err := c.Get(context.Background(), server.URL+"/t.jpg")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(1), hits.Load(), "second hit is served from cache")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1000), c.Size())
}

func TestTTLExpiry(t *testing.T) {
	server, hits := thumbServer(t, 100)
	c := New(http.DefaultClient, 120*time.Second, 0)

	clock := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return clock }

	_, err := c.Get(context.Background(), server.URL+"/t.jpg")
	require.NoError(t, err)

	clock = clock.Add(119 * time.Second)
	_, err = c.Get(context.Background(), server.URL+"/t.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load(), "still fresh just inside the TTL")

	clock = clock.Add(2 * time.Second)
	_, err = c.Get(context.Background(), server.URL+"/t.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load(), "expired entry is refetched")
	assert.Equal(t, 1, c.Len())
}

func TestLRUEvictionToThreeQuarters(t *testing.T) {
	server, _ := thumbServer(t, 100)
	// Budget of 1000 bytes, entries of 100: the 11th insert overflows and
	// eviction drains to 750, dropping the oldest three.
	c := New(http.DefaultClient, 0, 1000)

	for i := 0; i < 10; i++ {
		_, err := c.Get(context.Background(), fmt.Sprintf("%s/t%d.jpg", server.URL, i))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1000), c.Size())

	// Touch t0 so it is the most recently used, then overflow.
	_, err := c.Get(context.Background(), server.URL+"/t0.jpg")
	require.NoError(t, err)
	_, err = c.Get(context.Background(), server.URL+"/t10.jpg")
	require.NoError(t, err)

	assert.LessOrEqual(t, c.Size(), int64(750))
	assert.Equal(t, 7, c.Len())

	// t0 survived its touch; the oldest untouched entries were the victims.
	hitsBefore := c.Size()
	_, err = c.Get(context.Background(), server.URL+"/t0.jpg")
	require.NoError(t, err)
	assert.Equal(t, hitsBefore, c.Size(), "t0 still cached, no refetch growth")
}

func TestFetchErrorNotCached(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	c := New(http.DefaultClient, 0, 0)
	_, err := c.Get(context.Background(), server.URL+"/missing.jpg")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	c.Get(context.Background(), server.URL+"/missing.jpg")
	assert.Equal(t, int64(2), hits.Load(), "failures are not cached")
}
