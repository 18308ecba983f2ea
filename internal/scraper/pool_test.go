// internal/scraper/pool_test.go
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", r.URL.Path)
	})
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /ok/private\n")
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.UserAgent())
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetcherPool_IsolatesFailures(t *testing.T) {
	server := newTestServer(t)
	client := NewHTTPClient(ClientConfig{Timeout: 200 * time.Millisecond})
	pool := NewFetcherPool(client, 3, nil)
	defer pool.Shutdown()

	ctx := context.Background()
	urls := []string{
		server.URL + "/ok/1",
		server.URL + "/slow/1",
		server.URL + "/ok/2",
		server.URL + "/slow/2",
		server.URL + "/ok/3",
	}
	for _, u := range urls {
		require.True(t, pool.Submit(ctx, Task{URL: u, SourceName: "test", SourceType: "web"}))
	}

	docs := pool.Drain()
	assert.Len(t, docs, 3)

	stats := pool.Stats()
	assert.Equal(t, PoolStats{Submitted: 5, Succeeded: 3, Failed: 2}, stats)

	failures := pool.Failures()
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.True(t, errors.Is(f.Err, errors.ErrFetch), "want FETCH_ERROR, got %v", f.Err)
	}

	for _, doc := range docs {
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, "text/html", doc.ContentType)
		assert.Equal(t, "utf-8", doc.Encoding)
		assert.Contains(t, doc.Content, "/ok/")
		assert.Equal(t, "web", doc.SourceType)
	}

	// A second batch starts from an empty result set.
	pool.Submit(ctx, Task{URL: server.URL + "/missing"})
	assert.Empty(t, pool.Drain())
	assert.Equal(t, 3, pool.Stats().Failed)
}

func TestFetcherPool_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	pool := NewFetcherPool(NewHTTPClient(ClientConfig{}), 2, nil)
	defer pool.Shutdown()

	for i := 0; i < 8; i++ {
		pool.Submit(context.Background(), Task{URL: fmt.Sprintf("%s/%d", server.URL, i)})
	}
	assert.Len(t, pool.Drain(), 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestFetcherPool_ShutdownIsIdempotent(t *testing.T) {
	server := newTestServer(t)
	pool := NewFetcherPool(NewHTTPClient(ClientConfig{}), 1, nil)

	pool.Submit(context.Background(), Task{URL: server.URL + "/ok/a"})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Shutdown()
		}()
	}
	wg.Wait()

	assert.False(t, pool.Submit(context.Background(), Task{URL: server.URL + "/ok/b"}))
	assert.Len(t, pool.Drain(), 1)
	assert.Equal(t, 1, pool.Stats().Failed)
}

func TestFetcherPool_RespectsRobots(t *testing.T) {
	server := newTestServer(t)
	pool := NewFetcherPool(NewHTTPClient(ClientConfig{}), 2, nil)
	defer pool.Shutdown()

	ctx := context.Background()
	pool.Submit(ctx, Task{URL: server.URL + "/ok/private", RespectRobots: true})
	pool.Submit(ctx, Task{URL: server.URL + "/ok/public", RespectRobots: true})
	pool.Submit(ctx, Task{URL: server.URL + "/ok/private", RespectRobots: false})

	docs := pool.Drain()
	assert.Len(t, docs, 2)
	require.Len(t, pool.Failures(), 1)
	assert.Contains(t, pool.Failures()[0].Err.Error(), "robots.txt")
}

func TestFetcherPool_UserAgentAndHook(t *testing.T) {
	server := newTestServer(t)

	var mu sync.Mutex
	var seen []string
	hook := func(task Task, doc *types.FetchedDocument, err error, _ time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if doc != nil {
			seen = append(seen, doc.Content)
		}
	}

	pool := NewFetcherPool(NewHTTPClient(ClientConfig{UserAgent: "Default/1.0"}), 1, nil, WithResultHook(hook))
	defer pool.Shutdown()

	pool.Submit(context.Background(), Task{URL: server.URL + "/ua", UserAgent: "Custom/2.0"})
	pool.Submit(context.Background(), Task{URL: server.URL + "/ua"})
	pool.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"Custom/2.0", "Default/1.0"}, seen)
}

func TestFetcherPool_CanceledContext(t *testing.T) {
	server := newTestServer(t)
	pool := NewFetcherPool(NewHTTPClient(ClientConfig{}), 1, nil)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool.Submit(ctx, Task{URL: server.URL + "/ok/x"})

	assert.Empty(t, pool.Drain())
	assert.Equal(t, 1, pool.Stats().Failed)
}

func TestSourceLimiters_SpacesRequests(t *testing.T) {
	limiters := NewSourceLimiters()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiters.Wait(ctx, "slow", 50*time.Millisecond))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	start = time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, limiters.Wait(ctx, "fast", 0))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
