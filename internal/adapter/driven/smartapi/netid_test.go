package smartapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingDial(network, address string) (net.Conn, error) {
	return nil, errors.New("network unreachable")
}

func TestNetworkIdentity_PublicIPUsesFirstValidService(t *testing.T) {
	bad := echoServer(t, http.StatusOK, "not an ip", nil)
	down := echoServer(t, http.StatusServiceUnavailable, "", nil)
	var hits atomic.Int32
	good := echoServer(t, http.StatusOK, "203.0.113.9\n", &hits)

	id := NewNetworkIdentity(time.Second, []string{bad.URL, down.URL, good.URL})

	assert.Equal(t, "203.0.113.9", id.PublicIP(context.Background()))
	assert.Equal(t, "203.0.113.9", id.PublicIP(context.Background()))
	assert.Equal(t, int32(1), hits.Load(), "successful lookup is cached")
}

// hangingServer holds every request until the test ends.
func hangingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestNetworkIdentity_PublicIPFallbackCachedForTTL(t *testing.T) {
	var hits atomic.Int32
	down := echoServer(t, http.StatusInternalServerError, "", &hits)

	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	id := NewNetworkIdentity(time.Second, []string{down.URL})
	id.dial = failingDial
	id.now = func() time.Time { return now }

	assert.Equal(t, FallbackLocalIP, id.PublicIP(context.Background()))
	assert.Equal(t, FallbackLocalIP, id.PublicIP(context.Background()))
	assert.Equal(t, int32(1), hits.Load(), "fallback is served from cache")

	now = now.Add(fallbackTTL)
	assert.Equal(t, FallbackLocalIP, id.PublicIP(context.Background()))
	assert.Equal(t, int32(2), hits.Load(), "expired fallback is looked up again")
}

func TestNetworkIdentity_ConcurrentLookupsShareOneRound(t *testing.T) {
	var hits atomic.Int32
	slow := hangingServer(t, &hits)

	id := NewNetworkIdentity(200*time.Millisecond, []string{slow.URL})
	id.dial = failingDial

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = id.PublicIP(context.Background())
		}()
	}
	wg.Wait()

	for _, ip := range results {
		assert.Equal(t, FallbackLocalIP, ip)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestNetworkIdentity_CanceledCallerDoesNotWaitForLookups(t *testing.T) {
	var hits atomic.Int32
	slow := hangingServer(t, &hits)

	id := NewNetworkIdentity(2*time.Second, []string{slow.URL})
	id.dial = failingDial

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	ip := id.PublicIP(ctx)

	assert.Equal(t, FallbackLocalIP, ip)
	require.Less(t, time.Since(start), time.Second)
}

func TestNetworkIdentity_LocalIPFallback(t *testing.T) {
	id := NewNetworkIdentity(time.Second, []string{})
	id.dial = failingDial

	assert.Equal(t, FallbackLocalIP, id.LocalIP())
}

func TestNetworkIdentity_LocalIPFromRoute(t *testing.T) {
	id := NewNetworkIdentity(time.Second, []string{})
	id.dial = func(network, address string) (net.Conn, error) {
		assert.Equal(t, "udp", network)
		assert.Equal(t, localRouteAddr, address)
		return net.Dial("udp", "127.0.0.1:9")
	}

	assert.Equal(t, "127.0.0.1", id.LocalIP())
}

func TestStaticNetworkIdentity(t *testing.T) {
	id := StaticNetworkIdentity("10.1.1.1", "198.51.100.4")

	assert.Equal(t, "10.1.1.1", id.LocalIP())
	assert.Equal(t, "198.51.100.4", id.PublicIP(context.Background()))
}
