package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func online() Option  { return WithInterfaceChecker(CheckerFunc(func() bool { return true })) }
func offline() Option { return WithInterfaceChecker(CheckerFunc(func() bool { return false })) }

func fastConfig(endpoints ...string) Config {
	return Config{Endpoints: endpoints, MaxRetries: 2, AttemptTimeout: 200 * time.Millisecond, RetryDelay: 5 * time.Millisecond}
}

func TestProbe_AnyResponseIsReachable(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusServiceUnavailable} {
		var methods []string
		var mu sync.Mutex
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			methods = append(methods, r.Method)
			mu.Unlock()
			w.WriteHeader(status)
		}))

		p := New(fastConfig(srv.URL), online())
		assert.True(t, p.Probe(context.Background(), 2, time.Second), "status %d", status)
		mu.Lock()
		assert.Equal(t, []string{http.MethodHead}, methods)
		mu.Unlock()
		srv.Close()
	}
}

func TestProbe_NoInterfaceSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	p := New(fastConfig(srv.URL), offline())
	assert.False(t, p.Probe(context.Background(), 2, time.Second))
	assert.Zero(t, hits.Load())
}

func TestProbe_RetriesRotateEndpoints(t *testing.T) {
	var hits atomic.Int32
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer good.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	p := New(fastConfig(deadURL, good.URL), online())
	assert.True(t, p.Probe(context.Background(), 2, time.Second))
	assert.Equal(t, int32(1), hits.Load())
}

func TestProbe_ExhaustedRetries(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	p := New(fastConfig(deadURL), online())
	assert.False(t, p.Probe(context.Background(), 1, 100*time.Millisecond))
}

func TestProbe_AttemptTimeout(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	p := New(fastConfig(slow.URL), online())
	start := time.Now()
	assert.False(t, p.Probe(context.Background(), 1, 50*time.Millisecond))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestProbe_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(fastConfig(srv.URL), online())
	assert.False(t, p.Probe(ctx, 2, time.Second))
}

func TestProbe_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	p := New(fastConfig(srv.URL), online())
	assert.True(t, p.Reachable(context.Background()))
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{MaxRetries: -1, RetryDelay: -1})
	cfg := p.Config()
	assert.Equal(t, DefaultEndpoints, cfg.Endpoints)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultAttemptTimeout, cfg.AttemptTimeout)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"no endpoints", func(c *Config) { c.Endpoints = nil }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero timeout", func(c *Config) { c.AttemptTimeout = 0 }},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSystemInterfaces(t *testing.T) {
	// Result depends on the host; it must simply not panic.
	_ = SystemInterfaces{}.HasNetwork()
}
