// Package connectivity decides whether the remote inference server is worth
// trying. The answer is advisory: callers still fail over when the real
// request fails.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// Defaults for Probe.
const (
	DefaultMaxRetries     = 2
	DefaultAttemptTimeout = 3 * time.Second
	DefaultRetryDelay     = time.Second
)

// DefaultEndpoints are well-known hosts that answer HEAD requests quickly.
var DefaultEndpoints = []string{
	"https://www.google.com/generate_204",
	"https://www.cloudflare.com/cdn-cgi/trace",
	"https://www.apple.com/library/test/success.html",
}

// InterfaceChecker reports whether the host has any usable network link.
type InterfaceChecker interface {
	HasNetwork() bool
}

// SystemInterfaces checks the host's network interfaces.
type SystemInterfaces struct{}

// HasNetwork reports whether a non-loopback interface is up and has an address.
func (SystemInterfaces) HasNetwork() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// CheckerFunc adapts a function to InterfaceChecker.
type CheckerFunc func() bool

// HasNetwork calls f.
func (f CheckerFunc) HasNetwork() bool { return f() }

// Config configures a Prober.
type Config struct {
	Endpoints      []string
	MaxRetries     int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
}

// DefaultConfig returns the default probe configuration.
func DefaultConfig() Config {
	return Config{
		Endpoints:      append([]string(nil), DefaultEndpoints...),
		MaxRetries:     DefaultMaxRetries,
		AttemptTimeout: DefaultAttemptTimeout,
		RetryDelay:     DefaultRetryDelay,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("at least one probe endpoint is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.AttemptTimeout <= 0 {
		return errors.New("attempt_timeout must be positive")
	}
	if c.RetryDelay < 0 {
		return errors.New("retry_delay must not be negative")
	}
	return nil
}

// Prober runs connectivity checks.
type Prober struct {
	cfg     Config
	client  *http.Client
	checker InterfaceChecker
	logger  *slog.Logger
}

// Option customises a Prober.
type Option func(*Prober)

// WithHTTPClient sets the client used for HEAD requests.
func WithHTTPClient(c *http.Client) Option { return func(p *Prober) { p.client = c } }

// WithInterfaceChecker replaces the interface check.
func WithInterfaceChecker(c InterfaceChecker) Option { return func(p *Prober) { p.checker = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Prober) { p.logger = l } }

// New creates a Prober. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Prober {
	def := DefaultConfig()
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = def.Endpoints
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	p := &Prober{
		cfg: cfg,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		checker: SystemInterfaces{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Prober) Config() Config { return p.cfg }

// Reachable probes with the configured retry count and attempt timeout.
func (p *Prober) Reachable(ctx context.Context) bool {
	return p.Probe(ctx, p.cfg.MaxRetries, p.cfg.AttemptTimeout)
}

// Probe reports whether the internet looks reachable. It tries up to
// maxRetries+1 HEAD requests, rotating through the endpoints, each bounded
// by perAttemptTimeout. Any HTTP response counts as success. It never
// returns an error; cancellation of ctx yields false.
func (p *Prober) Probe(ctx context.Context, maxRetries int, perAttemptTimeout time.Duration) bool {
	if !p.checker.HasNetwork() {
		p.logger.Debug("no usable network interface")
		return false
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if perAttemptTimeout <= 0 {
		perAttemptTimeout = p.cfg.AttemptTimeout
	}

	retry := retrypolicy.Builder[bool]().
		WithMaxRetries(maxRetries).
		WithDelay(p.cfg.RetryDelay).
		HandleIf(func(_ bool, err error) bool {
			return err != nil && ctx.Err() == nil
		}).
		OnRetry(func(e failsafe.ExecutionEvent[bool]) {
			p.logger.Debug("connectivity probe retry", "attempt", e.Attempts(), "error", e.LastError())
		}).
		Build()
	attemptTimeout := timeout.With[bool](perAttemptTimeout)

	_, err := failsafe.NewExecutor[bool](retry, attemptTimeout).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[bool]) (bool, error) {
			endpoint := p.cfg.Endpoints[max(exec.Attempts()-1, 0)%len(p.cfg.Endpoints)]
			return true, p.head(exec.Context(), endpoint)
		})
	if err != nil {
		p.logger.Debug("connectivity probe failed", "error", err)
		return false
	}
	return true
}

func (p *Prober) head(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", endpoint, err)
	}
	_ = resp.Body.Close()
	return nil
}
