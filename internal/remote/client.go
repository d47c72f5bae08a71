// Package remote calls the hosted tomato-leaf prediction service and
// normalises its answers into a Diagnosis.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/interpreter"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// Defaults for the prediction service.
const (
	DefaultURL        = "https://tomatoe-plant-disease-predictor.onrender.com/predict"
	DefaultFieldName  = "file"
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 1
	DefaultBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff = 2 * time.Second

	maxResponseBytes = 1 << 20
)

// Predictor produces a diagnosis from an uploaded image.
type Predictor interface {
	Predict(ctx context.Context, filename string, data []byte) (diagnosis.Diagnosis, error)
}

// Config configures the client.
type Config struct {
	URL        string
	FieldName  string
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		URL:        DefaultURL,
		FieldName:  DefaultFieldName,
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		Backoff:    DefaultBackoff,
		MaxBackoff: DefaultMaxBackoff,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("predict url is empty")
	}
	if c.FieldName == "" {
		return errors.New("field name is empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", c.Retries)
	}
	if c.Backoff < 0 || c.MaxBackoff < 0 {
		return errors.New("backoff must not be negative")
	}
	return nil
}

// Client is the HTTP Predictor.
type Client struct {
	cfg    Config
	http   *http.Client
	interp *interpreter.Interpreter
	logger *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithInterpreter sets the interpreter used to fill in guidance for
// label-only responses.
func WithInterpreter(in *interpreter.Interpreter) Option { return func(c *Client) { c.interp = in } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a Client. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.FieldName == "" {
		cfg.FieldName = def.FieldName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	c := &Client{cfg: cfg, http: &http.Client{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.interp == nil {
		c.interp = interpreter.Default()
	}
	return c
}

// Predict uploads the image and returns the normalised diagnosis. Failures
// are returned as *Error.
func (c *Client) Predict(ctx context.Context, filename string, data []byte) (diagnosis.Diagnosis, error) {
	body, contentType, err := encodeUpload(c.cfg.FieldName, filename, data)
	if err != nil {
		return diagnosis.Diagnosis{}, &Error{Reason: ReasonFormat, Err: err}
	}

	retry := c.retryPolicy(ctx)
	overall := timeout.With[diagnosis.Diagnosis](c.cfg.Timeout)

	start := time.Now()
	d, err := failsafe.NewExecutor[diagnosis.Diagnosis](overall, retry).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[diagnosis.Diagnosis]) (diagnosis.Diagnosis, error) {
			return c.post(exec.Context(), body, contentType)
		})
	if err != nil {
		err = classify(ctx, err)
		c.logger.Debug("remote prediction failed", "reason", ReasonOf(err), "duration", time.Since(start), "error", err)
		return diagnosis.Diagnosis{}, err
	}
	c.logger.Debug("remote prediction complete", "duration", time.Since(start))
	return d, nil
}

func (c *Client) retryPolicy(ctx context.Context) retrypolicy.RetryPolicy[diagnosis.Diagnosis] {
	b := retrypolicy.Builder[diagnosis.Diagnosis]().
		WithMaxRetries(c.cfg.Retries).
		HandleIf(func(_ diagnosis.Diagnosis, err error) bool {
			var rerr *Error
			return ctx.Err() == nil && errors.As(err, &rerr) && rerr.Retryable()
		}).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[diagnosis.Diagnosis]) {
			c.logger.Debug("retrying remote prediction", "attempt", e.Attempts(), "error", e.LastError())
		})
	switch {
	case c.cfg.Backoff > 0 && c.cfg.MaxBackoff > c.cfg.Backoff:
		b = b.WithBackoff(c.cfg.Backoff, c.cfg.MaxBackoff)
	case c.cfg.Backoff > 0:
		b = b.WithDelay(c.cfg.Backoff)
	}
	return b.Build()
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) (diagnosis.Diagnosis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return diagnosis.Diagnosis{}, &Error{Reason: ReasonNetwork, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return diagnosis.Diagnosis{}, &Error{Reason: transportReason(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return diagnosis.Diagnosis{}, &Error{
			Reason:     ReasonServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server responded with %s: %s", resp.Status, bytes.TrimSpace(snippet)),
		}
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return diagnosis.Diagnosis{}, &Error{
			Reason:     ReasonFormat,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return diagnosis.Diagnosis{}, &Error{Reason: transportReason(err), Err: fmt.Errorf("read response: %w", err)}
	}
	d, err := ParseResponse(raw, c.interp)
	if err != nil {
		return diagnosis.Diagnosis{}, &Error{Reason: ReasonFormat, StatusCode: resp.StatusCode, Err: err}
	}
	return d, nil
}

func encodeUpload(field, filename string, data []byte) ([]byte, string, error) {
	if filename == "" {
		filename = "image.jpg"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func transportReason(err error) Reason {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return ReasonTimeout
	}
	return ReasonNetwork
}

// classify turns whatever the executor returned into an *Error.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, timeout.ErrExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Reason: ReasonTimeout, Err: err}
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	return &Error{Reason: transportReason(err), Err: err}
}
