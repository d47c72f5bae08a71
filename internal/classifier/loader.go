package classifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"golang.org/x/sync/singleflight"
)

// Factory builds a Model from a spec. NewONNXModel is the production factory.
type Factory func(ModelSpec) (Model, error)

// InitHook observes every initialization attempt.
type InitHook func(model string, err error)

// Loader lazily initializes one Model and hands the same instance to every
// caller. Concurrent first callers share a single in-flight load; a failed
// load is not remembered, so the next call tries again.
type Loader struct {
	cfg     Config
	factory Factory
	logger  *slog.Logger
	onInit  InitHook

	group singleflight.Group
	mu    sync.RWMutex
	model Model
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithFactory replaces the model factory.
func WithFactory(f Factory) LoaderOption { return func(l *Loader) { l.factory = f } }

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption { return func(l *Loader) { l.logger = logger } }

// WithInitHook registers an observer for initialization attempts.
func WithInitHook(h InitHook) LoaderOption { return func(l *Loader) { l.onInit = h } }

// NewLoader creates a Loader. Nothing is loaded until first use.
func NewLoader(cfg Config, opts ...LoaderOption) *Loader {
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	l := &Loader{cfg: cfg, factory: NewONNXModel, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) current() Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.model
}

// Ready reports whether a model is loaded.
func (l *Loader) Ready() bool { return l.current() != nil }

// ModelName returns the loaded model name, or "" before initialization.
func (l *Loader) ModelName() string {
	if m := l.current(); m != nil {
		return m.Name()
	}
	return ""
}

// EnsureInitialized returns the loaded model, loading it if needed. A
// cancelled ctx stops the wait but not a load already in progress.
func (l *Loader) EnsureInitialized(ctx context.Context) (Model, error) {
	if m := l.current(); m != nil {
		return m, nil
	}

	ch := l.group.DoChan("init", func() (any, error) {
		if m := l.current(); m != nil {
			return m, nil
		}
		m, err := l.load()
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.model = m
		l.mu.Unlock()
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		m, _ := res.Val.(Model)
		return m, nil
	}
}

func (l *Loader) load() (Model, error) {
	primary := l.cfg.Primary
	primary.TopK = l.cfg.TopK
	m, perr := l.try(primary)
	if perr == nil {
		return m, nil
	}
	l.logger.Warn("primary classifier failed to load", "model", primary.Name, "error", perr)

	fallback := l.cfg.Fallback
	if fallback.ModelPath == "" {
		return nil, &InitError{Primary: perr}
	}
	fallback.TopK = l.cfg.TopK
	m, ferr := l.try(fallback)
	if ferr != nil {
		l.logger.Error("fallback classifier failed to load", "model", fallback.Name, "error", ferr)
		return nil, &InitError{Primary: perr, Fallback: ferr}
	}
	return m, nil
}

func (l *Loader) try(spec ModelSpec) (Model, error) {
	m, err := l.factory(spec)
	if l.onInit != nil {
		l.onInit(spec.Name, err)
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("factory returned no model")
	}
	l.logger.Info("classifier loaded", "model", m.Name())

	if w, ok := m.(interface{ Warmup() error }); ok && l.cfg.Warmup {
		if err := w.Warmup(); err != nil {
			l.logger.Warn("classifier warmup failed", "model", m.Name(), "error", err)
		}
	}
	return m, nil
}

// Classify runs the loaded model, initializing it first if necessary.
// Initialization failures are returned as *InitError, inference failures
// as *ClassificationError.
func (l *Loader) Classify(ctx context.Context, data []byte) (diagnosis.Classification, error) {
	m, err := l.EnsureInitialized(ctx)
	if err != nil {
		return nil, err
	}
	result, err := m.Classify(ctx, data)
	if err != nil {
		var cerr *ClassificationError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, &ClassificationError{Model: m.Name(), Err: err}
	}
	return result, nil
}

// Close releases the loaded model. A later call loads it again.
func (l *Loader) Close() error {
	l.mu.Lock()
	m := l.model
	l.model = nil
	l.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}
