// Package orchestrator runs one leaf analysis end to end. It prefers the
// remote prediction service and falls back to on-device inference when the
// network is unavailable or the service fails, so a caller always receives
// a diagnosis for a non-empty image.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/preprocess"
	"github.com/MeKo-Tech/leafcheck/internal/remote"
	"github.com/google/uuid"
)

// Prober reports whether the remote service is worth trying.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Preparer shrinks images before local inference.
type Preparer interface {
	Prepare(name string, data []byte) preprocess.Handle
}

// Classifier runs the on-device model.
type Classifier interface {
	Classify(ctx context.Context, data []byte) (diagnosis.Classification, error)
}

// Interpreter turns classifier output into a diagnosis.
type Interpreter interface {
	Interpret(result diagnosis.Classification, filename string) diagnosis.Diagnosis
}

// Deps are the collaborators of an Orchestrator. All are required.
type Deps struct {
	Prober      Prober
	Predictor   remote.Predictor
	Preparer    Preparer
	Classifier  Classifier
	Interpreter Interpreter
}

func (d Deps) validate() error {
	switch {
	case d.Prober == nil:
		return errors.New("orchestrator: prober is required")
	case d.Predictor == nil:
		return errors.New("orchestrator: predictor is required")
	case d.Preparer == nil:
		return errors.New("orchestrator: preparer is required")
	case d.Classifier == nil:
		return errors.New("orchestrator: classifier is required")
	case d.Interpreter == nil:
		return errors.New("orchestrator: interpreter is required")
	}
	return nil
}

// Orchestrator is an analysis session. It runs at most one analysis at a
// time; the collaborators may be shared between sessions.
type Orchestrator struct {
	deps     Deps
	observer Observer
	logger   *slog.Logger

	busy  atomic.Bool
	state atomic.Int32
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for state changes and notices.
func WithObserver(o Observer) Option { return func(or *Orchestrator) { or.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(or *Orchestrator) { or.logger = l } }

// New creates a session.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{deps: deps, observer: NoOpObserver{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the current stage of the session.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// analysis carries the per-call bookkeeping.
type analysis struct {
	o       *Orchestrator
	res     *Result
	current State
	entered time.Time
}

func (a *analysis) enter(s State) {
	if a.current != Idle {
		observeStage(a.current, a.entered)
	}
	a.current, a.entered = s, time.Now()
	a.o.state.Store(int32(s))
	a.o.observer.OnState(s)
}

func (a *analysis) notify(n Notice) {
	a.res.Notices = append(a.res.Notices, n)
	a.o.observer.OnNotice(n)
}

// Analyze diagnoses img. Only a missing image (ErrNoImage) or a concurrent
// call on the same session (ErrBusy) fail; every other problem is absorbed
// by falling back to on-device inference or, as a last resort, a generic
// diagnosis. Cancelling ctx abandons the probe and the remote call but not
// local inference once it has started.
func (o *Orchestrator) Analyze(ctx context.Context, img *Image, forceOffline bool) (*Result, error) {
	if img.Size() == 0 {
		return nil, ErrNoImage
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	start := time.Now()
	a := &analysis{o: o, res: &Result{ID: uuid.NewString(), Notices: []Notice{}}}
	logger := o.logger.With("analysis_id", a.res.ID, "image", img.Name, "bytes", img.Size())

	a.enter(Uploading)
	switch {
	case forceOffline:
		logger.Debug("offline analysis requested")
		o.runLocal(ctx, a, img, logger)
	default:
		a.enter(Probing)
		if !o.deps.Prober.Reachable(ctx) {
			probeOutcomes.WithLabelValues("unreachable").Inc()
			fallbacksTotal.WithLabelValues("no_connectivity").Inc()
			logger.Info("no connectivity, analyzing on device")
			a.notify(noConnectivityNotice())
			o.runLocal(ctx, a, img, logger)
			break
		}
		probeOutcomes.WithLabelValues("reachable").Inc()
		if !o.runRemote(ctx, a, img, logger) {
			o.runLocal(ctx, a, img, logger)
		}
	}

	a.enter(Complete)
	a.res.Duration = time.Since(start)
	logger.Info("analysis complete",
		"path", a.res.Path,
		"health", a.res.Diagnosis.HealthStatus,
		"duration", a.res.Duration)
	return a.res, nil
}

func (o *Orchestrator) runRemote(ctx context.Context, a *analysis, img *Image, logger *slog.Logger) bool {
	a.enter(RemoteCall)
	d, err := o.deps.Predictor.Predict(ctx, img.Name, img.Data)
	if err == nil {
		if verr := d.Validate(); verr != nil {
			err = &remote.Error{Reason: remote.ReasonFormat, Err: verr}
		}
	}
	if err != nil {
		reason := remote.ReasonOf(err)
		a.res.FallbackReason = reason
		fallbacksTotal.WithLabelValues(string(reason)).Inc()
		logger.Warn("remote prediction failed, switching to on-device analysis", "reason", reason, "error", err)
		a.notify(switchingNotice(reason))
		return false
	}

	d.Offline = false
	d.Normalize()
	a.res.Diagnosis = d
	a.res.Path = PathOnline
	analysesTotal.WithLabelValues(string(PathOnline), "ok").Inc()
	a.notify(completeNotice(PathOnline, d.ConfidenceScore))
	return true
}

func (o *Orchestrator) runLocal(ctx context.Context, a *analysis, img *Image, logger *slog.Logger) {
	a.enter(LocalInference)
	a.res.Path = PathOffline

	d, err := o.diagnoseLocally(ctx, img)
	if err != nil {
		logger.Error("on-device analysis failed, using last-resort diagnosis", "error", err)
		d = LastResort()
		d.Offline = true
		a.res.Diagnosis = d
		analysesTotal.WithLabelValues(string(PathOffline), "degraded").Inc()
		a.notify(degradedNotice())
		return
	}

	d.Offline = true
	a.res.Diagnosis = d
	analysesTotal.WithLabelValues(string(PathOffline), "ok").Inc()
	a.notify(completeNotice(PathOffline, d.ConfidenceScore))
}

// diagnoseLocally runs preparation, the on-device classifier and the
// interpreter. A panic in any of them is returned as an error.
func (o *Orchestrator) diagnoseLocally(ctx context.Context, img *Image) (d diagnosis.Diagnosis, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = diagnosis.Diagnosis{}
			err = fmt.Errorf("on-device analysis panicked: %v", r)
		}
	}()

	handle := o.deps.Preparer.Prepare(img.Name, img.Data)
	result, err := o.deps.Classifier.Classify(context.WithoutCancel(ctx), handle.Data)
	if err != nil {
		return diagnosis.Diagnosis{}, err
	}
	d = o.deps.Interpreter.Interpret(result, img.Name)
	if err := d.Validate(); err != nil {
		return diagnosis.Diagnosis{}, err
	}
	return d, nil
}
