package support

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/classifier"
	"github.com/MeKo-Tech/leafcheck/internal/connectivity"
	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/interpreter"
	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/MeKo-Tech/leafcheck/internal/preprocess"
	"github.com/MeKo-Tech/leafcheck/internal/remote"
)

// TestContext holds the state of one scenario: fake network endpoints, the
// on-device model's behaviour, and the outcome of the last analysis.
type TestContext struct {
	// Network
	NetworkUp     bool
	ProbeServer   *httptest.Server
	RemoteServer  *httptest.Server
	RemoteTimeout time.Duration
	ProbeCalls    atomic.Int32
	RemoteCalls   atomic.Int32

	mu            sync.Mutex
	remoteHandler http.HandlerFunc

	// On-device model
	ModelLabels diagnosis.Classification
	ModelErr    error
	ModelCalls  atomic.Int32

	// Analysis state
	Image   *orchestrator.Image
	Result  *orchestrator.Result
	Err     error
	States  []orchestrator.State
	Notices []orchestrator.Notice

	// HTTP API state
	APIServer      *httptest.Server
	LastStatusCode int
	LastBody       []byte

	logger *slog.Logger
}

// NewTestContext starts the fake probe and prediction endpoints.
func NewTestContext() *TestContext {
	tc := &TestContext{
		NetworkUp:     true,
		RemoteTimeout: 2 * time.Second,
		ModelLabels:   diagnosis.Classification{{Label: "leaf", Score: 0.7}},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	tc.ProbeServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc.ProbeCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	tc.RemoteServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc.RemoteCalls.Add(1)
		tc.mu.Lock()
		h := tc.remoteHandler
		tc.mu.Unlock()
		if h == nil {
			http.Error(w, "no handler", http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}))
	return tc
}

// SetRemoteHandler replaces the prediction service behaviour.
func (tc *TestContext) SetRemoteHandler(h http.HandlerFunc) {
	tc.mu.Lock()
	tc.remoteHandler = h
	tc.mu.Unlock()
}

// Deps wires the real collaborators against the fake endpoints.
func (tc *TestContext) Deps() orchestrator.Deps {
	interp := interpreter.Default()

	prober := connectivity.New(connectivity.Config{
		Endpoints:      []string{tc.ProbeServer.URL},
		MaxRetries:     1,
		AttemptTimeout: 500 * time.Millisecond,
	},
		connectivity.WithInterfaceChecker(connectivity.CheckerFunc(func() bool { return tc.NetworkUp })),
		connectivity.WithLogger(tc.logger),
	)

	predictor := remote.New(remote.Config{
		URL:     tc.RemoteServer.URL + "/predict",
		Timeout: tc.RemoteTimeout,
		Retries: 0,
	}, remote.WithInterpreter(interp), remote.WithLogger(tc.logger))

	loader := classifier.NewLoader(classifier.Config{
		Primary: classifier.ModelSpec{Name: "stub", ModelPath: "stub.onnx"},
	},
		classifier.WithFactory(func(spec classifier.ModelSpec) (classifier.Model, error) {
			if tc.ModelErr != nil {
				return nil, tc.ModelErr
			}
			return &stubModel{tc: tc, name: spec.Name}, nil
		}),
		classifier.WithLogger(tc.logger),
	)

	return orchestrator.Deps{
		Prober:      prober,
		Predictor:   predictor,
		Preparer:    preprocess.New(preprocess.DefaultConfig(), tc.logger),
		Classifier:  loader,
		Interpreter: interp,
	}
}

// Analyze runs one analysis through a fresh session and records its
// outcome.
func (tc *TestContext) Analyze(forceOffline bool) {
	tc.States = nil
	tc.Notices = nil
	obs := orchestrator.ObserverFuncs{
		State:  func(s orchestrator.State) { tc.States = append(tc.States, s) },
		Notice: func(n orchestrator.Notice) { tc.Notices = append(tc.Notices, n) },
	}
	session, err := orchestrator.New(tc.Deps(), orchestrator.WithObserver(obs), orchestrator.WithLogger(tc.logger))
	if err != nil {
		tc.Err = err
		return
	}
	tc.Result, tc.Err = session.Analyze(context.Background(), tc.Image, forceOffline)
}

// Cleanup stops every server started by the scenario.
func (tc *TestContext) Cleanup() {
	for _, srv := range []*httptest.Server{tc.APIServer, tc.ProbeServer, tc.RemoteServer} {
		if srv != nil {
			srv.Close()
		}
	}
}

type stubModel struct {
	tc   *TestContext
	name string
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) Classify(context.Context, []byte) (diagnosis.Classification, error) {
	m.tc.ModelCalls.Add(1)
	if len(m.tc.ModelLabels) == 0 {
		return nil, errors.New("empty classification")
	}
	return m.tc.ModelLabels, nil
}

func (m *stubModel) Close() error { return nil }
