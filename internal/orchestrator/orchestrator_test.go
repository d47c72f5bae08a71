package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/interpreter"
	"github.com/MeKo-Tech/leafcheck/internal/preprocess"
	"github.com/MeKo-Tech/leafcheck/internal/remote"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	reachable bool
	calls     atomic.Int32
}

func (p *fakeProber) Reachable(context.Context) bool {
	p.calls.Add(1)
	return p.reachable
}

type fakePredictor struct {
	fn    func(ctx context.Context) (diagnosis.Diagnosis, error)
	calls atomic.Int32
}

func (p *fakePredictor) Predict(ctx context.Context, _ string, _ []byte) (diagnosis.Diagnosis, error) {
	p.calls.Add(1)
	return p.fn(ctx)
}

type fakePreparer struct {
	mu    sync.Mutex
	names []string
}

func (p *fakePreparer) Prepare(name string, data []byte) preprocess.Handle {
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()
	return preprocess.Handle{Data: append([]byte("prepared:"), data...)}
}

type fakeClassifier struct {
	fn    func(ctx context.Context, data []byte) (diagnosis.Classification, error)
	calls atomic.Int32
}

func (c *fakeClassifier) Classify(ctx context.Context, data []byte) (diagnosis.Classification, error) {
	c.calls.Add(1)
	return c.fn(ctx, data)
}

type recorder struct {
	mu      sync.Mutex
	states  []State
	notices []NoticeKind
}

func (r *recorder) OnState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnNotice(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n.Kind)
}

func remoteDiagnosis() diagnosis.Diagnosis {
	return diagnosis.Diagnosis{
		IsTomatoLeaf:     diagnosis.Tomato,
		ConfidenceScore:  0.91,
		HealthStatus:     diagnosis.Diseased,
		DiseasesDetected: []diagnosis.DiseaseID{diagnosis.LateBlight},
		SeverityLevel:    diagnosis.Severe.Ptr(),
		Offline:          true,
	}
}

func leafClassification(context.Context, []byte) (diagnosis.Classification, error) {
	return diagnosis.Classification{{Label: "leaf", Score: 0.6}}, nil
}

type harness struct {
	prober     *fakeProber
	predictor  *fakePredictor
	preparer   *fakePreparer
	classifier *fakeClassifier
	rec        *recorder
	orch       *Orchestrator
}

func newHarness(t *testing.T, reachable bool) *harness {
	t.Helper()
	h := &harness{
		prober: &fakeProber{reachable: reachable},
		predictor: &fakePredictor{fn: func(context.Context) (diagnosis.Diagnosis, error) {
			return remoteDiagnosis(), nil
		}},
		preparer:   &fakePreparer{},
		classifier: &fakeClassifier{fn: leafClassification},
		rec:        &recorder{},
	}
	orch, err := New(Deps{
		Prober:      h.prober,
		Predictor:   h.predictor,
		Preparer:    h.preparer,
		Classifier:  h.classifier,
		Interpreter: interpreter.Default(),
	}, WithObserver(h.rec))
	require.NoError(t, err)
	h.orch = orch
	return h
}

func leafImage() *Image { return &Image{Name: "tomato_leaf.jpg", Data: []byte("jpeg")} }

func TestAnalyze_NoImage(t *testing.T) {
	h := newHarness(t, true)

	for _, img := range []*Image{nil, {Name: "x.jpg"}, {Name: "y.jpg", Data: []byte{}}} {
		res, err := h.orch.Analyze(context.Background(), img, false)
		assert.ErrorIs(t, err, ErrNoImage)
		assert.Nil(t, res)
	}
	assert.Equal(t, Idle, h.orch.State())
	assert.Empty(t, h.rec.states)
	assert.Zero(t, h.prober.calls.Load())
	assert.Zero(t, h.classifier.calls.Load())
}

func TestAnalyze_ForceOfflineSkipsNetwork(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.orch.Analyze(context.Background(), leafImage(), true)
	require.NoError(t, err)

	assert.Zero(t, h.prober.calls.Load())
	assert.Zero(t, h.predictor.calls.Load())
	assert.Equal(t, int32(1), h.classifier.calls.Load())
	assert.Equal(t, PathOffline, res.Path)
	assert.True(t, res.Diagnosis.Offline)
	assert.Empty(t, res.FallbackReason)
	assert.Equal(t, []State{Uploading, LocalInference, Complete}, h.rec.states)
	assert.Equal(t, []NoticeKind{NoticeCompleteOffline}, h.rec.notices)
	assert.Equal(t, Complete, h.orch.State())
	require.NoError(t, res.Diagnosis.Validate())
}

func TestAnalyze_NoConnectivity(t *testing.T) {
	h := newHarness(t, false)

	res, err := h.orch.Analyze(context.Background(), leafImage(), false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.prober.calls.Load())
	assert.Zero(t, h.predictor.calls.Load())
	assert.Equal(t, PathOffline, res.Path)
	assert.True(t, res.Diagnosis.Offline)
	assert.Equal(t, []State{Uploading, Probing, LocalInference, Complete}, h.rec.states)
	assert.Equal(t, []NoticeKind{NoticeOfflineNoConnectivity, NoticeCompleteOffline}, h.rec.notices)
}

func TestAnalyze_RemoteSuccess(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.orch.Analyze(context.Background(), leafImage(), false)
	require.NoError(t, err)

	assert.Equal(t, PathOnline, res.Path)
	assert.False(t, res.Diagnosis.Offline, "remote diagnoses are never marked offline")
	assert.Equal(t, []diagnosis.DiseaseID{diagnosis.LateBlight}, res.Diagnosis.DiseasesDetected)
	assert.NotNil(t, res.Diagnosis.SymptomsObserved)
	assert.Zero(t, h.classifier.calls.Load())
	assert.Equal(t, []State{Uploading, Probing, RemoteCall, Complete}, h.rec.states)
	assert.Equal(t, []NoticeKind{NoticeCompleteOnline}, h.rec.notices)
	assert.Contains(t, res.Notices[0].Message, "91%")
	assert.NotEmpty(t, res.ID)
	assert.Positive(t, res.Duration)
}

func TestAnalyze_RemoteFailureFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason remote.Reason
	}{
		{"timeout", &remote.Error{Reason: remote.ReasonTimeout, Err: context.DeadlineExceeded}, remote.ReasonTimeout},
		{"network", &remote.Error{Reason: remote.ReasonNetwork, Err: errors.New("refused")}, remote.ReasonNetwork},
		{"server", &remote.Error{Reason: remote.ReasonServer, StatusCode: 502, Err: errors.New("bad gateway")}, remote.ReasonServer},
		{"format", &remote.Error{Reason: remote.ReasonFormat, Err: errors.New("html")}, remote.ReasonFormat},
		{"unclassified", errors.New("boom"), remote.ReasonNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			h.predictor.fn = func(context.Context) (diagnosis.Diagnosis, error) { return diagnosis.Diagnosis{}, tt.err }
			before := promtest.ToFloat64(fallbacksTotal.WithLabelValues(string(tt.reason)))

			res, err := h.orch.Analyze(context.Background(), leafImage(), false)
			require.NoError(t, err)

			assert.Equal(t, tt.reason, res.FallbackReason)
			assert.Equal(t, PathOffline, res.Path)
			assert.True(t, res.Diagnosis.Offline)
			assert.Equal(t, int32(1), h.classifier.calls.Load())
			assert.Equal(t, []State{Uploading, Probing, RemoteCall, LocalInference, Complete}, h.rec.states)
			assert.Equal(t, []NoticeKind{NoticeSwitchingOffline, NoticeCompleteOffline}, h.rec.notices)
			assert.Equal(t, tt.reason, res.Notices[0].Reason)
			assert.InDelta(t, before+1, promtest.ToFloat64(fallbacksTotal.WithLabelValues(string(tt.reason))), 1e-9)
		})
	}
}

func TestAnalyze_DistinctFallbackMessages(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range []remote.Reason{remote.ReasonTimeout, remote.ReasonNetwork, remote.ReasonServer, remote.ReasonFormat} {
		msg := switchingNotice(r).Message
		assert.False(t, seen[msg], "duplicate message for %s", r)
		seen[msg] = true
	}
}

func TestAnalyze_InvalidRemoteDiagnosisIsFormatFailure(t *testing.T) {
	h := newHarness(t, true)
	h.predictor.fn = func(context.Context) (diagnosis.Diagnosis, error) {
		return diagnosis.Diagnosis{IsTomatoLeaf: diagnosis.Tomato, HealthStatus: diagnosis.Diseased, ConfidenceScore: 0.9}, nil
	}

	res, err := h.orch.Analyze(context.Background(), leafImage(), false)
	require.NoError(t, err)
	assert.Equal(t, remote.ReasonFormat, res.FallbackReason)
	assert.Equal(t, PathOffline, res.Path)
}

func TestAnalyze_LocalFailureUsesLastResort(t *testing.T) {
	h := newHarness(t, false)
	h.classifier.fn = func(context.Context, []byte) (diagnosis.Classification, error) {
		return nil, errors.New("model missing")
	}

	res, err := h.orch.Analyze(context.Background(), leafImage(), false)
	require.NoError(t, err)

	d := res.Diagnosis
	require.NoError(t, d.Validate())
	assert.True(t, d.Offline)
	assert.Equal(t, diagnosis.Diseased, d.HealthStatus)
	assert.Equal(t, []diagnosis.DiseaseID{diagnosis.Other}, d.DiseasesDetected)
	assert.Equal(t, diagnosis.Mild, d.Severity())
	assert.InDelta(t, LastResortConfidence, d.ConfidenceScore, 1e-9)
	assert.Contains(t, d.AdditionalNotes, "reduced certainty")
	assert.Equal(t, []NoticeKind{NoticeOfflineNoConnectivity, NoticeDegraded}, h.rec.notices)
	assert.Equal(t, Complete, h.orch.State())
}

func TestAnalyze_PanickingClassifierUsesLastResort(t *testing.T) {
	h := newHarness(t, true)
	h.classifier.fn = func(context.Context, []byte) (diagnosis.Classification, error) {
		panic("tensor shape mismatch")
	}

	res, err := h.orch.Analyze(context.Background(), leafImage(), true)
	require.NoError(t, err)

	assert.Equal(t, PathOffline, res.Path)
	require.NoError(t, res.Diagnosis.Validate())
	assert.True(t, res.Diagnosis.Offline)
	assert.Equal(t, LastResortNote, res.Diagnosis.AdditionalNotes)
	assert.Contains(t, h.rec.notices, NoticeDegraded)
	assert.Equal(t, Complete, h.orch.State())

	// The orchestrator is usable again after the panic.
	h.classifier.fn = leafClassification
	res, err = h.orch.Analyze(context.Background(), leafImage(), true)
	require.NoError(t, err)
	assert.NotEqual(t, LastResortNote, res.Diagnosis.AdditionalNotes)
}

type brokenInterpreter struct{}

func (brokenInterpreter) Interpret(diagnosis.Classification, string) diagnosis.Diagnosis {
	return diagnosis.Diagnosis{IsTomatoLeaf: diagnosis.Tomato, HealthStatus: diagnosis.Healthy}
}

func TestAnalyze_InvalidLocalDiagnosisUsesLastResort(t *testing.T) {
	orch, err := New(Deps{
		Prober:      &fakeProber{},
		Predictor:   &fakePredictor{},
		Preparer:    &fakePreparer{},
		Classifier:  &fakeClassifier{fn: leafClassification},
		Interpreter: brokenInterpreter{},
	})
	require.NoError(t, err)

	res, err := orch.Analyze(context.Background(), leafImage(), true)
	require.NoError(t, err)
	assert.Equal(t, LastResortNote, res.Diagnosis.AdditionalNotes)
}

func TestAnalyze_PreparedBytesReachClassifier(t *testing.T) {
	h := newHarness(t, true)
	var got []byte
	h.classifier.fn = func(_ context.Context, data []byte) (diagnosis.Classification, error) {
		got = data
		return leafClassification(context.Background(), nil)
	}

	_, err := h.orch.Analyze(context.Background(), leafImage(), true)
	require.NoError(t, err)
	assert.Equal(t, []byte("prepared:jpeg"), got)
	assert.Equal(t, []string{"tomato_leaf.jpg"}, h.preparer.names)
}

func TestAnalyze_ConcurrentCallIsRejected(t *testing.T) {
	h := newHarness(t, true)
	started := make(chan struct{})
	release := make(chan struct{})
	h.classifier.fn = func(context.Context, []byte) (diagnosis.Classification, error) {
		close(started)
		<-release
		return leafClassification(context.Background(), nil)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Analyze(context.Background(), leafImage(), true)
		done <- err
	}()
	<-started

	_, err := h.orch.Analyze(context.Background(), leafImage(), true)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, LocalInference, h.orch.State())

	close(release)
	require.NoError(t, <-done)

	h.classifier.fn = leafClassification
	_, err = h.orch.Analyze(context.Background(), leafImage(), true)
	assert.NoError(t, err)
}

func TestAnalyze_CancelledRemoteStillCompletesLocally(t *testing.T) {
	h := newHarness(t, true)
	h.predictor.fn = func(ctx context.Context) (diagnosis.Diagnosis, error) {
		<-ctx.Done()
		return diagnosis.Diagnosis{}, &remote.Error{Reason: remote.ReasonNetwork, Err: ctx.Err()}
	}
	var classifyCtxErr error
	h.classifier.fn = func(ctx context.Context, _ []byte) (diagnosis.Classification, error) {
		classifyCtxErr = ctx.Err()
		return leafClassification(context.Background(), nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := h.orch.Analyze(ctx, leafImage(), false)
	require.NoError(t, err)
	assert.Equal(t, PathOffline, res.Path)
	assert.NoError(t, classifyCtxErr, "local inference must not see the cancellation")
}

func TestAnalyze_UniqueIDs(t *testing.T) {
	h := newHarness(t, true)
	a, err := h.orch.Analyze(context.Background(), leafImage(), false)
	require.NoError(t, err)
	b, err := h.orch.Analyze(context.Background(), leafImage(), false)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestLastResortIsValid(t *testing.T) {
	d := LastResort()
	require.NoError(t, d.Validate())
	assert.False(t, d.Offline)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "remote_call", RemoteCall.String())
	assert.Equal(t, "unknown", State(42).String())
	text, err := LocalInference.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "local_inference", string(text))
}

func TestRecordClassifierInit(t *testing.T) {
	before := promtest.ToFloat64(classifierInits.WithLabelValues("test-model", "error"))
	RecordClassifierInit("test-model", errors.New("x"))
	RecordClassifierInit("test-model", nil)
	assert.InDelta(t, before+1, promtest.ToFloat64(classifierInits.WithLabelValues("test-model", "error")), 1e-9)
}
