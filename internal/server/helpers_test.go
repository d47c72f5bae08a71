package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/interpreter"
	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/MeKo-Tech/leafcheck/internal/preprocess"
	"github.com/stretchr/testify/require"
)

type stubProber struct{ reachable bool }

func (p stubProber) Reachable(context.Context) bool { return p.reachable }

type stubPredictor struct {
	calls atomic.Int32
	err   error
}

func (p *stubPredictor) Predict(context.Context, string, []byte) (diagnosis.Diagnosis, error) {
	p.calls.Add(1)
	if p.err != nil {
		return diagnosis.Diagnosis{}, p.err
	}
	return diagnosis.Diagnosis{
		IsTomatoLeaf:     diagnosis.Tomato,
		ConfidenceScore:  0.88,
		HealthStatus:     diagnosis.Diseased,
		DiseasesDetected: []diagnosis.DiseaseID{diagnosis.EarlyBlight},
		SeverityLevel:    diagnosis.Moderate.Ptr(),
	}, nil
}

type passthroughPreparer struct{}

func (passthroughPreparer) Prepare(_ string, data []byte) preprocess.Handle {
	return preprocess.Handle{Data: data}
}

// stubClassifier optionally blocks until release is closed.
type stubClassifier struct {
	release chan struct{}
	started chan struct{}
	ready   bool
}

func (c *stubClassifier) Classify(context.Context, []byte) (diagnosis.Classification, error) {
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	return diagnosis.Classification{{Label: "leaf", Score: 0.7}}, nil
}

func (c *stubClassifier) Ready() bool       { return c.ready }
func (c *stubClassifier) ModelName() string { return "mobilenetv3_small_100" }

type testEnv struct {
	server     *Server
	predictor  *stubPredictor
	classifier *stubClassifier
}

func newTestEnv(t *testing.T, reachable bool, mutate func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{predictor: &stubPredictor{}, classifier: &stubClassifier{ready: true}}
	cfg := Config{CORSOrigin: "*", MaxUploadMB: 5, TimeoutSec: 10}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg, orchestrator.Deps{
		Prober:      stubProber{reachable: reachable},
		Predictor:   env.predictor,
		Preparer:    passthroughPreparer{},
		Classifier:  env.classifier,
		Interpreter: interpreter.Default(),
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	env.server = srv
	return env
}

// uploadRequest builds a multipart POST /analyze request. A nil image
// omits the file part.
func uploadRequest(t *testing.T, filename string, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if image != nil {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
