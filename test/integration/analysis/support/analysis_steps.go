package support

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/MeKo-Tech/leafcheck/internal/testutil"
	"github.com/MeKo-Tech/leafcheck/internal/utils"
	"github.com/cucumber/godog"
)

// RegisterAnalysisSteps registers the steps that drive the orchestrator
// directly.
func (tc *TestContext) RegisterAnalysisSteps(sc *godog.ScenarioContext) {
	// Given
	sc.Step(`^a tomato leaf photo named "([^"]*)"$`, tc.aLeafPhotoNamed)
	sc.Step(`^no photo$`, tc.noPhoto)
	sc.Step(`^the network is down$`, tc.theNetworkIsDown)
	sc.Step(`^the connectivity endpoint does not answer$`, tc.theProbeEndpointIsGone)
	sc.Step(`^the prediction service answers with label "([^"]*)" and confidence ([0-9.]+)$`, tc.serviceAnswersLabel)
	sc.Step(`^the prediction service answers with status (\d+)$`, tc.serviceAnswersStatus)
	sc.Step(`^the prediction service answers with an HTML page$`, tc.serviceAnswersHTML)
	sc.Step(`^the prediction service takes longer than (\d+)ms to answer$`, tc.serviceIsSlow)
	sc.Step(`^the prediction service drops the connection$`, tc.serviceDropsConnection)
	sc.Step(`^the on-device model sees "([^"]*)" with score ([0-9.]+)$`, tc.modelSees)
	sc.Step(`^the on-device model cannot be loaded$`, tc.modelCannotLoad)

	// When
	sc.Step(`^I analyze the photo$`, func() error { tc.Analyze(false); return nil })
	sc.Step(`^I analyze the photo offline$`, func() error { tc.Analyze(true); return nil })

	// Then
	sc.Step(`^the analysis should fail with "([^"]*)"$`, tc.analysisFailsWith)
	sc.Step(`^the diagnosis should come from the (online|offline) path$`, tc.diagnosisPath)
	sc.Step(`^the diagnosis should be marked offline$`, func() error { return tc.offlineFlag(true) })
	sc.Step(`^the diagnosis should not be marked offline$`, func() error { return tc.offlineFlag(false) })
	sc.Step(`^the diagnosis should report "([^"]*)"$`, tc.diagnosisReports)
	sc.Step(`^the leaf should be classified as "([^"]*)"$`, tc.leafVerdict)
	sc.Step(`^the health status should be "([^"]*)"$`, tc.healthStatus)
	sc.Step(`^the diagnosis should be valid$`, tc.diagnosisValid)
	sc.Step(`^the fallback reason should be "([^"]*)"$`, tc.fallbackReason)
	sc.Step(`^there should be no fallback reason$`, func() error { return tc.fallbackReason("") })
	sc.Step(`^a "([^"]*)" notice should be emitted$`, tc.noticeEmitted)
	sc.Step(`^the stages should be "([^"]*)"$`, tc.stagesAre)
	sc.Step(`^the prediction service should have been called (\d+) times?$`, tc.remoteCalled)
	sc.Step(`^the connectivity endpoint should not have been contacted$`, tc.probeNotContacted)
	sc.Step(`^the on-device model should not have been used$`, tc.modelNotUsed)
}

func (tc *TestContext) aLeafPhotoNamed(name string) error {
	data, err := utils.EncodeJPEG(testutil.LeafImage(testutil.SmallSize, true), 80)
	if err != nil {
		return fmt.Errorf("failed to build test photo: %w", err)
	}
	tc.Image = &orchestrator.Image{Name: name, Data: data}
	return nil
}

func (tc *TestContext) noPhoto() error {
	tc.Image = nil
	return nil
}

func (tc *TestContext) theNetworkIsDown() error {
	tc.NetworkUp = false
	return nil
}

func (tc *TestContext) theProbeEndpointIsGone() error {
	tc.ProbeServer.Close()
	return nil
}

func (tc *TestContext) serviceAnswersLabel(label, confidence string) error {
	if _, err := strconv.ParseFloat(confidence, 64); err != nil {
		return err
	}
	body := fmt.Sprintf(`{"label":%q,"confidence":%s}`, label, confidence)
	tc.SetRemoteHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	return nil
}

func (tc *TestContext) serviceAnswersStatus(status int) error {
	tc.SetRemoteHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error":"unavailable"}`)
	})
	return nil
}

func (tc *TestContext) serviceAnswersHTML() error {
	tc.SetRemoteHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>The service is waking up</html>")
	})
	return nil
}

func (tc *TestContext) serviceIsSlow(ms int) error {
	tc.RemoteTimeout = time.Duration(ms) * time.Millisecond
	tc.SetRemoteHandler(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(tc.RemoteTimeout * 10):
		}
	})
	return nil
}

func (tc *TestContext) serviceDropsConnection() error {
	tc.SetRemoteHandler(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	})
	return nil
}

func (tc *TestContext) modelSees(label, score string) error {
	s, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return err
	}
	tc.ModelLabels = diagnosis.Classification{{Label: label, Score: s}}
	return nil
}

func (tc *TestContext) modelCannotLoad() error {
	tc.ModelErr = errors.New("model file missing")
	return nil
}

func (tc *TestContext) requireResult() error {
	if tc.Err != nil {
		return fmt.Errorf("analysis failed: %w", tc.Err)
	}
	if tc.Result == nil {
		return errors.New("no analysis result")
	}
	return nil
}

func (tc *TestContext) analysisFailsWith(msg string) error {
	if tc.Err == nil {
		return errors.New("expected the analysis to fail")
	}
	if !strings.Contains(tc.Err.Error(), msg) {
		return fmt.Errorf("expected error containing %q, got %q", msg, tc.Err.Error())
	}
	return nil
}

func (tc *TestContext) diagnosisPath(path string) error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	if string(tc.Result.Path) != path {
		return fmt.Errorf("expected path %s, got %s", path, tc.Result.Path)
	}
	return nil
}

func (tc *TestContext) offlineFlag(want bool) error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	if tc.Result.Diagnosis.Offline != want {
		return fmt.Errorf("expected offline=%t, got %t", want, tc.Result.Diagnosis.Offline)
	}
	return nil
}

func (tc *TestContext) diagnosisReports(id string) error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	if !slices.Contains(tc.Result.Diagnosis.DiseasesDetected, diagnosis.DiseaseID(id)) {
		return fmt.Errorf("expected %s in %v", id, tc.Result.Diagnosis.DiseasesDetected)
	}
	return nil
}

func (tc *TestContext) leafVerdict(v string) error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	if string(tc.Result.Diagnosis.IsTomatoLeaf) != v {
		return fmt.Errorf("expected is_tomato_leaf %s, got %s", v, tc.Result.Diagnosis.IsTomatoLeaf)
	}
	return nil
}

func (tc *TestContext) healthStatus(s string) error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	if string(tc.Result.Diagnosis.HealthStatus) != s {
		return fmt.Errorf("expected health %s, got %s", s, tc.Result.Diagnosis.HealthStatus)
	}
	return nil
}

func (tc *TestContext) diagnosisValid() error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	return tc.Result.Diagnosis.Validate()
}

func (tc *TestContext) fallbackReason(reason string) error {
	if err := tc.requireResult(); err != nil {
		return err
	}
	if string(tc.Result.FallbackReason) != reason {
		return fmt.Errorf("expected fallback reason %q, got %q", reason, tc.Result.FallbackReason)
	}
	return nil
}

func (tc *TestContext) noticeEmitted(kind string) error {
	for _, n := range tc.Notices {
		if string(n.Kind) == kind {
			return nil
		}
	}
	return fmt.Errorf("no %s notice among %v", kind, tc.Notices)
}

func (tc *TestContext) stagesAre(list string) error {
	got := make([]string, len(tc.States))
	for i, s := range tc.States {
		got[i] = s.String()
	}
	want := strings.Split(list, ", ")
	if !slices.Equal(got, want) {
		return fmt.Errorf("expected stages %v, got %v", want, got)
	}
	return nil
}

func (tc *TestContext) remoteCalled(n int) error {
	if got := int(tc.RemoteCalls.Load()); got != n {
		return fmt.Errorf("expected %d prediction calls, got %d", n, got)
	}
	return nil
}

func (tc *TestContext) probeNotContacted() error {
	if got := tc.ProbeCalls.Load(); got != 0 {
		return fmt.Errorf("connectivity endpoint contacted %d times", got)
	}
	return nil
}

func (tc *TestContext) modelNotUsed() error {
	if got := tc.ModelCalls.Load(); got != 0 {
		return fmt.Errorf("on-device model used %d times", got)
	}
	return nil
}
