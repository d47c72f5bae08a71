package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/MeKo-Tech/leafcheck/internal/orchestrator"
	"github.com/MeKo-Tech/leafcheck/internal/server"
	"github.com/cucumber/godog"
)

// RegisterServerSteps registers the HTTP API steps.
func (tc *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the diagnosis server is running$`, tc.theServerIsRunning)
	sc.Step(`^I upload the photo to "([^"]*)"$`, func(path string) error { return tc.upload(path, nil) })
	sc.Step(`^I upload the photo to "([^"]*)" with force_offline "([^"]*)"$`, func(path, v string) error {
		return tc.upload(path, map[string]string{"force_offline": v})
	})
	sc.Step(`^I send a "([^"]*)" request to "([^"]*)"$`, tc.sendRequest)
	sc.Step(`^the response status should be (\d+)$`, tc.responseStatus)
	sc.Step(`^the response should contain "([^"]*)"$`, tc.responseContains)
	sc.Step(`^the response diagnosis should come from the (online|offline) path$`, tc.responsePath)
}

func (tc *TestContext) theServerIsRunning() error {
	srv, err := server.NewServer(server.Config{
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		TimeoutSec:  10,
	}, tc.Deps(), nil, tc.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	tc.APIServer = httptest.NewServer(srv.Handler())
	return nil
}

func (tc *TestContext) upload(path string, fields map[string]string) error {
	if tc.APIServer == nil {
		return fmt.Errorf("server is not running")
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if tc.Image != nil {
		part, err := w.CreateFormFile("image", tc.Image.Name)
		if err != nil {
			return err
		}
		if _, err := part.Write(tc.Image.Data); err != nil {
			return err
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.APIServer.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return tc.do(req)
}

func (tc *TestContext) sendRequest(method, path string) error {
	if tc.APIServer == nil {
		return fmt.Errorf("server is not running")
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.APIServer.URL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.APIServer.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	tc.LastStatusCode = resp.StatusCode
	tc.LastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) responseStatus(code int) error {
	if tc.LastStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, tc.LastStatusCode, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) responseContains(text string) error {
	if !strings.Contains(string(tc.LastBody), text) {
		return fmt.Errorf("response does not contain %q: %s", text, tc.LastBody)
	}
	return nil
}

func (tc *TestContext) responsePath(path string) error {
	var res orchestrator.Result
	if err := json.Unmarshal(tc.LastBody, &res); err != nil {
		return fmt.Errorf("invalid result JSON: %w", err)
	}
	if string(res.Path) != path {
		return fmt.Errorf("expected path %s, got %s", path, res.Path)
	}
	if res.Diagnosis.Offline != (path == string(orchestrator.PathOffline)) {
		return fmt.Errorf("offline flag %t does not match path %s", res.Diagnosis.Offline, path)
	}
	return nil
}
