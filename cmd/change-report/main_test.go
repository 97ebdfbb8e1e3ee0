package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/wm-change-report/internal/testutil"
	"github.com/Sternrassler/wm-change-report/pkg/monitoring"
	"github.com/Sternrassler/wm-change-report/pkg/report"
)

func setupMockAPI(t *testing.T) *testutil.MockAPI {
	t.Helper()

	mock := testutil.NewMockAPI()
	t.Cleanup(mock.Close)

	mock.SetPaginated(monitoring.PagesPath,
		[]any{map[string]any{
			"uuid": "p1",
			"url":  "https://www.epa.gov/climate",
			"tags": []any{map[string]any{"name": "site:epa"}},
		}},
		[]any{map[string]any{
			"uuid": "p2",
			"url":  "https://www.noaa.gov",
			"tags": []any{map[string]any{"name": "site:noaa"}},
		}},
	)
	mock.SetPaginated(monitoring.VersionsPath, []any{
		map[string]any{
			"uuid":         "v2",
			"page_uuid":    "p1",
			"capture_time": "2024-03-05T10:00:00Z",
			"source_metadata": map[string]any{
				"diff_length": 12, "diff_hash": "s2", "text_diff_length": 3, "text_diff_hash": "t2",
			},
			"change_from_previous": map[string]any{"current_annotation": map[string]any{"priority": 0.5}},
		},
		map[string]any{
			"uuid":         "v1",
			"page_uuid":    "p2",
			"capture_time": "2024-03-04T10:00:00Z",
			"source_metadata": map[string]any{
				"error_code": 404,
			},
		},
	})
	return mock
}

func writeTestConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()

	path := filepath.Join(dir, "change-report.yaml")
	body := fmt.Sprintf(`
api:
  base_url: %s
retry:
  max_retries: 0
groups:
  prefixes: ["site:"]
cache:
  path: %s
  debounce: 1h
log:
  level: error
`, baseURL, filepath.Join(dir, "cache.json"))
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestRootCmd_WritesReport(t *testing.T) {
	mock := setupMockAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, mock.URL())
	outPath := filepath.Join(dir, "report.json")
	metricsPath := filepath.Join(dir, "wm.prom")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--config", cfgPath,
		"--from", "2024-03-01",
		"--to", "2024-03-08",
		"--out", outPath,
		"--metrics-file", metricsPath,
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}

	var decoded struct {
		Window     monitoring.Window          `json:"window"`
		Groups     map[string]json.RawMessage `json:"groups"`
		PageCount  int                        `json:"page_count"`
		GroupCount int                        `json:"group_count"`
		Duration   string                     `json:"duration"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if decoded.PageCount != 2 {
		t.Errorf("page_count = %d, want 2", decoded.PageCount)
	}
	for _, group := range []string{"epa", "errors"} {
		if _, ok := decoded.Groups[group]; !ok {
			t.Errorf("missing group %q in %v", group, decoded.Groups)
		}
	}
	if got := decoded.Window.String(); got != "2024-03-01T00:00:00Z..2024-03-08T00:00:00Z" {
		t.Errorf("window = %s", got)
	}

	// The run cache is gone once the run is over
	if _, err := os.Stat(filepath.Join(dir, "cache.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cache file still present: %v", err)
	}

	metricsText, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(metricsText), "wm_report_runs_total") {
		t.Error("metrics textfile lacks wm_report_runs_total")
	}
}

func TestRootCmd_Stdout(t *testing.T) {
	mock := setupMockAPI(t)
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, mock.URL())

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--config", cfgPath, "--to", "2024-03-08", "--days", "10"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !strings.Contains(stdout.String(), `"page_count": 2`) {
		t.Errorf("unexpected stdout: %s", stdout.String())
	}

	log := strings.Join(mock.GetRequestLog(), "\n")
	if !strings.Contains(log, "capture_time=2024-02-27T00%3A00%3A00Z..2024-03-08T00%3A00%3A00Z") {
		t.Errorf("window not derived from --days: %s", log)
	}
}

func TestRootCmd_APIFailure(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse(monitoring.PagesPath, testutil.NewErrorResponse(http.StatusForbidden, "Forbidden"))
	mock.SetPaginated(monitoring.VersionsPath)

	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir, mock.URL())

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "--from", "2024-03-01", "--to", "2024-03-08"})

	err := cmd.Execute()
	var fatal *report.FatalAggregationError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *report.FatalAggregationError, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "cache.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cache file left behind after failure: %v", err)
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte("cache:\n  backend: s3\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("expected cache.backend validation error, got %v", err)
	}
}
