package watch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/updates"
)

func testResult() Result {
	return Result{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Trigger:   TriggerInterval,
		Updates: []updates.ImageUpdate{{
			Release:     "app",
			Environment: "prod",
			ImageRepo:   "gcr.io/proj/app",
			OldTag:      "1.0.0",
			NewTag:      "1.1.0",
			Reason:      `track=MinorVersion, "1.1.0" > "1.0.0"`,
		}},
		Failures: []updates.Failure{{Environment: "prod", Release: "db", Error: "registry down"}},
	}
}

func TestStdoutNotifier(t *testing.T) {
	var out bytes.Buffer
	notifier := &StdoutNotifier{out: &out, logger: zap.NewNop()}

	if err := notifier.Notify(testResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"2024-05-01T12:00:00Z poll (interval)",
		`env:prod release "app" image gcr.io/proj/app: 1.0.0 -> 1.1.0`,
		`env:prod release "db" failed: registry down`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q does not contain %q", got, want)
		}
	}
}

func TestWebhookNotifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", r.Header.Get("Content-Type"))
		}

		var result Result
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if len(result.Updates) != 1 || result.Updates[0].NewTag != "1.1.0" {
			t.Errorf("unexpected updates: %+v", result.Updates)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, zap.NewNop())
	if err := notifier.Notify(testResult()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWebhookNotifierError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, zap.NewNop())
	if err := notifier.Notify(testResult()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestFileNotifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.jsonl")
	notifier := NewFileNotifier(path, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := notifier.Notify(testResult()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open report: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var result Result
		if err := json.Unmarshal(scanner.Bytes(), &result); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		if result.Trigger != TriggerInterval {
			t.Errorf("expected trigger interval, got %s", result.Trigger)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}
