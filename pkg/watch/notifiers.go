package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// StdoutNotifier prints results in a human readable form.
type StdoutNotifier struct {
	out    io.Writer
	logger *zap.Logger
}

// NewStdoutNotifier creates a notifier writing to os.Stdout.
func NewStdoutNotifier(logger *zap.Logger) *StdoutNotifier {
	return &StdoutNotifier{out: os.Stdout, logger: logger}
}

// Notify prints the result.
func (n *StdoutNotifier) Notify(result Result) error {
	fmt.Fprintf(n.out, "%s poll (%s)", result.Timestamp.Format(time.RFC3339), result.Trigger)
	if result.File != "" {
		fmt.Fprintf(n.out, " after change to %s", result.File)
	}
	fmt.Fprintln(n.out)
	if result.Error != "" {
		fmt.Fprintf(n.out, "  error: %s\n", result.Error)
	}
	for _, u := range result.Updates {
		fmt.Fprintf(n.out, "  env:%s release %q image %s: %s -> %s (%s)\n",
			u.Environment, u.Release, u.ImageRepo, u.OldTag, u.NewTag, u.Reason)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(n.out, "  env:%s release %q failed: %s\n", f.Environment, f.Release, f.Error)
	}

	n.logger.Info("poll result",
		zap.String("trigger", string(result.Trigger)),
		zap.Int("updates", len(result.Updates)),
		zap.Int("failures", len(result.Failures)))
	return nil
}

// WebhookNotifier posts results as JSON to a URL.
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(webhookURL string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Notify posts the result.
func (n *WebhookNotifier) Notify(result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal poll result: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	n.logger.Debug("webhook notification sent",
		zap.String("url", n.webhookURL),
		zap.Int("statusCode", resp.StatusCode))
	return nil
}

// FileNotifier appends results to a file, one JSON document per line.
type FileNotifier struct {
	filePath string
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewFileNotifier creates a file notifier.
func NewFileNotifier(filePath string, logger *zap.Logger) *FileNotifier {
	return &FileNotifier{filePath: filePath, logger: logger}
}

// Notify appends the result to the file.
func (n *FileNotifier) Notify(result Result) error {
	line, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal poll result: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(n.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}

	n.logger.Debug("poll result written", zap.String("file", n.filePath))
	return nil
}
