// Package registry lists the tags of container images together with the
// time each tag was last pushed.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/runner"
)

const (
	// DockerHub is the registry host assumed when a repository has none.
	DockerHub = "docker.io"
	// DefaultHubURL is the Docker Hub API endpoint.
	DefaultHubURL = "https://registry.hub.docker.com"
	// DefaultTimeout bounds each registry call.
	DefaultTimeout = 30 * time.Second

	gcrSuffix   = "gcr.io"
	hubPageSize = 100
	hubMaxPages = 50
	tracerName  = "github.com/oleksiyp/kubecd/pkg/registry"
)

// Client lists tags from GCR, Docker Hub and Docker Registry v2 servers.
type Client struct {
	logger  *zap.Logger
	runner  runner.Runner
	http    *http.Client
	hubURL  string
	scheme  string
	timeout time.Duration
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.http = c }
}

// WithHubURL points Docker Hub requests at another endpoint.
func WithHubURL(url string) Option {
	return func(client *Client) { client.hubURL = strings.TrimSuffix(url, "/") }
}

// WithScheme sets the URL scheme used for v2 registries.
func WithScheme(scheme string) Option {
	return func(client *Client) { client.scheme = scheme }
}

// WithTimeout bounds every registry call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) { client.timeout = d }
}

// New creates a registry client. GCR tags are listed through gcloud run by r.
func New(logger *zap.Logger, r runner.Runner, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		logger:  logger,
		runner:  r,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		hubURL:  DefaultHubURL,
		scheme:  "https",
		timeout: DefaultTimeout,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTags returns every tag of repo mapped to its unix timestamp.
func (c *Client) ListTags(ctx context.Context, repo string) (map[string]int64, error) {
	host, path := ParseRepo(repo)

	ctx, span := c.tracer.Start(ctx, "registry.ListTags", trace.WithAttributes(
		attribute.String("registry.host", host),
		attribute.String("registry.repository", path)))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		tags map[string]int64
		err  error
	)
	switch {
	case strings.HasSuffix(host, gcrSuffix):
		tags, err = c.gcrTags(ctx, host, path)
	case host == DockerHub:
		tags, err = c.hubTags(ctx, path)
	default:
		tags, err = c.v2Tags(ctx, host, path)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("registry.tags", len(tags)))
	c.logger.Debug("Listed image tags", zap.String("repo", repo), zap.Int("tags", len(tags)))
	return tags, nil
}

// RegistryError is a failed registry operation for one repository.
type RegistryError struct {
	Repo string
	Op   string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry %s %s: %v", e.Op, e.Repo, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}
