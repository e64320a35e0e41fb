package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/heroku/docker-registry-client/registry"
)

// v2Tags lists tags of a Docker Registry v2 server and reads each tag's
// creation time from its schema 1 manifest. Tags without history are dropped.
func (c *Client) v2Tags(ctx context.Context, host, path string) (map[string]int64, error) {
	fullRepo := host + "/" + path
	reg := c.v2Registry(ctx, fmt.Sprintf("%s://%s", c.scheme, host))

	list, err := reg.Tags(path)
	if err != nil {
		return nil, &RegistryError{Repo: fullRepo, Op: "list-tags", Err: err}
	}

	tags := make(map[string]int64, len(list))
	for _, tag := range list {
		manifest, err := reg.Manifest(path, tag)
		if err != nil {
			return nil, &RegistryError{Repo: fullRepo, Op: "manifest " + tag, Err: err}
		}
		if len(manifest.History) == 0 {
			continue
		}
		var compat struct {
			Created string `json:"created"`
		}
		if err := json.Unmarshal([]byte(manifest.History[0].V1Compatibility), &compat); err != nil {
			return nil, &RegistryError{Repo: fullRepo, Op: "manifest " + tag, Err: err}
		}
		tags[tag] = c.parseDockerTime(compat.Created, fullRepo, tag)
	}
	return tags, nil
}

// v2Registry returns an anonymous registry client for url. Bearer token
// challenges are answered by the client's token transport; every request,
// token requests included, is bound to ctx.
func (c *Client) v2Registry(ctx context.Context, url string) *registry.Registry {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := registry.WrapTransport(&contextTransport{ctx: ctx, base: base}, url, "", "")
	logger := c.logger.Sugar()
	return &registry.Registry{
		URL:    url,
		Client: &http.Client{Transport: transport},
		Logf: func(format string, args ...interface{}) {
			logger.Debugf(format, args...)
		},
	}
}

// contextTransport attaches ctx to requests made by libraries that do not
// take a context.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
