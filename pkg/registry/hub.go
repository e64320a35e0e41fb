package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type hubTagsPage struct {
	Next    string `json:"next"`
	Results []struct {
		Name        string `json:"name"`
		LastUpdated string `json:"last_updated"`
	} `json:"results"`
}

// hubTags walks the paginated Docker Hub tag listing.
func (c *Client) hubTags(ctx context.Context, path string) (map[string]int64, error) {
	path = hubPath(path)
	tags := make(map[string]int64)
	url := fmt.Sprintf("%s/v2/repositories/%s/tags?page_size=%d", c.hubURL, path, hubPageSize)
	for page := 0; url != "" && page < hubMaxPages; page++ {
		var body hubTagsPage
		if err := c.getJSON(ctx, url, "", &body); err != nil {
			return nil, &RegistryError{Repo: DockerHub + "/" + path, Op: "list-tags", Err: err}
		}
		for _, result := range body.Results {
			tags[result.Name] = c.parseDockerTime(result.LastUpdated, path, result.Name)
		}
		url = body.Next
	}
	return tags, nil
}

// parseDockerTime parses an RFC 3339 timestamp. Missing or malformed
// timestamps read as zero.
func (c *Client) parseDockerTime(value, repo, tag string) int64 {
	if value == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		c.logger.Debug("Ignoring malformed tag timestamp",
			zap.String("repo", repo), zap.String("tag", tag), zap.String("value", value))
		return 0
	}
	return t.Unix()
}

func (c *Client) getJSON(ctx context.Context, url, accept string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	return nil
}
