package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const gcrTimeLayout = "2006-01-02 15:04:05-07:00"

type gcrImage struct {
	Digest    string   `json:"digest"`
	Tags      []string `json:"tags"`
	Timestamp *struct {
		Datetime string `json:"datetime"`
	} `json:"timestamp"`
}

// gcrTags lists tags through gcloud, billed to the project named by the first
// path segment.
func (c *Client) gcrTags(ctx context.Context, host, path string) (map[string]int64, error) {
	fullRepo := host + "/" + path
	project := strings.SplitN(path, "/", 2)[0]
	out, err := c.runner.Run(ctx, "gcloud", "container", "images", "list-tags", fullRepo,
		"--project", project, "--format", "json")
	if err != nil {
		return nil, &RegistryError{Repo: fullRepo, Op: "list-tags", Err: err}
	}
	return parseGCRTags(fullRepo, out)
}

func parseGCRTags(repo string, data []byte) (map[string]int64, error) {
	var images []gcrImage
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, &RegistryError{Repo: repo, Op: "decode", Err: err}
	}
	tags := make(map[string]int64)
	for _, image := range images {
		var timestamp int64
		if image.Timestamp != nil && image.Timestamp.Datetime != "" {
			t, err := time.Parse(gcrTimeLayout, image.Timestamp.Datetime)
			if err != nil {
				return nil, &RegistryError{Repo: repo, Op: "decode", Err: fmt.Errorf("digest %s: %w", image.Digest, err)}
			}
			timestamp = t.Unix()
		}
		for _, tag := range image.Tags {
			tags[tag] = timestamp
		}
	}
	return tags, nil
}
