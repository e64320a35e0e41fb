package updates

import (
	"context"

	"github.com/oleksiyp/kubecd/pkg/model"
)

// ReleaseFilter selects releases.
type ReleaseFilter func(rel *model.Release) bool

// Filter returns the releases accepted by every filter.
func Filter(releases []*model.Release, filters ...ReleaseFilter) []*model.Release {
	var out []*model.Release
next:
	for _, rel := range releases {
		for _, filter := range filters {
			if !filter(rel) {
				continue next
			}
		}
		out = append(out, rel)
	}
	return out
}

// ClusterFilter accepts releases of environments on the named cluster.
func ClusterFilter(cfg *model.Config, clusterName string) ReleaseFilter {
	return func(rel *model.Release) bool {
		env, err := cfg.EnvironmentOf(rel)
		return err == nil && env.ClusterName == clusterName
	}
}

// EnvironmentFilter accepts releases of the named environment.
func EnvironmentFilter(envName string) ReleaseFilter {
	return func(rel *model.Release) bool {
		return rel.Environment == envName
	}
}

// NamesFilter accepts releases with one of the given names.
func NamesFilter(names []string) ReleaseFilter {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	return func(rel *model.Release) bool {
		return wanted[rel.Name]
	}
}

// ImageFilter accepts releases deploying repo, according to the image index.
func (e *Engine) ImageFilter(ctx context.Context, repo string) (ReleaseFilter, error) {
	releases, err := e.ReleasesForImage(ctx, repo)
	if err != nil {
		return nil, err
	}
	members := make(map[*model.Release]bool, len(releases))
	for _, rel := range releases {
		members[rel] = true
	}
	return func(rel *model.Release) bool {
		return members[rel]
	}, nil
}
