package updates

import (
	"context"

	"github.com/pkg/errors"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/registry"
)

// ImageIndex returns the config's image index, building it on first use.
// Keys are repositories in registry.NormalizeRepo form.
func (e *Engine) ImageIndex(ctx context.Context) (model.ImageIndex, error) {
	return e.cfg.ImageIndex(func(cfg *model.Config) (model.ImageIndex, error) {
		return e.BuildImageIndex(ctx, cfg)
	})
}

// BuildImageIndex maps every watched image repository to the releases that
// deploy it.
func (e *Engine) BuildImageIndex(ctx context.Context, cfg *model.Config) (model.ImageIndex, error) {
	index := make(model.ImageIndex)
	for _, env := range cfg.Environments {
		for _, rel := range env.Releases {
			triggers := rel.ImageTriggers()
			if len(triggers) == 0 {
				continue
			}
			vals, err := e.resolver.Resolve(ctx, rel, env, true)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving values for env %q release %q", env.Name, rel.Name)
			}
			seen := make(map[string]bool)
			for _, trigger := range triggers {
				repo, _, ok := e.currentImage(env, rel, trigger, vals)
				if !ok {
					continue
				}
				key := registry.NormalizeRepo(repo)
				if seen[key] {
					continue
				}
				seen[key] = true
				index[key] = append(index[key], rel)
			}
		}
	}
	return index, nil
}

// ReleasesForImage returns the releases deploying repo.
func (e *Engine) ReleasesForImage(ctx context.Context, repo string) ([]*model.Release, error) {
	index, err := e.ImageIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index[registry.NormalizeRepo(repo)], nil
}
