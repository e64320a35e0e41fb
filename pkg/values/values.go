// Package values computes the effective helm values of a release by merging,
// in order, the chart defaults, the environment defaults, the release values
// file and the inline release values.
package values

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"helm.sh/helm/v3/pkg/chartutil"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/runner"
	"github.com/oleksiyp/kubecd/pkg/tree"
)

// Options configures a Resolver.
type Options struct {
	// CacheDir holds cached chart default values. Empty disables caching.
	CacheDir string
}

// Resolver resolves release values.
type Resolver struct {
	runner   runner.Runner
	logger   *zap.Logger
	cacheDir string
}

// NewResolver creates a resolver that runs helm and gcloud through r.
func NewResolver(r runner.Runner, logger *zap.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{runner: r, logger: logger, cacheDir: opts.CacheDir}
}

// DefaultCacheDir returns $KUBECD_CACHE, or a kubecd directory under the
// user cache directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("KUBECD_CACHE"); dir != "" {
		return dir
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kubecd")
}

// Resolve returns the merged values of rel. env may be nil, in which case the
// remote chart defaults and the environment defaults are skipped. With
// skipValueFrom, valueFrom entries keep their literal value instead of being
// looked up.
func (r *Resolver) Resolve(ctx context.Context, rel *model.Release, env *model.Environment, skipValueFrom bool) (tree.Values, error) {
	values := tree.Values{}

	if rel.Chart != nil {
		defaults, err := r.chartDefaults(ctx, rel, env)
		if err != nil {
			return nil, err
		}
		values = tree.Merge(values, defaults)
	}

	if env != nil && !rel.SkipDefaultValues {
		if env.DefaultValuesFile != "" {
			fileValues, err := r.loadValuesFile(env.AbsPath(env.DefaultValuesFile))
			if err != nil {
				return nil, err
			}
			values = tree.Merge(values, fileValues)
		}
		defaults, err := r.EntriesToTree(ctx, env.DefaultValues, env, skipValueFrom)
		if err != nil {
			return nil, fmt.Errorf("environment %q: %w", env.Name, err)
		}
		values = tree.Merge(values, defaults)
	}

	if rel.ValuesFile != "" {
		fileValues, err := r.loadValuesFile(rel.AbsPath(rel.ValuesFile))
		if err != nil {
			return nil, err
		}
		values = tree.Merge(values, fileValues)
	}

	inline, err := r.EntriesToTree(ctx, rel.Values, env, skipValueFrom)
	if err != nil {
		return nil, fmt.Errorf("release %q: %w", rel.Name, err)
	}
	return tree.Merge(values, inline), nil
}

// EntriesToTree converts dotted-key entries into a nested tree. Entries that
// share a prefix are merged.
func (r *Resolver) EntriesToTree(ctx context.Context, entries []model.ChartValue, env *model.Environment, skipValueFrom bool) (tree.Values, error) {
	result := tree.Values{}
	for _, entry := range entries {
		value, err := r.ResolveEntry(ctx, entry, env, skipValueFrom)
		if err != nil {
			return nil, err
		}
		result = tree.Set(result, entry.Key, value)
	}
	return result, nil
}

// ResolveEntry returns the value of one entry: its literal value, or the
// looked up value of its valueFrom reference. An entry without a literal value
// resolves to nil when the lookup is skipped.
func (r *Resolver) ResolveEntry(ctx context.Context, entry model.ChartValue, env *model.Environment, skipValueFrom bool) (interface{}, error) {
	if entry.ValueFrom != nil && !skipValueFrom && env != nil {
		if addr := entry.ValueFrom.GCEAddress; addr != nil {
			return r.gceAddress(ctx, addr, env)
		}
	}
	if entry.Value == nil {
		return nil, nil
	}
	return *entry.Value, nil
}

var zoneSuffix = regexp.MustCompile(`-[a-z]$`)

func (r *Resolver) gceAddress(ctx context.Context, addr *model.GCEAddressRef, env *model.Environment) (string, error) {
	if env.Cluster == nil {
		return "", fmt.Errorf("environment %q has no cluster", env.Name)
	}
	gke, ok := env.Cluster.Provider.(*model.GKEProvider)
	if !ok {
		return "", fmt.Errorf("gce address %q needs a gke cluster, environment %q uses %s",
			addr.Name, env.Name, env.Cluster.Provider.Kind())
	}
	args := []string{"compute", "addresses", "describe", addr.Name,
		"--format", "value(address)", "--project", gke.Project}
	if addr.IsGlobal {
		args = append(args, "--global")
	} else if gke.Zone != "" {
		args = append(args, "--region", zoneSuffix.ReplaceAllString(gke.Zone, ""))
	} else {
		args = append(args, "--region", gke.Region)
	}
	out, err := r.runner.Run(ctx, "gcloud", args...)
	if err != nil {
		return "", fmt.Errorf("failed to look up gce address %q: %w", addr.Name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Resolver) chartDefaults(ctx context.Context, rel *model.Release, env *model.Environment) (tree.Values, error) {
	if rel.Chart.IsLocal() {
		path := rel.AbsPath(filepath.Join(rel.Chart.Dir, "values.yaml"))
		vals, err := chartutil.ReadValuesFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read chart values %s: %w", path, err)
		}
		return tree.Values(vals), nil
	}
	if env == nil {
		return nil, nil
	}
	data, err := r.inspect(ctx, rel.Chart.Reference, rel.Chart.Version)
	if err != nil {
		return nil, err
	}
	vals, err := chartutil.ReadValues(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse values of chart %s: %w", rel.Chart.Reference, err)
	}
	return tree.Values(vals), nil
}

// inspect returns the default values of a remote chart, from the cache when
// possible.
func (r *Resolver) inspect(ctx context.Context, reference, version string) ([]byte, error) {
	var cacheFile string
	if r.cacheDir != "" {
		cacheFile = filepath.Join(r.cacheDir, "inspect", fmt.Sprintf("%x", sha1.Sum([]byte(reference+version))))
		if data, err := os.ReadFile(cacheFile); err == nil {
			r.logger.Debug("Using cached chart values", zap.String("chart", reference), zap.String("version", version))
			return data, nil
		}
	}

	out, err := r.runner.Run(ctx, "helm", "show", "values", reference, "--version", version)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect chart %s: %w", reference, err)
	}

	if cacheFile != "" {
		if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err != nil {
			r.logger.Debug("Cannot create cache directory", zap.Error(err))
		} else if err := os.WriteFile(cacheFile, out, 0644); err != nil {
			r.logger.Debug("Cannot write cache file", zap.String("file", cacheFile), zap.Error(err))
		}
	}
	return out, nil
}

func (r *Resolver) loadValuesFile(path string) (tree.Values, error) {
	vals, err := chartutil.ReadValuesFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("Values file does not exist", zap.String("file", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read values file %s: %w", path, err)
	}
	if len(vals) == 0 {
		r.logger.Warn("Values file is empty", zap.String("file", path))
	}
	return tree.Values(vals), nil
}
