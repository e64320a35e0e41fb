// Package model loads the environments file and the releases files it
// references into a validated, read-only configuration.
package model

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/schema"
)

// Config is the loaded configuration. It is not modified after Load returns;
// reloading builds a new Config.
type Config struct {
	Clusters     []*Cluster
	Environments []*Environment
	HelmRepos    []*HelmRepo
	KubeConfig   string
	// FromFile is the absolute path of the environments file.
	FromFile string

	clusters     map[string]*Cluster
	environments map[string]*Environment
	files        []string
	imageIndex   imageIndexMemo
}

// Load reads the environments file at path along with every releases file it
// references.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := schema.LoadFile(absPath, rootSchema)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KubeConfig:   root.StringOr("kubeConfig", ""),
		FromFile:     absPath,
		clusters:     make(map[string]*Cluster),
		environments: make(map[string]*Environment),
		files:        []string{absPath},
	}
	if cfg.KubeConfig != "" {
		cfg.KubeConfig = ResolvePathFromFile(cfg.KubeConfig, absPath)
	}

	for _, obj := range root.Structs("clusters") {
		cluster, err := newCluster(obj, absPath, cfg.KubeConfig)
		if err != nil {
			return nil, err
		}
		cfg.Clusters = append(cfg.Clusters, cluster)
	}

	for _, obj := range root.Structs("helmRepos") {
		cfg.HelmRepos = append(cfg.HelmRepos, &HelmRepo{
			Name:     obj.StringOr("name", ""),
			URL:      obj.StringOr("url", ""),
			CAFile:   obj.StringOr("caFile", ""),
			CertFile: obj.StringOr("certFile", ""),
			KeyFile:  obj.StringOr("keyFile", ""),
		})
	}

	for _, obj := range root.Structs("environments") {
		env, err := cfg.loadEnvironment(obj, logger)
		if err != nil {
			return nil, err
		}
		cfg.Environments = append(cfg.Environments, env)
	}

	if err := cfg.index(); err != nil {
		return nil, err
	}

	logger.Debug("Loaded configuration",
		zap.String("file", absPath),
		zap.Int("clusters", len(cfg.Clusters)),
		zap.Int("environments", len(cfg.Environments)),
		zap.Int("releases", len(cfg.AllReleases())))
	return cfg, nil
}

func (c *Config) loadEnvironment(obj schema.Object, logger *zap.Logger) (*Environment, error) {
	env := &Environment{
		Name:              obj.StringOr("name", ""),
		ClusterName:       obj.StringOr("clusterName", ""),
		KubeNamespace:     obj.StringOr("kubeNamespace", ""),
		ReleasesFiles:     obj.Strings("releasesFiles"),
		DefaultValuesFile: obj.StringOr("defaultValuesFile", ""),
		FromFile:          c.FromFile,
	}
	if env.Name == "" {
		return nil, validationErrorf(c.FromFile, "environment without a name")
	}
	defaults, err := newChartValues(obj.Structs("defaultValues"))
	if err != nil {
		return nil, validationErrorf(c.FromFile, "environment %q: %v", env.Name, err)
	}
	env.DefaultValues = defaults

	for _, releasesFile := range env.ReleasesFiles {
		path := env.AbsPath(releasesFile)
		doc, err := schema.LoadFile(path, releasesSchema)
		if err != nil {
			return nil, err
		}
		c.files = append(c.files, path)

		for _, relObj := range doc.Structs("releases") {
			rel, err := newRelease(relObj, path, env.Name)
			if err != nil {
				return nil, err
			}
			env.Releases = append(env.Releases, rel)
		}
		if resourceFiles := doc.Strings("resourceFiles"); len(resourceFiles) > 0 {
			logger.Warn("Top-level resourceFiles is deprecated, declare them on a release instead",
				zap.String("file", path),
				zap.String("environment", env.Name))
			for _, f := range resourceFiles {
				env.ResourceFiles = append(env.ResourceFiles, ResolvePathFromFile(f, path))
			}
		}
	}
	return env, nil
}

// index runs the duplicate-name checks and builds the lookup maps.
func (c *Config) index() error {
	for _, cluster := range c.Clusters {
		if _, seen := c.clusters[cluster.Name]; seen {
			return validationErrorf(c.FromFile, "duplicate cluster name: %q", cluster.Name)
		}
		c.clusters[cluster.Name] = cluster
	}

	seenRepo := make(map[string]bool)
	for _, repo := range c.HelmRepos {
		if seenRepo[repo.Name] {
			return validationErrorf(c.FromFile, "duplicate helm repo name: %q", repo.Name)
		}
		seenRepo[repo.Name] = true
	}

	for _, env := range c.Environments {
		if _, seen := c.environments[env.Name]; seen {
			return validationErrorf(c.FromFile, "duplicate environment name: %q", env.Name)
		}
		c.environments[env.Name] = env

		env.releases = make(map[string]*Release, len(env.Releases))
		for _, rel := range env.Releases {
			if _, seen := env.releases[rel.Name]; seen {
				return validationErrorf(rel.FromFile, "duplicate release %q in environment %q", rel.Name, env.Name)
			}
			env.releases[rel.Name] = rel
		}
	}

	for _, env := range c.Environments {
		cluster, err := c.Cluster(env.ClusterName)
		if err != nil {
			return fmt.Errorf("environment %q: %w", env.Name, err)
		}
		env.Cluster = cluster
	}
	return nil
}

// Cluster looks up a cluster by name.
func (c *Config) Cluster(name string) (*Cluster, error) {
	if cluster, ok := c.clusters[name]; ok {
		return cluster, nil
	}
	return nil, &NotFoundError{Kind: "cluster", Name: name}
}

// Environment looks up an environment by name.
func (c *Config) Environment(name string) (*Environment, error) {
	if env, ok := c.environments[name]; ok {
		return env, nil
	}
	return nil, &NotFoundError{Kind: "environment", Name: name}
}

// EnvironmentOf returns the environment owning rel.
func (c *Config) EnvironmentOf(rel *Release) (*Environment, error) {
	return c.Environment(rel.Environment)
}

// EnvironmentsInCluster returns the environments deployed to a cluster.
func (c *Config) EnvironmentsInCluster(clusterName string) []*Environment {
	var envs []*Environment
	for _, env := range c.Environments {
		if env.ClusterName == clusterName {
			envs = append(envs, env)
		}
	}
	return envs
}

// AllReleases returns the releases of every environment.
func (c *Config) AllReleases() []*Release {
	var releases []*Release
	for _, env := range c.Environments {
		releases = append(releases, env.Releases...)
	}
	return releases
}

// Files returns the environments file followed by every releases file, each
// listed once.
func (c *Config) Files() []string {
	seen := make(map[string]bool, len(c.files))
	files := make([]string, 0, len(c.files))
	for _, f := range c.files {
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}
