package updates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/registry"
	"github.com/oleksiyp/kubecd/pkg/runner"
	"github.com/oleksiyp/kubecd/pkg/values"
)

type stubLister struct {
	tags  map[string]map[string]int64
	errs  map[string]error
	calls map[string]int
}

func newStubLister() *stubLister {
	return &stubLister{
		tags:  make(map[string]map[string]int64),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (s *stubLister) ListTags(_ context.Context, repo string) (map[string]int64, error) {
	s.calls[repo]++
	if err, ok := s.errs[repo]; ok {
		return nil, err
	}
	tags, ok := s.tags[repo]
	if !ok {
		return nil, &registry.RegistryError{Repo: repo, Op: "list-tags", Err: errors.New("not found")}
	}
	return tags, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const environmentsYAML = `
clusters:
  - name: c
    provider: {minikube: {}}
environments:
  - name: prod
    clusterName: c
    kubeNamespace: default
    releasesFiles: [releases.yaml]
`

const releasesYAML = `
releases:
  - name: app
    chart: {dir: charts/app}
    values:
      - {key: image.repository, value: myco/app}
      - {key: image.tag, value: 3.1.1}
    trigger:
      image: {track: MinorVersion}
  - name: worker
    chart: {dir: charts/app}
    values:
      - {key: image.repository, value: myco/app}
      - {key: image.tag, value: 3.0.0}
    trigger:
      image: {track: PatchLevel}
  - name: broken
    chart: {dir: charts/app}
    values:
      - {key: image.repository, value: myco/broken}
      - {key: image.tag, value: 1.0.0}
    trigger:
      image: {track: MajorVersion}
  - name: norepo
    chart: {dir: charts/app}
    values:
      - {key: image.tag, value: 1.0.0}
    trigger:
      image: {track: MajorVersion}
  - name: prefixed
    chart: {dir: charts/app}
    values:
      - {key: image.prefix, value: gcr.io/}
      - {key: image.repository, value: proj/api}
      - {key: image.tag, value: abc}
    trigger:
      image: {track: Newest}
  - name: static
    resourceFiles: [static.yaml]
`

func newTestEngine(t *testing.T, lister TagLister) (*Engine, *model.Environment) {
	t.Helper()
	dir := t.TempDir()
	path := writeFile(t, dir, "environments.yaml", environmentsYAML)
	writeFile(t, dir, "releases.yaml", releasesYAML)

	cfg, err := model.Load(path, zap.NewNop())
	require.NoError(t, err)
	env, err := cfg.Environment("prod")
	require.NoError(t, err)

	resolver := values.NewResolver(runner.NewFake(), zap.NewNop(), values.Options{})
	return NewEngine(cfg, resolver, lister, zap.NewNop()), env
}

func TestFindUpdatesForEnvironment(t *testing.T) {
	lister := newStubLister()
	lister.tags["myco/app"] = map[string]int64{"3.0.0": 0, "3.0.1": 0, "3.1.1": 0, "3.1.2": 0, "3.3.1": 0, "4.0.0": 0}
	lister.tags["gcr.io/proj/api"] = map[string]int64{"abc": 10, "def": 20, "latest": 30}
	lister.errs["myco/broken"] = &registry.RegistryError{Repo: "myco/broken", Op: "list-tags", Err: errors.New("unauthorized")}

	engine, env := newTestEngine(t, lister)
	report, err := engine.FindUpdatesForEnvironment(context.Background(), env)
	require.NoError(t, err)

	file := env.Releases[0].FromFile
	assert.Equal(t, []string{file}, report.Files())
	assert.Equal(t, []ImageUpdate{
		{
			Release: "app", Environment: "prod", File: file, TagValueKey: "image.tag",
			ImageRepo: "myco/app", OldTag: "3.1.1", NewTag: "3.3.1",
			Reason: `track=MinorVersion, "3.3.1" > "3.1.1"`,
		},
		{
			Release: "worker", Environment: "prod", File: file, TagValueKey: "image.tag",
			ImageRepo: "myco/app", OldTag: "3.0.0", NewTag: "3.0.1",
			Reason: `track=PatchLevel, "3.0.1" > "3.0.0"`,
		},
		{
			Release: "prefixed", Environment: "prod", File: file, TagValueKey: "image.tag",
			ImageRepo: "gcr.io/proj/api", OldTag: "abc", NewTag: "def",
			Reason: `track=Newest, "def" was pushed after "abc"`,
		},
	}, report.Updates[file])

	require.Len(t, report.Failures, 1, "a registry failure is reported per release")
	assert.Equal(t, "broken", report.Failures[0].Release)
	var regErr *registry.RegistryError
	assert.ErrorAs(t, report.Failures[0].Err, &regErr)

	assert.Equal(t, 1, lister.calls["myco/app"], "tags are listed once per repository")
	assert.Equal(t, 3, report.Count())
}

func TestFindUpdatesSingleRelease(t *testing.T) {
	lister := newStubLister()
	lister.tags["myco/app"] = map[string]int64{"3.1.2": 0, "3.3.1": 0, "4.0.0": 0}

	engine, env := newTestEngine(t, lister)
	app, err := env.Release("app")
	require.NoError(t, err)

	report, err := engine.FindUpdatesForReleases(context.Background(), env, []*model.Release{app})
	require.NoError(t, err)
	require.Equal(t, 1, report.Count())
	update := report.Updates[app.FromFile][0]
	assert.Equal(t, "3.1.1", update.OldTag)
	assert.Equal(t, "3.3.1", update.NewTag)
	assert.Empty(t, report.Failures)
}

func TestFindUpdatesStopsOnCanceledContext(t *testing.T) {
	engine, env := newTestEngine(t, newStubLister())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.FindUpdatesForEnvironment(ctx, env)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseWantsTagUpdate(t *testing.T) {
	engine, env := newTestEngine(t, newStubLister())
	app, err := env.Release("app")
	require.NoError(t, err)

	updates, err := engine.ReleaseWantsTagUpdate(context.Background(), env, app, "3.9.0")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "3.1.1", updates[0].OldTag)
	assert.Equal(t, "3.9.0", updates[0].NewTag)

	updates, err = engine.ReleaseWantsTagUpdate(context.Background(), env, app, "4.0.0")
	require.NoError(t, err)
	assert.Empty(t, updates, "major bump is outside MinorVersion")

	static, err := env.Release("static")
	require.NoError(t, err)
	updates, err = engine.ReleaseWantsTagUpdate(context.Background(), env, static, "1.0.0")
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestReleaseWantsImageUpdate(t *testing.T) {
	engine, env := newTestEngine(t, newStubLister())
	prefixed, err := env.Release("prefixed")
	require.NoError(t, err)

	updates, err := engine.ReleaseWantsImageUpdate(context.Background(), env, prefixed, registry.ParseImageRef("gcr.io/proj/api:xyz"))
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "xyz", updates[0].NewTag)

	updates, err = engine.ReleaseWantsImageUpdate(context.Background(), env, prefixed, registry.ParseImageRef("gcr.io/proj/other:xyz"))
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestImageIndexAndFilters(t *testing.T) {
	engine, env := newTestEngine(t, newStubLister())
	cfg := engine.Config()

	index, err := engine.ImageIndex(context.Background())
	require.NoError(t, err)
	assert.Len(t, index["docker.io/myco/app"], 2)
	assert.Len(t, index["gcr.io/proj/api"], 1)
	assert.Len(t, index, 3)

	again, err := engine.ImageIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, index, again)

	imageFilter, err := engine.ImageFilter(context.Background(), "docker.io/myco/app")
	require.NoError(t, err)
	selected := Filter(cfg.AllReleases(), imageFilter, NamesFilter([]string{"worker", "static"}))
	require.Len(t, selected, 1)
	assert.Equal(t, "worker", selected[0].Name)

	assert.Len(t, Filter(cfg.AllReleases(), ClusterFilter(cfg, "c")), len(env.Releases))
	assert.Empty(t, Filter(cfg.AllReleases(), ClusterFilter(cfg, "other")))
	assert.Empty(t, Filter(cfg.AllReleases(), EnvironmentFilter("staging")))
}

func TestReleaseWantsChartUpdate(t *testing.T) {
	rel := &model.Release{
		Name:        "db",
		Chart:       &model.Chart{Reference: "stable/postgresql", Version: "1.2.0"},
		Triggers:    []model.Trigger{{Chart: &model.ChartTrigger{Track: "PatchLevel"}}},
		Environment: "prod",
	}

	updates := ReleaseWantsChartUpdate(rel, "1.2.5")
	require.Len(t, updates, 1)
	assert.Equal(t, "1.2.0", updates[0].OldVersion)
	assert.Equal(t, "1.2.5", updates[0].NewVersion)

	assert.Empty(t, ReleaseWantsChartUpdate(rel, "1.3.0"))

	local := &model.Release{Name: "app", Chart: &model.Chart{Dir: "charts/app"}, Triggers: rel.Triggers}
	assert.Empty(t, ReleaseWantsChartUpdate(local, "9.9.9"))
}

func TestFindUpdatesNumericTagFromValuesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "environments.yaml", environmentsYAML)
	writeFile(t, dir, "releases.yaml", `
releases:
  - name: nightly
    chart: {dir: charts/app}
    valuesFile: nightly-values.yaml
    trigger:
      image: {track: Newest}
`)
	writeFile(t, dir, "nightly-values.yaml", "image:\n  repository: myco/nightly\n  tag: 20240115\n")

	cfg, err := model.Load(path, zap.NewNop())
	require.NoError(t, err)
	env, err := cfg.Environment("prod")
	require.NoError(t, err)

	lister := newStubLister()
	lister.tags["myco/nightly"] = map[string]int64{"20240114": 5, "20240115": 10, "20240116": 20}
	resolver := values.NewResolver(runner.NewFake(), zap.NewNop(), values.Options{})
	report, err := NewEngine(cfg, resolver, lister, zap.NewNop()).FindUpdatesForEnvironment(context.Background(), env)
	require.NoError(t, err)

	require.Equal(t, 1, report.Count())
	update := report.Updates[env.Releases[0].FromFile][0]
	assert.Equal(t, "20240115", update.OldTag)
	assert.Equal(t, "20240116", update.NewTag)
}
