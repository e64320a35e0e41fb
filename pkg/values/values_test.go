package values

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/runner"
	"github.com/oleksiyp/kubecd/pkg/tree"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func strPtr(s string) *string { return &s }

func gkeEnv(dir string) *model.Environment {
	return &model.Environment{
		Name:          "prod",
		KubeNamespace: "default",
		FromFile:      filepath.Join(dir, "environments.yaml"),
		Cluster: &model.Cluster{
			Name:     "prod-cluster",
			Provider: &model.GKEProvider{Project: "proj", ClusterName: "c", Zone: "europe-west1-b"},
		},
	}
}

func TestResolveLayerOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "charts/app/values.yaml"), "image:\n  repository: base\n  tag: \"1.0\"\nreplicas: 1\nservice: {port: 80}\n")
	writeFile(t, filepath.Join(dir, "defaults.yaml"), "replicas: 2\n")
	writeFile(t, filepath.Join(dir, "releases/app-values.yaml"), "image:\n  tag: \"3.0\"\nservice: {type: LoadBalancer}\n")

	env := gkeEnv(dir)
	env.DefaultValuesFile = "defaults.yaml"
	env.DefaultValues = []model.ChartValue{
		{Key: "image.tag", Value: strPtr("2.0")},
		{Key: "env", Value: strPtr("prod")},
	}
	rel := &model.Release{
		Name:        "app",
		Chart:       &model.Chart{Dir: "../charts/app"},
		ValuesFile:  "app-values.yaml",
		Values:      []model.ChartValue{{Key: "image.tag", Value: strPtr("4.0")}},
		FromFile:    filepath.Join(dir, "releases/prod.yaml"),
		Environment: "prod",
	}

	r := NewResolver(runner.NewFake(), zap.NewNop(), Options{})
	values, err := r.Resolve(context.Background(), rel, env, true)
	require.NoError(t, err)

	assert.Equal(t, tree.Values{
		"image":    tree.Values{"repository": "base", "tag": "4.0"},
		"replicas": float64(2),
		"env":      "prod",
		"service":  tree.Values{"port": float64(80), "type": "LoadBalancer"},
	}, values)
}

func TestResolveSkipDefaultValues(t *testing.T) {
	dir := t.TempDir()
	env := gkeEnv(dir)
	env.DefaultValues = []model.ChartValue{{Key: "env", Value: strPtr("prod")}}
	rel := &model.Release{
		Name:              "app",
		ResourceFiles:     []string{"app.yaml"},
		SkipDefaultValues: true,
		Values:            []model.ChartValue{{Key: "a.b", Value: strPtr("x")}, {Key: "a.c", Value: strPtr("y")}},
		FromFile:          filepath.Join(dir, "releases.yaml"),
	}

	r := NewResolver(runner.NewFake(), nil, Options{})
	values, err := r.Resolve(context.Background(), rel, env, true)
	require.NoError(t, err)
	assert.Equal(t, tree.Values{"a": tree.Values{"b": "x", "c": "y"}}, values)
}

func TestResolveWithoutEnvironment(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake()
	rel := &model.Release{
		Name:     "db",
		Chart:    &model.Chart{Reference: "stable/postgresql", Version: "1.0.0"},
		Values:   []model.ChartValue{{Key: "image.tag", Value: strPtr("10")}},
		FromFile: filepath.Join(dir, "releases.yaml"),
	}

	r := NewResolver(fake, nil, Options{})
	values, err := r.Resolve(context.Background(), rel, nil, true)
	require.NoError(t, err)
	assert.Equal(t, tree.Values{"image": tree.Values{"tag": "10"}}, values)
	assert.Empty(t, fake.Calls(), "remote chart is not inspected without an environment")
}

func TestResolveRemoteChartIsCached(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake().On("image:\n  repository: postgres\n  tag: \"9.6\"\n",
		"helm", "show", "values", "stable/postgresql", "--version", "1.0.0")
	rel := &model.Release{
		Name:     "db",
		Chart:    &model.Chart{Reference: "stable/postgresql", Version: "1.0.0"},
		FromFile: filepath.Join(dir, "releases.yaml"),
	}
	env := gkeEnv(dir)

	r := NewResolver(fake, zap.NewNop(), Options{CacheDir: filepath.Join(dir, "cache")})
	for i := 0; i < 2; i++ {
		values, err := r.Resolve(context.Background(), rel, env, true)
		require.NoError(t, err)
		tag, ok := tree.GetString("image.tag", values)
		require.True(t, ok)
		assert.Equal(t, "9.6", tag)
	}
	assert.Len(t, fake.Calls(), 1)
}

func TestResolveMissingValuesFileIsTolerated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "empty.yaml"), "")
	for _, file := range []string{"missing.yaml", "empty.yaml"} {
		rel := &model.Release{
			Name:          "app",
			ResourceFiles: []string{"app.yaml"},
			ValuesFile:    file,
			FromFile:      filepath.Join(dir, "releases.yaml"),
		}
		r := NewResolver(runner.NewFake(), zap.NewNop(), Options{})
		values, err := r.Resolve(context.Background(), rel, nil, true)
		require.NoError(t, err, file)
		assert.Empty(t, values, file)
	}
}

func TestResolveEntryGCEAddress(t *testing.T) {
	dir := t.TempDir()
	fake := runner.NewFake().
		On("10.0.0.1\n", "gcloud", "compute", "addresses", "describe", "ingress-ip",
			"--format", "value(address)", "--project", "proj", "--region", "europe-west1").
		On("34.1.1.1\n", "gcloud", "compute", "addresses", "describe", "global-ip",
			"--format", "value(address)", "--project", "proj", "--global")
	env := gkeEnv(dir)
	r := NewResolver(fake, zap.NewNop(), Options{})

	regional := model.ChartValue{Key: "ip", ValueFrom: &model.ValueRef{GCEAddress: &model.GCEAddressRef{Name: "ingress-ip"}}}
	value, err := r.ResolveEntry(context.Background(), regional, env, false)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", value)

	global := model.ChartValue{Key: "ip", ValueFrom: &model.ValueRef{GCEAddress: &model.GCEAddressRef{Name: "global-ip", IsGlobal: true}}}
	value, err = r.ResolveEntry(context.Background(), global, env, false)
	require.NoError(t, err)
	assert.Equal(t, "34.1.1.1", value)

	value, err = r.ResolveEntry(context.Background(), regional, env, true)
	require.NoError(t, err)
	assert.Nil(t, value, "skipped lookups keep the literal value")

	env.Cluster.Provider = &model.MinikubeProvider{}
	_, err = r.ResolveEntry(context.Background(), regional, env, false)
	assert.Error(t, err)
}

func TestResolveNumericValuesFileTag(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app-values.yaml"), "image:\n  tag: 20240115\n  version: 1.10\n")
	rel := &model.Release{
		Name:          "app",
		ResourceFiles: []string{"app.yaml"},
		ValuesFile:    "app-values.yaml",
		FromFile:      filepath.Join(dir, "releases.yaml"),
	}

	values, err := NewResolver(runner.NewFake(), zap.NewNop(), Options{}).Resolve(context.Background(), rel, nil, true)
	require.NoError(t, err)

	tag, ok := tree.GetString("image.tag", values)
	require.True(t, ok)
	assert.Equal(t, "20240115", tag)
	version, ok := tree.GetString("image.version", values)
	require.True(t, ok)
	assert.Equal(t, "1.1", version)
}
