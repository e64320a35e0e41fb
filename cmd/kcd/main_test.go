package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/runner"
)

const environmentsYAML = `
clusters:
  - name: local
    provider:
      minikube: {}
environments:
  - name: prod
    clusterName: local
    kubeNamespace: web
    releasesFiles: [releases.yaml]
`

const releasesYAML = `releases:
  - name: app
    chart:
      dir: charts/app
    values:
      - key: image.repository
        value: gcr.io/proj/app
      - key: image.tag
        value: 1.0.0
    trigger:
      image:
        track: MinorVersion
`

type stubTags map[string]map[string]int64

func (s stubTags) ListTags(_ context.Context, repo string) (map[string]int64, error) {
	return s[repo], nil
}

type cliFixture struct {
	dir     string
	runner  *runner.Fake
	tags    stubTags
	envFile string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"environments.yaml":      environmentsYAML,
		"releases.yaml":          releasesYAML,
		"charts/app/Chart.yaml":  "name: app\n",
		"charts/app/values.yaml": "replicas: 1\nimage:\n  pullPolicy: Always\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return &cliFixture{
		dir:     dir,
		runner:  runner.NewFake(),
		tags:    stubTags{"gcr.io/proj/app": {"1.0.0": 100, "1.1.0": 200, "2.0.0": 300}},
		envFile: filepath.Join(dir, "environments.yaml"),
	}
}

func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{logger: zap.NewNop(), runner: f.runner, tags: f.tags}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-f", f.envFile}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPoll(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "poll", "prod")
	require.NoError(t, err)
	assert.Contains(t, out, `May update env:prod release "app" image "gcr.io/proj/app" tag 1.0.0 -> 1.1.0`)

	data, err := os.ReadFile(filepath.Join(f.dir, "releases.yaml"))
	require.NoError(t, err)
	assert.Equal(t, releasesYAML, string(data), "no patching without --patch")
}

func TestPollPatch(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "poll", "--cluster", "local", "--patch")
	require.NoError(t, err)
	assert.Contains(t, out, "Will update")
	assert.Contains(t, out, "+        value: 1.1.0")

	data, err := os.ReadFile(filepath.Join(f.dir, "releases.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "value: 1.1.0")

	out, err = f.run(t, "poll", "prod")
	require.NoError(t, err)
	assert.Contains(t, out, "No updates found.")
}

func TestPollArgs(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "poll")
	assert.EqualError(t, err, "specify --cluster flag or ENV arg")

	_, err = f.run(t, "poll", "staging")
	assert.EqualError(t, err, `no such environment: "staging"`)
}

func TestObserveImage(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "observe", "--image", "gcr.io/proj/app:1.2.0")
	require.NoError(t, err)
	assert.Contains(t, out, `May update env:prod release "app" image "gcr.io/proj/app" tag 1.0.0 -> 1.2.0`)

	out, err = f.run(t, "observe", "--image", "gcr.io/proj/app:2.0.0")
	require.NoError(t, err)
	assert.Contains(t, out, "No matching release found")

	_, err = f.run(t, "observe", "--image", "gcr.io/proj/app:9.9.9", "--verify")
	assert.Error(t, err)

	_, err = f.run(t, "observe")
	assert.EqualError(t, err, "must specify --image or --chart")
}

func TestApplyPrint(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "apply", "prod", "--print", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t,
		"helm --kube-context env:prod upgrade app "+filepath.Join(f.dir, "charts/app")+
			" -i --namespace web --set-string image.repository=gcr.io/proj/app,image.tag=1.0.0 --dry-run\n",
		out)
	assert.Empty(t, f.runner.Calls())

	_, err = f.run(t, "apply", "prod", "--releases", "nope", "--print")
	assert.EqualError(t, err, `environment "prod": no such release: "nope"`)
}

func TestInitPrint(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "init", "prod", "-n")
	require.NoError(t, err)
	assert.Equal(t,
		"helm repo update\n"+
			"kubectl config set-context env:prod --cluster minikube --user minikube --namespace web\n",
		out)
}

func TestUse(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "use", "prod", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "kubectl config use-context env:prod\n", out)
	assert.Empty(t, f.runner.Calls())

	f.runner.On("Switched to context \"env:prod\".\n", "kubectl", "config", "use-context", "env:prod")
	out, err = f.run(t, "use", "prod")
	require.NoError(t, err)
	assert.Contains(t, out, `Switched to context "env:prod".`)
	assert.Equal(t, [][]string{{"kubectl", "config", "use-context", "env:prod"}}, f.runner.Calls())

	_, err = f.run(t, "use", "staging")
	assert.EqualError(t, err, `no such environment: "staging"`)
}

func TestList(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "list", "envs")
	require.NoError(t, err)
	assert.Contains(t, out, "ENVIRONMENT")
	assert.Contains(t, out, "prod")

	out, err = f.run(t, "list", "images")
	require.NoError(t, err)
	assert.Contains(t, out, "gcr.io/proj/app")
	assert.Contains(t, out, "prod/app")

	_, err = f.run(t, "list", "bogus")
	assert.Error(t, err)
}

func TestValues(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "values", "prod", "app")
	require.NoError(t, err)
	assert.Equal(t, `image:
  pullPolicy: Always
  repository: gcr.io/proj/app
  tag: 1.0.0
replicas: 1
`, out)
}

func TestVersion(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kcd dev")
}
