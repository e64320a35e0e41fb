// Package deploy builds the helm and kubectl command lines that install,
// diff and render the releases of an environment, and runs them.
package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/runner"
	"github.com/oleksiyp/kubecd/pkg/values"
)

// Command is one command line, argv[0] being the program.
type Command []string

func (c Command) String() string {
	return strings.Join(c, " ")
}

// Executor generates deploy commands and runs them.
type Executor struct {
	runner    runner.Runner
	resolver  *values.Resolver
	logger    *zap.Logger
	out       io.Writer
	dryRun    bool
	debug     bool
	printOnly bool
}

// NewExecutor creates an executor. resolver resolves valueFrom references of
// inline values.
func NewExecutor(r runner.Runner, resolver *values.Resolver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		runner:   r,
		resolver: resolver,
		logger:   logger,
		out:      os.Stdout,
	}
}

// SetDryRun makes helm and kubectl run in their own dry-run modes.
func (e *Executor) SetDryRun(dryRun bool) {
	e.dryRun = dryRun
}

// SetDebug runs helm upgrades with --debug.
func (e *Executor) SetDebug(debug bool) {
	e.debug = debug
}

// SetPrintOnly makes Run print commands instead of running them.
func (e *Executor) SetPrintOnly(printOnly bool) {
	e.printOnly = printOnly
}

// SetOutput sets where Run writes command lines and command output.
func (e *Executor) SetOutput(w io.Writer) {
	e.out = w
}

// RepoSetupCommands registers the helm repositories and refreshes their
// indexes.
func RepoSetupCommands(repos []*model.HelmRepo) []Command {
	var cmds []Command
	for _, repo := range repos {
		r := repo.Expanded()
		cmd := Command{"helm", "repo", "add", r.Name, r.URL}
		if r.CAFile != "" {
			cmd = append(cmd, "--ca-file", r.CAFile)
		}
		if r.CertFile != "" {
			cmd = append(cmd, "--cert-file", r.CertFile)
		}
		if r.KeyFile != "" {
			cmd = append(cmd, "--key-file", r.KeyFile)
		}
		cmds = append(cmds, cmd)
	}
	return append(cmds, Command{"helm", "repo", "update"})
}

// UseContextCommand switches kubectl to the context of env.
func UseContextCommand(env *model.Environment) Command {
	return Command{"kubectl", "config", "use-context", env.KubeContext()}
}

// InitCommands sets up cluster credentials once per cluster and a kube
// context per environment. In gitlab mode every cluster is treated as a
// GitLab-managed one.
func InitCommands(envs []*model.Environment, gitlab bool) ([]Command, error) {
	var cmds []Command
	initialized := make(map[string]bool)
	for _, env := range envs {
		if env.Cluster == nil {
			return nil, fmt.Errorf("environment %q has no cluster", env.Name)
		}
		var provider model.Provider = env.Cluster.Provider
		if gitlab {
			provider = &model.GitlabProvider{}
		}
		if !initialized[env.Cluster.Name] {
			clusterCmds, err := provider.ClusterInitCommands()
			if err != nil {
				return nil, fmt.Errorf("cluster %q: %w", env.Cluster.Name, err)
			}
			cmds = appendCommands(cmds, clusterCmds)
			initialized[env.Cluster.Name] = true
		}
		contextCmds, err := provider.ContextInitCommands(env)
		if err != nil {
			return nil, fmt.Errorf("environment %q: %w", env.Name, err)
		}
		cmds = appendCommands(cmds, contextCmds)
	}
	return cmds, nil
}

// DeployCommands returns the commands that apply env, limited to the named
// releases when limit is non-empty.
func (e *Executor) DeployCommands(ctx context.Context, env *model.Environment, limit []string) ([]Command, error) {
	releases, err := selectReleases(env, limit)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	if len(limit) == 0 && len(env.ResourceFiles) > 0 {
		cmds = append(cmds, e.kubectlApply(env, env.ResourceFiles))
	}
	for _, rel := range releases {
		if rel.Chart == nil {
			cmds = append(cmds, e.kubectlApply(env, resourcePaths(rel)))
			continue
		}
		cmd, err := e.UpgradeCommand(ctx, rel, env)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// DiffCommands returns helm-diff commands for the chart releases of env.
func (e *Executor) DiffCommands(ctx context.Context, env *model.Environment, limit []string) ([]Command, error) {
	releases, err := selectReleases(env, limit)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	for _, rel := range releases {
		if rel.Chart == nil {
			continue
		}
		chartArgs, err := chartArgs(rel)
		if err != nil {
			return nil, err
		}
		valueArgs, err := e.valuesArgs(ctx, rel, env)
		if err != nil {
			return nil, err
		}
		cmd := append(helmBase(env), "diff", "upgrade", rel.Name)
		cmd = append(cmd, chartArgs...)
		cmds = append(cmds, append(cmd, valueArgs...))
	}
	return cmds, nil
}

// TemplateCommands returns commands that print the rendered manifests of
// env: helm template for chart releases, the files themselves otherwise.
func (e *Executor) TemplateCommands(ctx context.Context, env *model.Environment, limit []string) ([]Command, error) {
	releases, err := selectReleases(env, limit)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	for _, rel := range releases {
		if rel.Chart == nil {
			for _, path := range resourcePaths(rel) {
				cmds = append(cmds, Command{"cat", path})
			}
			continue
		}
		chartArgs, err := chartArgs(rel)
		if err != nil {
			return nil, err
		}
		valueArgs, err := e.valuesArgs(ctx, rel, env)
		if err != nil {
			return nil, err
		}
		cmd := append(helmBase(env), "template", rel.Name)
		cmd = append(cmd, chartArgs...)
		cmd = append(cmd, "--namespace", env.KubeNamespace)
		cmds = append(cmds, append(cmd, valueArgs...))
	}
	return cmds, nil
}

// UpgradeCommand returns the helm upgrade --install command of a chart
// release.
func (e *Executor) UpgradeCommand(ctx context.Context, rel *model.Release, env *model.Environment) (Command, error) {
	chartArgs, err := chartArgs(rel)
	if err != nil {
		return nil, err
	}
	valueArgs, err := e.valuesArgs(ctx, rel, env)
	if err != nil {
		return nil, err
	}
	cmd := append(helmBase(env), "upgrade", rel.Name)
	cmd = append(cmd, chartArgs...)
	cmd = append(cmd, "-i", "--namespace", env.KubeNamespace)
	cmd = append(cmd, valueArgs...)
	if e.dryRun {
		cmd = append(cmd, "--dry-run")
	}
	if e.debug {
		cmd = append(cmd, "--debug")
	}
	return cmd, nil
}

// Run runs cmds in order and stops at the first failure. Each command line
// is printed before it runs.
func (e *Executor) Run(ctx context.Context, cmds []Command) error {
	for _, cmd := range cmds {
		if len(cmd) == 0 {
			continue
		}
		fmt.Fprintln(e.out, cmd.String())
		if e.printOnly {
			e.logger.Debug("skipping command", zap.Strings("argv", cmd))
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := e.runner.Run(ctx, cmd[0], cmd[1:]...)
		if len(out) > 0 {
			_, _ = e.out.Write(out)
		}
		if err != nil {
			e.logger.Error("command failed", zap.Strings("argv", cmd), zap.Error(err))
			return fmt.Errorf("command failed: %q: %w", cmd.String(), err)
		}
	}
	return nil
}

func (e *Executor) kubectlApply(env *model.Environment, files []string) Command {
	cmd := Command{"kubectl", "--context", env.KubeContext(), "apply"}
	if e.dryRun {
		cmd = append(cmd, "--dry-run=client")
	}
	for _, file := range files {
		cmd = append(cmd, "-f", file)
	}
	return cmd
}

// valuesArgs lists value sources in increasing precedence: environment
// defaults file, environment default values, release values file, release
// inline values.
func (e *Executor) valuesArgs(ctx context.Context, rel *model.Release, env *model.Environment) ([]string, error) {
	var args []string
	if !rel.SkipDefaultValues {
		if env.DefaultValuesFile != "" {
			args = append(args, "--values", env.AbsPath(env.DefaultValuesFile))
		}
		if len(env.DefaultValues) > 0 {
			set, err := e.setString(ctx, env.DefaultValues, env)
			if err != nil {
				return nil, err
			}
			args = append(args, "--set-string", set)
		}
	}
	if rel.ValuesFile != "" {
		args = append(args, "--values", rel.AbsPath(rel.ValuesFile))
	}
	if len(rel.Values) > 0 {
		set, err := e.setString(ctx, rel.Values, env)
		if err != nil {
			return nil, fmt.Errorf("release %q: %w", rel.Name, err)
		}
		args = append(args, "--set-string", set)
	}
	return args, nil
}

func (e *Executor) setString(ctx context.Context, entries []model.ChartValue, env *model.Environment) (string, error) {
	pairs := make([]string, 0, len(entries))
	for _, entry := range entries {
		value, err := e.resolver.ResolveEntry(ctx, entry, env, false)
		if err != nil {
			return "", err
		}
		if value == nil {
			value = ""
		}
		pairs = append(pairs, entry.Key+"="+fmt.Sprint(value))
	}
	return strings.Join(pairs, ","), nil
}

func chartArgs(rel *model.Release) ([]string, error) {
	if !rel.Chart.IsLocal() {
		return []string{rel.Chart.Reference, "--version", rel.Chart.Version}, nil
	}
	dir := rel.AbsPath(rel.Chart.Dir)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%s: release %q chart.dir %q does not exist", rel.FromFile, rel.Name, dir)
	}
	return []string{dir}, nil
}

func helmBase(env *model.Environment) Command {
	return Command{"helm", "--kube-context", env.KubeContext()}
}

func resourcePaths(rel *model.Release) []string {
	paths := make([]string, len(rel.ResourceFiles))
	for i, path := range rel.ResourceFiles {
		paths[i] = rel.AbsPath(path)
	}
	return paths
}

// selectReleases returns the releases of env named in limit, in declaration
// order, or all of them for an empty limit.
func selectReleases(env *model.Environment, limit []string) ([]*model.Release, error) {
	if len(limit) == 0 {
		return env.Releases, nil
	}
	wanted := make(map[string]bool, len(limit))
	for _, name := range limit {
		if _, err := env.Release(name); err != nil {
			return nil, fmt.Errorf("environment %q: %w", env.Name, err)
		}
		wanted[name] = true
	}
	var out []*model.Release
	for _, rel := range env.Releases {
		if wanted[rel.Name] {
			out = append(out, rel)
		}
	}
	return out, nil
}

func appendCommands(cmds []Command, argvs [][]string) []Command {
	for _, argv := range argvs {
		cmds = append(cmds, Command(argv))
	}
	return cmds
}
