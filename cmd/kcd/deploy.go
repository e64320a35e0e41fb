package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oleksiyp/kubecd/pkg/deploy"
	"github.com/oleksiyp/kubecd/pkg/model"
)

type deployOptions struct {
	cluster   string
	releases  []string
	dryRun    bool
	debug     bool
	printOnly bool
	init      bool
	gitlab    bool
}

func (o *deployOptions) addFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().StringVarP(&o.cluster, "cluster", "c", "", verb+" all environments in CLUSTER")
	cmd.Flags().StringSliceVarP(&o.releases, "releases", "r", nil, verb+" only these releases")
	cmd.Flags().BoolVar(&o.printOnly, "print", false, "only print commands instead of running them")
	cmd.Flags().BoolVar(&o.init, "init", false, "initialize credentials and contexts first")
	cmd.Flags().BoolVar(&o.gitlab, "gitlab", false, "initialize in gitlab mode")
}

type commandsFunc func(exec *deploy.Executor, ctx context.Context, env *model.Environment, limit []string) ([]deploy.Command, error)

// run generates the commands for every selected environment before running
// any of them, so a bad release name fails without side effects.
func (o *deployOptions) run(cmd *cobra.Command, a *app, args []string, commands commandsFunc) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	envs, err := environmentsFromArgs(cfg, o.cluster, args)
	if err != nil {
		return err
	}

	exec := a.executor(cmd)
	exec.SetDryRun(o.dryRun)
	exec.SetDebug(o.debug)
	exec.SetPrintOnly(o.printOnly)

	var cmds []deploy.Command
	if o.init {
		initCmds, err := deploy.InitCommands(envs, o.gitlab)
		if err != nil {
			return err
		}
		cmds = append(deploy.RepoSetupCommands(cfg.HelmRepos), initCmds...)
	}
	for _, env := range envs {
		envCmds, err := commands(exec, cmd.Context(), env, o.releases)
		if err != nil {
			return err
		}
		cmds = append(cmds, envCmds...)
	}
	return exec.Run(cmd.Context(), cmds)
}

func newApplyCmd(a *app) *cobra.Command {
	o := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "apply [ENV]",
		Short: "Apply releases to Kubernetes",
		Args:  clusterFlagOrEnvArg(&o.cluster),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, a, args, (*deploy.Executor).DeployCommands)
		},
	}
	o.addFlags(cmd, "apply")
	cmd.Flags().BoolVarP(&o.dryRun, "dry-run", "n", false, "run helm and kubectl in dry-run mode")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "run helm with --debug")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	o := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "diff [ENV]",
		Short: "Show pending changes of releases, using the helm-diff plugin",
		Args:  clusterFlagOrEnvArg(&o.cluster),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, a, args, (*deploy.Executor).DiffCommands)
		},
	}
	o.addFlags(cmd, "diff")
	return cmd
}

func newTemplateCmd(a *app) *cobra.Command {
	o := &deployOptions{}
	cmd := &cobra.Command{
		Use:     "template [ENV]",
		Aliases: []string{"render"},
		Short:   "Show rendered helm templates and plain Kubernetes resources",
		Args:    clusterFlagOrEnvArg(&o.cluster),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, a, args, (*deploy.Executor).TemplateCommands)
		},
	}
	o.addFlags(cmd, "template")
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	var (
		cluster   string
		gitlab    bool
		printOnly bool
	)
	cmd := &cobra.Command{
		Use:   "init [ENV]",
		Short: "Initialize helm repositories, cluster credentials and kube contexts",
		Args:  clusterFlagOrEnvArg(&cluster),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			envs, err := environmentsFromArgs(cfg, cluster, args)
			if err != nil {
				return err
			}
			initCmds, err := deploy.InitCommands(envs, gitlab)
			if err != nil {
				return err
			}
			exec := a.executor(cmd)
			exec.SetPrintOnly(printOnly)
			return exec.Run(cmd.Context(), append(deploy.RepoSetupCommands(cfg.HelmRepos), initCmds...))
		},
	}
	cmd.Flags().StringVarP(&cluster, "cluster", "c", "", "initialize contexts for all environments in a cluster")
	cmd.Flags().BoolVar(&gitlab, "gitlab", false, "use the kube config set up by GitLab CI")
	cmd.Flags().BoolVarP(&printOnly, "dry-run", "n", false, "print commands instead of running them")
	return cmd
}
