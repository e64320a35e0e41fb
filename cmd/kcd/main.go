package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/internal/logging"
	"github.com/oleksiyp/kubecd/internal/telemetry"
	"github.com/oleksiyp/kubecd/internal/version"
	"github.com/oleksiyp/kubecd/pkg/deploy"
	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/registry"
	"github.com/oleksiyp/kubecd/pkg/runner"
	"github.com/oleksiyp/kubecd/pkg/updates"
	"github.com/oleksiyp/kubecd/pkg/values"
)

const (
	envEnvironmentsFile     = "KUBECD_ENVIRONMENTS"
	defaultEnvironmentsFile = "environments.yaml"
)

// app carries the state shared by all subcommands.
type app struct {
	environmentsFile string
	verbosity        int
	logJSON          bool
	otelEnabled      bool
	registryTimeout  time.Duration

	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	runner    runner.Runner
	tags      updates.TagLister
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kcd",
		Short: "Continuous deployment of helm releases across Kubernetes environments",
		Long: `kcd deploys helm charts and plain Kubernetes resources to the
environments declared in an environments file, and keeps container image
tags and chart versions in the releases files up to date:
- apply, diff and template releases per environment or cluster
- poll registries for newer image tags along semver tracks
- observe a pushed image or chart and patch the releases that want it
- watch mode: poll periodically and on file changes`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	envFile := os.Getenv(envEnvironmentsFile)
	if envFile == "" {
		envFile = defaultEnvironmentsFile
	}
	otelDefault, _ := strconv.ParseBool(os.Getenv(telemetry.EnvEnabled))

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.environmentsFile, "environments-file", "f", envFile,
		"KubeCD config file (env "+envEnvironmentsFile+")")
	flags.CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity")
	flags.BoolVar(&a.logJSON, "log-json", false, "log in JSON format")
	flags.BoolVar(&a.otelEnabled, "otel", otelDefault, "export traces and metrics over OTLP (env "+telemetry.EnvEnabled+")")
	flags.DurationVar(&a.registryTimeout, "registry-timeout", registry.DefaultTimeout, "timeout of each registry call")

	rootCmd.AddCommand(newPollCmd(a))
	rootCmd.AddCommand(newObserveCmd(a))
	rootCmd.AddCommand(newApplyCmd(a))
	rootCmd.AddCommand(newDiffCmd(a))
	rootCmd.AddCommand(newTemplateCmd(a))
	rootCmd.AddCommand(newInitCmd(a))
	rootCmd.AddCommand(newUseCmd(a))
	rootCmd.AddCommand(newListCmd(a))
	rootCmd.AddCommand(newValuesCmd(a))
	rootCmd.AddCommand(newIndentCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func (a *app) setup(ctx context.Context) error {
	if a.logger == nil {
		logger, err := logging.New(a.verbosity, a.logJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
	}
	if a.telemetry == nil {
		tel, err := telemetry.New(ctx, a.otelEnabled)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.telemetry = tel
	}
	if a.runner == nil {
		a.runner = runner.NewExecRunner(a.logger)
	}
	if a.tags == nil {
		a.tags = registry.New(a.logger, a.runner, registry.WithTimeout(a.registryTimeout))
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var err error
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err = a.telemetry.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func (a *app) loadConfig() (*model.Config, error) {
	a.logger.Debug("loading config", zap.String("file", a.environmentsFile))
	return model.Load(a.environmentsFile, a.logger)
}

func (a *app) resolver() *values.Resolver {
	return values.NewResolver(a.runner, a.logger, values.Options{CacheDir: values.DefaultCacheDir()})
}

func (a *app) engine(cfg *model.Config) *updates.Engine {
	return updates.NewEngine(cfg, a.resolver(), a.tags, a.logger)
}

func (a *app) executor(cmd *cobra.Command) *deploy.Executor {
	exec := deploy.NewExecutor(a.runner, a.resolver(), a.logger)
	exec.SetOutput(cmd.OutOrStdout())
	return exec
}

// environmentsFromArgs selects the environment named by the only argument,
// or every environment of cluster.
func environmentsFromArgs(cfg *model.Config, cluster string, args []string) ([]*model.Environment, error) {
	if len(args) > 0 {
		env, err := cfg.Environment(args[0])
		if err != nil {
			return nil, err
		}
		return []*model.Environment{env}, nil
	}
	if cluster == "" {
		return nil, errors.New("specify --cluster flag or ENV arg")
	}
	if _, err := cfg.Cluster(cluster); err != nil {
		return nil, err
	}
	return cfg.EnvironmentsInCluster(cluster), nil
}

func clusterFlagOrEnvArg(cluster *string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return errors.New("at most one ENV arg is accepted")
		}
		if (*cluster == "") == (len(args) == 0) {
			return errors.New("specify --cluster flag or ENV arg")
		}
		return nil
	}
}
