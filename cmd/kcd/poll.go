package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/internal/telemetry"
	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/updates"
	"github.com/oleksiyp/kubecd/pkg/watch"
)

type pollOptions struct {
	cluster    string
	releases   []string
	image      string
	patch      bool
	watch      bool
	interval   time.Duration
	webhook    string
	reportFile string
	listen     string
}

func newPollCmd(a *app) *cobra.Command {
	o := &pollOptions{}

	cmd := &cobra.Command{
		Use:   "poll [ENV]",
		Short: "Poll registries for new image tags",
		Long: `Check the image triggers of releases against the tags in their
registries and report the updates each trigger's track accepts.

Examples:
  # Updates for one environment
  kcd poll prod

  # Every environment in a cluster, patching releases files
  kcd poll --cluster prod-cluster --patch

  # Keep polling, and poll again whenever a config file changes
  kcd poll prod --watch --interval 10m --webhook https://hooks.example.com/kcd`,
		Args: clusterFlagOrEnvArg(&o.cluster),
		RunE: func(cmd *cobra.Command, args []string) error {
			envName := ""
			if len(args) > 0 {
				envName = args[0]
			}
			if o.watch {
				return o.runWatch(cmd, a, envName)
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			report, err := o.check(cmd.Context(), a, cfg, envName)
			if err != nil {
				return err
			}
			return reportUpdates(cmd.OutOrStdout(), report, o.patch)
		},
	}

	cmd.Flags().StringVarP(&o.cluster, "cluster", "c", "", "poll all releases in this cluster")
	cmd.Flags().StringSliceVarP(&o.releases, "releases", "r", nil, "poll one or more specific releases")
	cmd.Flags().StringVarP(&o.image, "image", "i", "", "poll releases using this image")
	cmd.Flags().BoolVarP(&o.patch, "patch", "p", false, "patch releases files with updated tags")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "keep polling on an interval and on config file changes")
	cmd.Flags().DurationVar(&o.interval, "interval", 5*time.Minute, "poll interval in watch mode")
	cmd.Flags().StringVar(&o.webhook, "webhook", "", "POST watch results as JSON to this URL")
	cmd.Flags().StringVar(&o.reportFile, "report-file", "", "append watch results as JSON lines to this file")
	cmd.Flags().StringVar(&o.listen, "listen", "", "serve the watch status API on this address, e.g. :8080")

	return cmd
}

// check runs one update scan over the releases selected by the options.
func (o *pollOptions) check(ctx context.Context, a *app, cfg *model.Config, envName string) (*updates.Report, error) {
	engine := a.engine(cfg)

	var filters []updates.ReleaseFilter
	if envName != "" {
		if _, err := cfg.Environment(envName); err != nil {
			return nil, err
		}
		filters = append(filters, updates.EnvironmentFilter(envName))
	} else {
		if _, err := cfg.Cluster(o.cluster); err != nil {
			return nil, err
		}
		filters = append(filters, updates.ClusterFilter(cfg, o.cluster))
	}
	if len(o.releases) > 0 {
		filters = append(filters, updates.NamesFilter(o.releases))
	}
	if o.image != "" {
		filter, err := engine.ImageFilter(ctx, o.image)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}

	selected := updates.Filter(cfg.AllReleases(), filters...)
	report := &updates.Report{Updates: make(map[string][]updates.ImageUpdate)}
	for _, env := range cfg.Environments {
		releases := updates.Filter(selected, updates.EnvironmentFilter(env.Name))
		if len(releases) == 0 {
			continue
		}
		envReport, err := engine.FindUpdatesForReleases(ctx, env, releases)
		if err != nil {
			return nil, err
		}
		report.Merge(envReport)
	}
	return report, nil
}

func (o *pollOptions) runWatch(cmd *cobra.Command, a *app, envName string) error {
	counters, err := telemetry.NewCounters(a.telemetry.Meter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	check := func(ctx context.Context, cfg *model.Config) (*updates.Report, error) {
		report, err := o.check(ctx, a, cfg, envName)
		if err != nil {
			return nil, err
		}
		counters.Record(ctx, report.Count(), len(report.Failures))
		if o.patch && report.Count() > 0 {
			if err := patchUpdates(out, report); err != nil {
				return report, err
			}
		}
		return report, nil
	}

	poller := watch.NewPoller(a.loadConfig, check, o.interval, a.logger)
	poller.WatchFile(a.environmentsFile)
	poller.AddNotifier(watch.NewStdoutNotifier(a.logger))
	if o.webhook != "" {
		poller.AddNotifier(watch.NewWebhookNotifier(o.webhook, a.logger))
	}
	if o.reportFile != "" {
		poller.AddNotifier(watch.NewFileNotifier(o.reportFile, a.logger))
	}

	if o.listen != "" {
		api := watch.NewAPIServer(o.listen, poller, a.logger)
		if err := api.Start(); err != nil {
			return err
		}
		defer func() { _ = api.Stop() }()
	}

	a.logger.Info("watching for updates",
		zap.String("file", a.environmentsFile),
		zap.Duration("interval", o.interval))
	return poller.Run(cmd.Context())
}

func reportUpdates(w io.Writer, report *updates.Report, patch bool) error {
	for _, f := range report.Failures {
		fmt.Fprintf(w, "Failed to check env:%s release %q: %s\n", f.Environment, f.Release, f.Error)
	}
	if report.Count() == 0 {
		fmt.Fprintln(w, "No updates found.")
		return nil
	}
	verb := "May"
	if patch {
		verb = "Will"
	}
	for _, file := range report.Files() {
		for _, u := range report.Updates[file] {
			fmt.Fprintf(w, "%s update env:%s release %q image %q tag %s -> %s (%s)\n",
				verb, u.Environment, u.Release, u.ImageRepo, u.OldTag, u.NewTag, u.Reason)
		}
	}
	if !patch {
		return nil
	}
	return patchUpdates(w, report)
}
