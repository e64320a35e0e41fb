package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/patch"
	"github.com/oleksiyp/kubecd/pkg/registry"
	"github.com/oleksiyp/kubecd/pkg/updates"
)

type observeOptions struct {
	image    string
	chart    string
	releases []string
	patch    bool
	verify   bool
}

func newObserveCmd(a *app) *cobra.Command {
	o := &observeOptions{}

	cmd := &cobra.Command{
		Use:   "observe [ENV]",
		Short: "Observe a new version of an image or chart",
		Long: `Report, and optionally patch, the releases whose triggers accept a
newly pushed image tag or chart version.

Examples:
  kcd observe --image gcr.io/myproj/app:1.4.0 --patch
  kcd observe prod --chart stable/postgresql:8.2.0`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return err
			}
			if (o.image == "") == (o.chart == "") {
				return errors.New("must specify --image or --chart")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			var filters []updates.ReleaseFilter
			if len(args) == 1 {
				if _, err := cfg.Environment(args[0]); err != nil {
					return err
				}
				filters = append(filters, updates.EnvironmentFilter(args[0]))
			}
			if len(o.releases) > 0 {
				filters = append(filters, updates.NamesFilter(o.releases))
			}
			if o.image != "" {
				return o.observeImage(cmd, a, cfg, filters)
			}
			return o.observeChart(cmd, cfg, filters)
		},
	}

	cmd.Flags().StringVarP(&o.image, "image", "i", "", "a new image, including tag")
	cmd.Flags().StringVar(&o.chart, "chart", "", "a new chart version, as REFERENCE:VERSION")
	cmd.Flags().StringSliceVarP(&o.releases, "releases", "r", nil, "limit the update to one or more specific releases")
	cmd.Flags().BoolVar(&o.patch, "patch", false, "patch releases files with updated tags")
	cmd.Flags().BoolVar(&o.verify, "verify", false, "verify that the image tag exists")

	return cmd
}

func (o *observeOptions) observeImage(cmd *cobra.Command, a *app, cfg *model.Config, filters []updates.ReleaseFilter) error {
	ctx := cmd.Context()
	ref := registry.ParseImageRef(o.image)
	if ref.Tag == "" {
		return fmt.Errorf("image %q has no tag", o.image)
	}
	if o.verify {
		if err := verifyTag(ctx, a.tags, ref); err != nil {
			return err
		}
	}

	engine := a.engine(cfg)
	candidates, err := engine.ReleasesForImage(ctx, ref.Repo)
	if err != nil {
		return err
	}
	report := &updates.Report{Updates: make(map[string][]updates.ImageUpdate)}
	for _, rel := range updates.Filter(candidates, filters...) {
		env, err := cfg.EnvironmentOf(rel)
		if err != nil {
			return err
		}
		found, err := engine.ReleaseWantsImageUpdate(ctx, env, rel, ref)
		if err != nil {
			return err
		}
		for _, u := range found {
			report.Updates[u.File] = append(report.Updates[u.File], u)
		}
	}
	if report.Count() == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No matching release found for image %s.\n", o.image)
		return nil
	}
	return reportUpdates(cmd.OutOrStdout(), report, o.patch)
}

func (o *observeOptions) observeChart(cmd *cobra.Command, cfg *model.Config, filters []updates.ReleaseFilter) error {
	out := cmd.OutOrStdout()
	i := strings.LastIndex(o.chart, ":")
	if i <= 0 || i == len(o.chart)-1 {
		return fmt.Errorf("chart %q must be REFERENCE:VERSION", o.chart)
	}
	reference, newVersion := o.chart[:i], o.chart[i+1:]

	byFile := make(map[string][]updates.ChartUpdate)
	for _, rel := range updates.Filter(cfg.AllReleases(), filters...) {
		if rel.Chart == nil || rel.Chart.Reference != reference {
			continue
		}
		for _, u := range updates.ReleaseWantsChartUpdate(rel, newVersion) {
			byFile[u.File] = append(byFile[u.File], u)
		}
	}
	if len(byFile) == 0 {
		fmt.Fprintf(out, "No matching release found for chart %s.\n", o.chart)
		return nil
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	verb := "May"
	if o.patch {
		verb = "Will"
	}
	for _, file := range files {
		var changes []patch.Change
		for _, u := range byFile[file] {
			fmt.Fprintf(out, "%s update env:%s release %q chart %s version %s -> %s\n",
				verb, u.Environment, u.Release, reference, u.OldVersion, u.NewVersion)
			changes = append(changes, patch.ChartVersionChange(u.Release, u.NewVersion))
		}
		if o.patch {
			if err := patchFile(out, file, changes); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyTag(ctx context.Context, tags updates.TagLister, ref registry.ImageRef) error {
	existing, err := tags.ListTags(ctx, ref.Repo)
	if err != nil {
		return err
	}
	if _, ok := existing[ref.Tag]; !ok {
		return fmt.Errorf("tag %q not found for image %q", ref.Tag, ref.Repo)
	}
	return nil
}
