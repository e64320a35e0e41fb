package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "list envs|releases|clusters|images",
		Short:     "List configured environments, releases, clusters or watched images",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"envs", "releases", "clusters", "images"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			switch args[0] {
			case "envs":
				fmt.Fprintln(w, "ENVIRONMENT\tCLUSTER\tNAMESPACE")
				for _, env := range cfg.Environments {
					fmt.Fprintf(w, "%s\t%s\t%s\n", env.Name, env.ClusterName, env.KubeNamespace)
				}
			case "releases":
				fmt.Fprintln(w, "ENVIRONMENT\tRELEASE\tCHART\tFILE")
				for _, rel := range cfg.AllReleases() {
					chart := "-"
					if rel.Chart != nil && rel.Chart.IsLocal() {
						chart = rel.Chart.Dir
					} else if rel.Chart != nil {
						chart = rel.Chart.Reference + "@" + rel.Chart.Version
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rel.Environment, rel.Name, chart, rel.FromFile)
				}
			case "clusters":
				fmt.Fprintln(w, "CLUSTER\tPROVIDER")
				for _, cluster := range cfg.Clusters {
					fmt.Fprintf(w, "%s\t%s\n", cluster.Name, cluster.Provider.Kind())
				}
			case "images":
				index, err := a.engine(cfg).ImageIndex(cmd.Context())
				if err != nil {
					return err
				}
				repos := make([]string, 0, len(index))
				for repo := range index {
					repos = append(repos, repo)
				}
				sort.Strings(repos)
				fmt.Fprintln(w, "IMAGE\tRELEASES")
				for _, repo := range repos {
					names := make([]string, 0, len(index[repo]))
					for _, rel := range index[repo] {
						names = append(names, rel.Environment+"/"+rel.Name)
					}
					fmt.Fprintf(w, "%s\t%s\n", repo, strings.Join(names, ","))
				}
			}
			return nil
		},
	}
	return cmd
}
