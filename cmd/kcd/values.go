package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newValuesCmd(a *app) *cobra.Command {
	var skipValueFrom bool
	cmd := &cobra.Command{
		Use:   "values ENV RELEASE",
		Short: "Show the merged helm values of a release",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			env, err := cfg.Environment(args[0])
			if err != nil {
				return err
			}
			rel, err := env.Release(args[1])
			if err != nil {
				return err
			}
			vals, err := a.resolver().Resolve(cmd.Context(), rel, env, skipValueFrom)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(vals); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&skipValueFrom, "skip-value-from", false, "do not look up valueFrom references")
	return cmd
}
