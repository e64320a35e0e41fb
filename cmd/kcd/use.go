package main

import (
	"github.com/spf13/cobra"

	"github.com/oleksiyp/kubecd/pkg/deploy"
)

func newUseCmd(a *app) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "use ENV",
		Short: "Switch the kube context to an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			env, err := cfg.Environment(args[0])
			if err != nil {
				return err
			}
			exec := a.executor(cmd)
			exec.SetPrintOnly(printOnly)
			return exec.Run(cmd.Context(), []deploy.Command{deploy.UseContextCommand(env)})
		},
	}
	cmd.Flags().BoolVarP(&printOnly, "dry-run", "n", false, "print commands instead of running them")
	return cmd
}
