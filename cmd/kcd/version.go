package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oleksiyp/kubecd/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kcd %s\n", version.String())
		},
	}
}
