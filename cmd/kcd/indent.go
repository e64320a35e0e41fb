package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/patch"
)

func newIndentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "indent FILE...",
		Short: "Canonicalize the indentation of YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, file := range args {
				a.logger.Debug("indenting", zap.String("file", file))
				if err := patch.Indent(file); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
