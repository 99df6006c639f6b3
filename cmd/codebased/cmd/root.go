// Package cmd provides the CLI commands for codebased.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the codebased CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "codebased",
		Short:   "Local, per-repository hybrid code search",
		Version: Version,
		Long: `codebased indexes a repository's source with tree-sitter and
searches it with hybrid BM25 + semantic retrieval, entirely locally.`,
	}
	cmd.SetVersionTemplate("codebased version {{.Version}}\n")

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
