package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version, Commit, and Date are set via -ldflags at build time:
//
//	-X github.com/codebased/codebased/cmd/codebased/cmd.Version={{.Version}}
//	-X github.com/codebased/codebased/cmd/codebased/cmd.Commit={{.ShortCommit}}
//	-X github.com/codebased/codebased/cmd/codebased/cmd.Date={{.Date}}
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// buildInfo is the structured form used by version --json.
type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// newVersionCmd creates the version command (standard, per spec §6).
func newVersionCmd() *cobra.Command {
	var jsonOutput bool
	var shortOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information including git commit, build date, and Go version.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shortOutput {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(buildInfo{
					Version:   Version,
					Commit:    Commit,
					Date:      Date,
					GoVersion: runtime.Version(),
					OS:        runtime.GOOS,
					Arch:      runtime.GOARCH,
				})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "codebased %s (commit: %s, built: %s, go: %s)\n",
				Version, Commit, Date, runtime.Version())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "output only the version number")

	return cmd
}
