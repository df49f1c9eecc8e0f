// Package cli wires the cpuprof commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/cpuprof/internal/cli/fetch"
	"github.com/coral-mesh/cpuprof/internal/cli/serve"
	"github.com/coral-mesh/cpuprof/pkg/version"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cpuprof",
		Short: "On-demand CPU profiling over HTTP",
		Long: `cpuprof samples the call stacks of a running Go process at a fixed
frequency and serves the result as a gzip-compressed pprof profile.

  cpuprof serve   start the profiling HTTP endpoint
  cpuprof fetch   download a profile from a running endpoint
  cpuprof show    print a saved profile as folded stacks or JSON`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serve.NewServeCmd())
	root.AddCommand(fetch.NewFetchCmd())
	root.AddCommand(fetch.NewShowCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
