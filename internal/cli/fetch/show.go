package fetch

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/cpuprof/internal/safe"
)

// NewShowCmd creates the show command, which renders a saved profile.
func NewShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <profile.pb.gz>",
		Short: "Print a saved CPU profile as folded stacks or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ParseFormat(format)
			if err != nil {
				return err
			}
			if f == FormatRaw {
				return fmt.Errorf("show supports folded and json formats")
			}
			data, err := safe.ReadFile(args[0], nil)
			if err != nil {
				return fmt.Errorf("failed to read profile: %w", err)
			}
			return Render(cmd.OutOrStdout(), data, f)
		},
	}

	cmd.Flags().StringVar(&format, "format", string(FormatFolded), "Output format: folded (default), json")
	return cmd
}
