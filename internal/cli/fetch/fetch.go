// Package fetch implements `cpuprof fetch`.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coral-mesh/cpuprof/internal/constants"
	cperrors "github.com/coral-mesh/cpuprof/internal/errors"
	"github.com/coral-mesh/cpuprof/internal/logging"
	"github.com/coral-mesh/cpuprof/internal/profiler/compress"
	"github.com/coral-mesh/cpuprof/internal/profiler/pprof"
	"github.com/coral-mesh/cpuprof/internal/retry"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var (
		server   string
		seconds  int
		output   string
		format   string
		attempts int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a CPU profile from a running server",
		Long: `Request a CPU profile from a cpuprof server and save or print it.

Examples:
  # Save a 30s profile to profile.pb.gz
  cpuprof fetch --server localhost:8080

  # Generate a flame graph (requires flamegraph.pl)
  cpuprof fetch --seconds 10 --format folded | flamegraph.pl > cpu.svg

  # JSON summary for processing
  cpuprof fetch --seconds 5 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ParseFormat(format)
			if err != nil {
				return err
			}

			opts := Options{
				BaseURL: server,
				Retry: retry.Config{
					MaxAttempts:    attempts,
					InitialBackoff: constants.DefaultFetchBackoff,
					MaxBackoff:     constants.DefaultFetchMaxBackoff,
					Jitter:         0.2,
				},
				Logger: logging.NewWithComponent(logging.Config{Level: logLevel, Pretty: true, Output: cmd.ErrOrStderr()}, "fetch"),
			}
			wait := time.Duration(constants.DefaultProfileSeconds) * time.Second
			if cmd.Flags().Changed("seconds") {
				opts.Seconds = &seconds
				wait = time.Duration(seconds) * time.Second
			}

			// Allow the sampling window plus transfer.
			ctx, cancel := context.WithTimeout(cmd.Context(), wait+time.Minute)
			defer cancel()

			fmt.Fprintf(cmd.ErrOrStderr(), "Profiling for %s...\n", wait)
			data, err := Profile(ctx, opts)
			if err != nil {
				return err
			}

			switch f {
			case FormatRaw:
				if output == "-" {
					return writeStdout(cmd.OutOrStdout(), data)
				}
				if err := writeFile(output, data); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), output)
				return nil
			default:
				return Render(cmd.OutOrStdout(), data, f)
			}
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "localhost:8080", "Server address or URL")
	cmd.Flags().IntVarP(&seconds, "seconds", "d", constants.DefaultProfileSeconds, "Profiling duration in seconds")
	cmd.Flags().StringVarP(&output, "output", "o", constants.DefaultFetchOutput, "Output file for raw format, - for stdout")
	cmd.Flags().StringVar(&format, "format", string(FormatRaw), "Output format: raw (default), folded, json")
	cmd.Flags().IntVar(&attempts, "attempts", constants.DefaultFetchAttempts, "Connection attempts before giving up")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level")

	return cmd
}

// Render decodes a compressed profile and writes it in format f.
func Render(w io.Writer, data []byte, f Format) error {
	raw, err := compress.Decompress(data)
	if err != nil {
		return err
	}
	r, err := pprof.Decode(raw)
	if err != nil {
		return err
	}
	if f == FormatJSON {
		return WriteJSON(w, r)
	}
	return WriteFolded(w, r)
}

// writeStdout refuses to dump the binary artifact onto a terminal.
func writeStdout(w io.Writer, data []byte) error {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return errors.New("refusing to write a binary profile to a terminal; use --output or --format folded")
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer cperrors.CloseInto(&err, file, path)

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
