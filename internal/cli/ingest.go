package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/finishline/internal/ingest"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Context string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <capture|->",
		Short: "Submit results from a Time Machine capture",
		Long: `Read Time Machine records from a capture file, device, or stdin ("-")
and submit each as a result.

Without --context each record goes to whichever context is active when it
is submitted. Records that fail to parse or are rejected are logged and
skipped.`,
		Example: `  finishline ingest capture.txt --context "Spring 5K"
  cat /dev/ttyUSB0 | finishline ingest -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runIngest(ctx, a, cmd, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context per record)")

	return cmd
}

func runIngest(ctx context.Context, a *app, cmd *cobra.Command, opts *IngestOptions, path string) error {
	resolve := ingest.ActiveContext(a.engine)
	if opts.Context != "" {
		c, err := a.resolveContext(ctx, opts.Context)
		if err != nil {
			return a.fail("failed to find context", err)
		}
		resolve = ingest.FixedContext(c.ID)
	}

	var src io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open capture", err)
		}
		defer f.Close()
		src = f
	}

	stats, err := ingest.New(a.engine, resolve, a.logger).Run(ctx, src)
	if err != nil {
		return WrapExitError(ExitFailure, "ingest stopped", err)
	}

	if a.out.Format == "json" {
		return a.out.Success(map[string]int{
			"submitted": stats.Submitted,
			"rejected":  stats.Rejected,
		})
	}
	fmt.Fprintf(a.out.Writer, "Submitted %d result(s), rejected %d\n", stats.Submitted, stats.Rejected)
	return nil
}
