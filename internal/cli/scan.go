package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Context string
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <bib>",
		Short: "Submit a scanned bib",
		Long: `Submit a bib read by the barcode scanner.

The scan is appended to the context's scan sequence and matched to the
earliest result still waiting for a bib.`,
		Example:       `  finishline scan 118`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				c, err := a.resolveContext(ctx, opts.Context)
				if err != nil {
					return a.fail("failed to find context", err)
				}
				s, err := a.engine.SubmitScan(ctx, c.ID, args[0])
				if err != nil {
					return a.fail("failed to submit scan", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(s)
				}
				fmt.Fprintf(a.out.Writer, "Scanned bib %s (scan %d, order %d)\n", s.BibNumber, s.ID, s.Order)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Context, "context", "", "context id or name (default: active context)")

	return cmd
}
