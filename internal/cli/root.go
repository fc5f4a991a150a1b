package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Config    string
	Database  string
	OutputDir string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the finishline CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "finishline",
		Short: "finishline - race finish-line reconciliation",
		Long: `Reconcile timer results with barcode scans at a race finish line.

Results arrive from a timing device, bib scans arrive from a scanner, and
operators correct the pairing before confirming results to the export file.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config (default $FINISHLINE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.OutputDir, "output-dir", "", "directory for export artifacts (overrides config)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewContextCommand(opts))
	cmd.AddCommand(NewResultCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewCorrectCommand(opts))
	cmd.AddCommand(NewConfirmCommand(opts))
	cmd.AddCommand(NewRewriteCommand(opts))
	cmd.AddCommand(NewBoardCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewSettingCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
