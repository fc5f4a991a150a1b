package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewSettingCommand creates the setting command group.
func NewSettingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Read and change global settings",
		Long: `Read and change global settings.

Known settings:
  output-file     export file for the active context; changing it rewrites
                  the artifact at the new path
  active-context  id of the active context`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List settings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, runSettingList)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "set <name> <value>",
		Short:         "Change a setting",
		Example:       `  finishline setting set output-file results.csv`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				if err := a.engine.SetSetting(ctx, args[0], args[1]); err != nil {
					return a.fail("failed to change setting", err)
				}
				if a.out.Format == "json" {
					return a.out.Success(map[string]string{args[0]: args[1]})
				}
				fmt.Fprintf(a.out.Writer, "%s = %s\n", args[0], args[1])
				return nil
			})
		},
	})

	return cmd
}

func runSettingList(ctx context.Context, a *app) error {
	settings, err := a.engine.Settings(ctx)
	if err != nil {
		return a.fail("failed to list settings", err)
	}
	if a.out.Format == "json" {
		return a.out.Success(settings)
	}

	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.out.Writer, "%s = %s\n", name, settings[name])
	}
	return nil
}
