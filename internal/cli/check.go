package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the schema store with the property store",
		Long: `Report every disagreement between the two stores: listed properties
that do not exist, properties that reference the wrong schema, properties
no schema lists, duplicate names and unfinished deletes.

Exits 1 when drift is found. Nothing is modified; run 'schemata purge'
to finish unfinished deletes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				report, err := rt.orch.Verify(ctx)
				if err != nil {
					return f.Fail(err)
				}
				if err := f.Success(report); err != nil {
					return err
				}
				if !report.Consistent() {
					return NewExitError(ExitFailure, fmt.Sprintf("%d drift(s) found", len(report.Drifts)))
				}
				return nil
			})
		},
	}
}
