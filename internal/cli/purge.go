package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// PurgeResult is the JSON payload of the purge command.
type PurgeResult struct {
	Purged int `json:"purged"`
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Finish schema deletes that were interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				n, err := rt.orch.PurgePending(ctx)
				if err != nil {
					return f.Fail(err)
				}
				if f.Format == "json" {
					return f.Success(PurgeResult{Purged: n})
				}
				fmt.Fprintf(f.Writer, "Purged %d pending schema(s)\n", n)
				return nil
			})
		},
	}
}
