package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/schemata/internal/config"
	"github.com/roach88/schemata/internal/descriptor"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create, inspect, update and delete schemas",
		Long: `Run orchestrator workflows against the configured stores.

Definition files are YAML, JSON or CUE:

  name: person
  properties:
    - name: age
      type: {kind: number}`,
	}

	cmd.AddCommand(
		newSchemaCreateCommand(rootOpts),
		newSchemaGetCommand(rootOpts),
		newSchemaListCommand(rootOpts),
		newSchemaUpdateCommand(rootOpts),
		newSchemaDeleteCommand(rootOpts),
		newSchemaDeletePropertyCommand(rootOpts),
	)
	return cmd
}

// withRuntime loads config, opens the stores, runs fn and closes the
// runtime. fn's error wins over a close error.
func withRuntime(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, rt *runtime, f *OutputFormatter) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	configureLogging(cmd.ErrOrStderr(), level, cfg.LogFormat, opts.Verbose)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close stores", closeErr)
		}
	}()

	return fn(ctx, rt, newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
}

func loadDescriptor(f *OutputFormatter, path string) (*descriptor.Document, error) {
	doc, err := descriptor.Load(path)
	if err != nil {
		_ = f.Error("INVALID_DESCRIPTOR", err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid descriptor", err)
	}
	f.VerboseLog("Loaded %s: schema %q with %d properties", path, doc.Name, len(doc.Properties))
	return doc, nil
}

func newSchemaCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <file>",
		Short: "Create a schema from a definition file",
		Example: `  schemata schema create person.yaml
  schemata schema create person.cue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				doc, err := loadDescriptor(f, args[0])
				if err != nil {
					return err
				}
				agg, err := rt.orch.Create(ctx, doc.Descriptor(), doc.PropertyList())
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(agg)
			})
		},
	}
}

func newSchemaGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a schema with its properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				agg, err := rt.orch.GetByID(ctx, args[0])
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(agg)
			})
		},
	}
}

func newSchemaListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				docs, err := rt.orch.GetAll(ctx)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(docs)
			})
		},
	}
}

func newSchemaUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <file>",
		Short: "Replace a schema's name and properties",
		Long: `Replace a schema's name and property list with a definition file.

Properties that carry an id are updated in place, properties without one
are created, and existing properties missing from the file are deleted.
Use 'schemata schema get <id> --format json' to obtain current ids.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				doc, err := loadDescriptor(f, args[1])
				if err != nil {
					return err
				}
				agg, err := rt.orch.UpdateByID(ctx, args[0], doc.Draft())
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(agg)
			})
		},
	}
}

func newSchemaDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a schema and all of its properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				doc, err := rt.orch.DeleteSchema(ctx, args[0])
				if err != nil {
					return f.Fail(err)
				}
				if f.Format == "json" {
					return f.Success(doc)
				}
				fmt.Fprintf(f.Writer, "Deleted schema %s (%s) and %d properties\n", doc.Name, doc.ID, len(doc.PropertyIDs))
				return nil
			})
		},
	}
}

func newSchemaDeletePropertyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-property <schema-id> <property-id>",
		Short: "Remove one property from a schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, rootOpts, func(ctx context.Context, rt *runtime, f *OutputFormatter) error {
				agg, err := rt.orch.DeleteProperty(ctx, args[0], args[1])
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(agg)
			})
		},
	}
}
