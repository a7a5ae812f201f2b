package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/schemata/internal/config"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/observability"
	"github.com/roach88/schemata/internal/orchestrator"
	"github.com/roach88/schemata/internal/store"
	"github.com/roach88/schemata/internal/store/memory"
)

// runtime is the wiring shared by every command that touches the stores:
// both stores, a running notifier, and the orchestrator over them.
type runtime struct {
	cfg      config.Config
	orch     *orchestrator.Orchestrator
	notifier *notify.Notifier

	closers []func() error
	done    chan error
}

// runtimeOptions selects how openRuntime wires the stores and events.
type runtimeOptions struct {
	// memory uses in-memory stores instead of SQLite.
	memory bool

	// sink receives published events; nil means notify.LogSink.
	sink notify.Sink
}

// loadConfig reads the environment, applies the global flag overrides and
// then any command-specific ones, and validates the result once.
func loadConfig(opts *RootOptions, overrides ...func(*config.Config)) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.SchemaDB != "" {
		cfg.SchemaDB = opts.SchemaDB
	}
	if opts.PropertyDB != "" {
		cfg.PropertyDB = opts.PropertyDB
	}
	for _, override := range overrides {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openRuntime opens the stores and starts the notifier. Close must be
// called to drain pending events and close the stores.
func openRuntime(ctx context.Context, cfg config.Config, ro runtimeOptions) (*runtime, error) {
	rt := &runtime{cfg: cfg, done: make(chan error, 1)}

	var (
		schemas orchestrator.AggregateStore
		props   orchestrator.PropertyStore
	)
	if ro.memory {
		slog.Warn("using in-memory stores; data is lost on exit")
		schemas = memory.NewSchemaStore(nil)
		props = memory.NewPropertyStore(nil)
	} else {
		for _, path := range []string{cfg.SchemaDB, cfg.PropertyDB} {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
			}
		}

		slog.Debug("opening schema store", "path", cfg.SchemaDB)
		ss, err := store.OpenSchemaStore(cfg.SchemaDB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open schema store", err)
		}
		rt.closers = append(rt.closers, ss.Close)

		slog.Debug("opening property store", "path", cfg.PropertyDB)
		ps, err := store.OpenPropertyStore(cfg.PropertyDB)
		if err != nil {
			rt.closeStores()
			return nil, WrapExitError(ExitCommandError, "failed to open property store", err)
		}
		rt.closers = append(rt.closers, ps.Close)

		schemas, props = ss, ps
	}

	sink := ro.sink
	if sink == nil {
		sink = notify.LogSink{}
	}
	rt.notifier = notify.New(sink,
		notify.WithQueueName(cfg.QueueName),
		notify.WithRetry(cfg.RetryPolicy()),
	)
	go func() {
		// The notifier outlives ctx so Close can drain it.
		rt.done <- rt.notifier.Run(context.WithoutCancel(ctx))
	}()

	rt.orch = orchestrator.New(schemas, props, rt.notifier,
		orchestrator.WithConcurrency(cfg.Concurrency),
		orchestrator.WithTracer(observability.Tracer("orchestrator")),
	)
	return rt, nil
}

// Close stops the notifier, waits for queued events to be delivered and
// closes the stores.
func (rt *runtime) Close() error {
	if n := rt.notifier.Pending(); n > 0 {
		slog.Debug("draining queued events", "pending", n)
	}
	rt.notifier.Stop()
	err := <-rt.done
	return errors.Join(err, rt.closeStores())
}

func (rt *runtime) closeStores() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
