package main

import (
	"context"

	"github.com/fxnlabs/kernel-cache/fixtures"
	"github.com/fxnlabs/kernel-cache/internal/backend"
	"github.com/fxnlabs/kernel-cache/internal/cache"
	"github.com/fxnlabs/kernel-cache/internal/config"
	"github.com/fxnlabs/kernel-cache/internal/gpu"
	"github.com/fxnlabs/kernel-cache/internal/handle"
	"github.com/fxnlabs/kernel-cache/internal/kerndb"
	"github.com/fxnlabs/kernel-cache/internal/solver"
	"github.com/fxnlabs/kernel-cache/internal/solver/conv"
	"github.com/fxnlabs/kernel-cache/internal/solver/groupnorm"
	"github.com/fxnlabs/kernel-cache/internal/target"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	m, err := gpu.NewManager(log, gpu.SimConfig{
		Arch:         cfg.Device.Name,
		Features:     cfg.Device.Features,
		ComputeUnits: cfg.Device.ComputeUnits,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return m.Cleanup() },
	})
	return m, nil
}

func newTarget(m *gpu.Manager) target.Properties {
	return target.FromDevice(m.GetDeviceInfo())
}

func newPaths(cfg *config.Config, log *zap.Logger) (cache.Paths, error) {
	return cache.Once(cfg.Cache, log)
}

func newEmbedded(cfg *config.Config) (kerndb.Embedded, error) {
	if !cfg.Cache.EmbedSystemDB {
		return nil, nil
	}
	return kerndb.LoadEmbedded(fixtures.EmbeddedDB)
}

func newBinaryCache(cfg *config.Config, paths cache.Paths, embedded kerndb.Embedded, log *zap.Logger) cache.BinaryCache {
	return cache.NewBinaryCache(cfg.Cache, paths, log, kerndb.WithEmbedded(embedded), kerndb.WithLogger(log))
}

func newHandle(m *gpu.Manager, binaries cache.BinaryCache, log *zap.Logger) *handle.Handle {
	return handle.New(m.GetDevice(), gpu.NewSimCompiler(""), binaries, log, handle.WithProfiling(true))
}

func newPerfDB(t target.Properties, paths cache.Paths, embedded kerndb.Embedded, log *zap.Logger) *solver.PerfDB {
	store := kerndb.Open(t, paths.User, paths.System, kerndb.PerfExt, kerndb.WithEmbedded(embedded), kerndb.WithLogger(log))
	return solver.NewPerfDB(store, log)
}

func newLibrary(m *gpu.Manager) backend.Library {
	return backend.NewSynthetic(m.GetDevice())
}

func newRegistry(perf *solver.PerfDB, lib backend.Library, log *zap.Logger) *solver.Registry {
	return solver.NewRegistry(perf, log,
		conv.NewImplicitGemm3DGroupFwd(lib),
		groupnorm.Forward{},
	)
}

func newExecutionContext(h *handle.Handle, cfg *config.Config, log *zap.Logger) *solver.ExecutionContext {
	return solver.NewExecutionContext(h, cfg, log)
}

// provide is the runtime graph shared by every command.
func provide(st *state) fx.Option {
	return fx.Options(
		fx.Supply(st.cfg, st.log),
		fx.Provide(
			newManager,
			newTarget,
			newPaths,
			newEmbedded,
			newBinaryCache,
			newHandle,
			newPerfDB,
			newLibrary,
			newRegistry,
			newExecutionContext,
		),
	)
}

// withRuntime builds the graph, populates targets and starts the app. The returned
// stop runs the lifecycle shutdown hooks.
func withRuntime(ctx context.Context, st *state, targets ...any) (stop func() error, err error) {
	app := fx.New(
		fx.NopLogger,
		provide(st),
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return func() error { return app.Stop(context.Background()) }, nil
}
