package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/featurekit"
	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/config"
	"github.com/wippyai/featurekit/defaultfeature"
	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/host"
	"github.com/wippyai/featurekit/internal/logging"
	"github.com/wippyai/featurekit/pkgmeta"
	"github.com/wippyai/featurekit/registry"
	"github.com/wippyai/featurekit/split"
)

// app holds the components every command shares.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *prometheus.Registry
	index    *pkgmeta.DirIndex
	primary  *classloader.StaticLoader
	host     *execctx.Host
	factory  *featurekit.Factory
	modules  *split.Local
	cache    wazero.CompilationCache
	splitMet *split.Metrics
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: prometheus.NewRegistry(),
		index:   pkgmeta.NewDirIndex(cfg.Packages.Dir),
	}
	logging.Install(logger)

	rt := classloader.Config{
		MemoryLimitPages: cfg.Runtime.MemoryLimitPages,
		WASI:             cfg.Runtime.WASI,
	}
	if cfg.Runtime.CompilationCache {
		cache, err := wazero.NewCompilationCacheWithDir(filepath.Join(cfg.Runtime.CacheDir, "wasm"))
		if err != nil {
			logger.Warn("compilation cache disabled", zap.Error(err))
		} else {
			a.cache = cache
			rt.CompilationCache = cache
		}
	}

	a.primary = classloader.NewStaticLoader(cfg.Host.Name, classloader.System(), rt)
	if err := defaultfeature.Register(a.primary); err != nil {
		return nil, err
	}

	hostCfg := execctx.HostConfig{
		Loader:       a.primary,
		Name:         cfg.Host.Name,
		Capabilities: cfg.Host.Capabilities,
	}
	if cfg.Host.Assets != "" {
		hostCfg.Assets = os.DirFS(cfg.Host.Assets)
	}
	a.host = execctx.NewHost(hostCfg)

	a.factory = featurekit.NewFactory(a.index, a.primary,
		featurekit.WithRuntime(rt),
		featurekit.WithLogger(logger.Named("featurekit")),
		featurekit.WithRegistryOptions(
			registry.WithMetrics(registry.NewMetrics(a.metrics)),
			registry.WithLogger(logger.Named("registry")),
		),
	)
	a.splitMet = split.NewMetrics(a.metrics)
	return a, nil
}

// moduleManager opens the split module manager on first use so commands
// that never install do not create the install directory.
func (a *app) moduleManager() (*split.Local, error) {
	if a.modules != nil {
		return a.modules, nil
	}
	m, err := split.NewLocal(split.LocalConfig{
		Target:     a.primary,
		Metrics:    a.splitMet,
		Logger:     a.logger.Named("split"),
		Catalog:    a.cfg.Modules.Catalog,
		InstallDir: a.cfg.Modules.InstallDir,
	})
	if err != nil {
		return nil, err
	}
	a.modules = m
	return m, nil
}

func (a *app) installer(view host.View) (*host.Installer, error) {
	m, err := a.moduleManager()
	if err != nil {
		return nil, err
	}
	return host.NewInstaller(a.factory, m, a.host, view, host.Config{
		PluginPackage: a.cfg.Feature.Plugin,
		FeatureModule: a.cfg.Feature.Module,
		PreviewAsset:  a.cfg.Feature.Preview,
		CacheDir:      a.cfg.Runtime.CacheDir,
		LensGroup:     a.cfg.Feature.LensGroup,
		Target:        "preview",
	}, host.WithLogger(a.logger.Named("host"))), nil
}

// writeMetrics dumps the registry in the Prometheus text format.
func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.metrics.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.modules != nil {
		if err := a.modules.Close(); err != nil {
			a.logger.Warn("close module manager", zap.Error(err))
		}
	}
	if err := a.primary.Close(ctx); err != nil {
		a.logger.Warn("close host loader", zap.Error(err))
	}
	if a.cache != nil {
		_ = a.cache.Close(ctx)
	}
	_ = a.logger.Sync()
}
