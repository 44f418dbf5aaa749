package featurekit

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/pkgmeta"
	"github.com/wippyai/featurekit/registry"
	"github.com/wippyai/featurekit/service"
)

// Factory creates Loaders using different code-loading strategies.
type Factory struct {
	index   pkgmeta.Index
	primary classloader.Loader
	system  classloader.Loader
	loaders *registry.Registry[classloader.PathLoader]
	logger  *zap.Logger
	runtime classloader.Config
}

// Option configures a Factory.
type Option func(*factoryOptions)

type factoryOptions struct {
	system   classloader.Loader
	logger   *zap.Logger
	registry []registry.Option
	runtime  classloader.Config
}

// WithSystemLoader sets the fallback parent of package loaders.
// classloader.System is used by default.
func WithSystemLoader(l classloader.Loader) Option {
	return func(o *factoryOptions) {
		o.system = l
	}
}

// WithRuntime configures the wazero runtime of package loaders.
func WithRuntime(cfg classloader.Config) Option {
	return func(o *factoryOptions) {
		o.runtime = cfg
	}
}

// WithRegistryOptions passes options to the loader registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *factoryOptions) {
		o.registry = append(o.registry, opts...)
	}
}

// WithLogger sets the logger for the factory and its loader registry.
func WithLogger(l *zap.Logger) Option {
	return func(o *factoryOptions) {
		o.logger = l
	}
}

// NewFactory creates a factory resolving packages through index. primary
// is the host loader, consulted before a package's own code.
func NewFactory(index pkgmeta.Index, primary classloader.Loader, opts ...Option) *Factory {
	o := factoryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.system == nil {
		o.system = classloader.System()
	}
	if o.logger == nil {
		o.logger = Logger()
	}
	if primary == nil {
		primary = o.system
	}

	f := &Factory{
		index:   index,
		primary: primary,
		system:  o.system,
		logger:  o.logger,
		runtime: o.runtime,
	}
	f.loaders = registry.New[classloader.PathLoader](f.buildLoader, append([]registry.Option{registry.WithLogger(o.logger)}, o.registry...)...)
	return f
}

func (f *Factory) buildLoader(ctx context.Context, identity string) (*classloader.PathLoader, error) {
	info, err := f.index.Lookup(ctx, identity)
	if err != nil {
		return nil, err
	}
	return classloader.NewPathLoader(ctx, classloader.PathConfig{
		Primary:    f.primary,
		Fallback:   f.system,
		Name:       info.Identity,
		SourcePath: info.SourceDir,
		LibraryDir: info.NativeLibraryDir,
		Runtime:    f.runtime,
	})
}

// PackageLoader returns a Loader for the feature implementation installed
// as package identity. ok is false, with a nil error, when the package is
// not installed.
//
// Each Load reuses the package's live code-loading context or builds a new
// one, so native libraries the package loaded stay loaded while anything
// the feature created is still reachable.
func (f *Factory) PackageLoader(ctx context.Context, host execctx.Context, identity string) (Loader, bool, error) {
	info, err := f.index.Lookup(ctx, identity)
	if stderrors.Is(err, pkgmeta.ErrNotInstalled) {
		f.logger.Debug("feature package not installed", zap.String("package", identity))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	base, err := execctx.NewPackage(info, host)
	if err != nil {
		return nil, false, err
	}

	return LoaderFunc(func(ctx context.Context) (Feature, error) {
		pl, err := f.loaders.Resolve(ctx, identity)
		if err != nil {
			return nil, err
		}

		var pkgCtx execctx.Context = execctx.WrapPackage(base, pl, host)
		if owner, ok := host.(execctx.LifecycleOwner); ok {
			pkgCtx = execctx.WithLifecycle(pkgCtx, owner)
		}

		f.logger.Debug("loading feature from package",
			zap.String("package", identity),
			zap.String("version", info.Version))
		return f.ServiceLoaderFor(pkgCtx, pl).Load(ctx)
	}), true, nil
}

// ServiceLoader returns a Loader discovering the feature through the host
// loader, which sees dynamically installed modules.
func (f *Factory) ServiceLoader(host execctx.Context) Loader {
	return f.ServiceLoaderFor(host, f.primary)
}

// ServiceLoaderFor returns a Loader discovering the feature through l and
// attaching it to ctx. Load fails with an error matching
// service.ErrDiscoveryExhausted when nothing implements Contract.
func (f *Factory) ServiceLoaderFor(ctx execctx.Context, l classloader.Loader) Loader {
	return LoaderFunc(func(c context.Context) (Feature, error) {
		feature, err := service.Load[Feature](c, l, Contract, adaptFeature)
		if err != nil {
			return nil, err
		}
		attached := feature.Attach(ctx)
		if attached == nil {
			return nil, errors.New(errors.PhaseAttach, errors.KindInvalidInput).
				Identity(l.Name()).
				Detail("Attach returned nil").
				Build()
		}
		f.logger.Debug("feature attached",
			zap.String("loader", l.Name()),
			zap.String("context", ctx.PackageName()))
		return attached, nil
	})
}

// Retain pins the code-loading context of identity until Release.
func (f *Factory) Retain(ctx context.Context, identity string) error {
	_, err := f.loaders.Retain(ctx, identity)
	return err
}

// Release drops a pin taken by Retain.
func (f *Factory) Release(identity string) bool {
	return f.loaders.Release(identity)
}

// LoaderStats reports registry activity.
func (f *Factory) LoaderStats() registry.Stats {
	return f.loaders.Stats()
}

// PrimaryLoader returns the host loader.
func (f *Factory) PrimaryLoader() classloader.Loader {
	return f.primary
}
