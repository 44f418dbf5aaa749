package execctx

import (
	"io/fs"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/pkgmeta"
)

// Wrapped is a package context whose classes come from a package loader
// and whose state and application come from the host.
type Wrapped struct {
	base   Context
	loader classloader.Loader
	host   Context
}

// WrapPackage combines the resources of base, the classes of loader and
// the state of host.
func WrapPackage(base Context, loader classloader.Loader, host Context) *Wrapped {
	return &Wrapped{base: base, loader: loader, host: host}
}

func (w *Wrapped) PackageName() string {
	return w.base.PackageName()
}

func (w *Wrapped) Info() *pkgmeta.Info {
	return w.base.Info()
}

func (w *Wrapped) ClassLoader() classloader.Loader {
	return w.loader
}

func (w *Wrapped) Resources() fs.FS {
	return w.base.Resources()
}

func (w *Wrapped) Assets() fs.FS {
	return w.base.Assets()
}

func (w *Wrapped) OpenAsset(name string) (*Asset, error) {
	return w.base.OpenAsset(name)
}

// Application returns the package view of the host application.
func (w *Wrapped) Application() Application {
	return &PackageApplication{pkg: w, app: w.host.Application()}
}

func (w *Wrapped) Value(key any) any {
	return w.host.Value(key)
}

// Host returns the context the package was attached to.
func (w *Wrapped) Host() Context {
	return w.host
}

// PackageApplication answers resource, asset, class loader and package
// questions from the package, and application identity, capabilities and
// state from the host application.
type PackageApplication struct {
	pkg Context
	app Application
}

func (a *PackageApplication) PackageName() string {
	return a.pkg.PackageName()
}

func (a *PackageApplication) Info() *pkgmeta.Info {
	return a.pkg.Info()
}

func (a *PackageApplication) ClassLoader() classloader.Loader {
	return a.pkg.ClassLoader()
}

func (a *PackageApplication) Resources() fs.FS {
	return a.pkg.Resources()
}

func (a *PackageApplication) Assets() fs.FS {
	return a.pkg.Assets()
}

func (a *PackageApplication) OpenAsset(name string) (*Asset, error) {
	return a.pkg.OpenAsset(name)
}

func (a *PackageApplication) Application() Application {
	return a
}

func (a *PackageApplication) ApplicationID() string {
	return a.app.ApplicationID()
}

func (a *PackageApplication) Capabilities() []string {
	return a.app.Capabilities()
}

func (a *PackageApplication) Value(key any) any {
	return a.app.Value(key)
}

// LifecycleContext is a context that also forwards its host's lifecycle,
// read-only.
type LifecycleContext struct {
	Context
	owner LifecycleOwner
}

// WithLifecycle makes ctx observe the lifecycle of owner.
func WithLifecycle(ctx Context, owner LifecycleOwner) *LifecycleContext {
	return &LifecycleContext{Context: ctx, owner: owner}
}

func (c *LifecycleContext) Lifecycle() Lifecycle {
	return readOnlyLifecycle{l: c.owner.Lifecycle()}
}

// Unwrap returns the wrapped context.
func (c *LifecycleContext) Unwrap() Context {
	return c.Context
}
