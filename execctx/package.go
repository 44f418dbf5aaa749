package execctx

import (
	"io"
	"io/fs"
	"runtime"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/pkgmeta"
)

// Package is the base context of an installed package: its resources and
// assets, with the host's application and state. It does not load the
// package's code.
type Package struct {
	info   *pkgmeta.Info
	source *classloader.CodeSource
	host   Context
}

// NewPackage opens the code source of info for resource access.
func NewPackage(info *pkgmeta.Info, host Context) (*Package, error) {
	src, err := classloader.OpenSource(info.SourceDir)
	if err != nil {
		return nil, err
	}
	p := &Package{info: info.Clone(), source: src, host: host}
	runtime.AddCleanup(p, closeSource, io.Closer(src))
	return p, nil
}

func closeSource(c io.Closer) {
	_ = c.Close()
}

func (p *Package) PackageName() string {
	return p.info.Identity
}

func (p *Package) Info() *pkgmeta.Info {
	return p.info
}

// ClassLoader returns the host's loader. Wrap the package with a package
// loader to reach its code.
func (p *Package) ClassLoader() classloader.Loader {
	return p.host.ClassLoader()
}

func (p *Package) Resources() fs.FS {
	return p.source.Sub("res")
}

func (p *Package) Assets() fs.FS {
	return p.source.Sub("assets")
}

func (p *Package) OpenAsset(name string) (*Asset, error) {
	return openAsset(p.info.Identity, p.Assets(), name)
}

func (p *Package) Application() Application {
	return p.host.Application()
}

func (p *Package) Value(key any) any {
	return p.host.Value(key)
}
