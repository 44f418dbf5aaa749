package classloader

import (
	"context"
	"io"
	"io/fs"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/featurekit/errors"
)

// PathConfig describes the package a PathLoader serves.
type PathConfig struct {
	// Primary is consulted for classes before the package's own code,
	// typically the host application's loader.
	Primary Loader
	// Fallback is the parent loader, consulted first; System when nil.
	Fallback Loader
	// Source holds the package code and stays owned by the caller. When nil,
	// SourcePath is opened and closed with the loader.
	Source *CodeSource
	// Name is the package identity.
	Name       string
	SourcePath string
	LibraryDir string
	Runtime    Config
}

// PathLoader loads classes, resources and native libraries from one
// installed package, resolving classes through its fallback parent, then
// its primary loader, then the package code.
type PathLoader struct {
	primary  Loader
	parent   Loader
	source   *CodeSource
	space    *wasmSpace
	classes  map[string]*Class
	name     string
	libDir   string
	mu       sync.Mutex
	closeErr error
	closed   sync.Once
}

// NewPathLoader creates a loader for one package. It owns a new wazero
// runtime which is released by Close or once the loader is unreachable.
func NewPathLoader(ctx context.Context, cfg PathConfig) (*PathLoader, error) {
	if cfg.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "loader name cannot be empty")
	}

	src := cfg.Source
	var closers []io.Closer
	if src == nil {
		opened, err := OpenSource(cfg.SourcePath)
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Identity = cfg.Name
			}
			return nil, err
		}
		src = opened
		closers = append(closers, opened)
	}

	parent := cfg.Fallback
	if parent == nil {
		parent = System()
	}

	l := &PathLoader{
		primary: cfg.Primary,
		parent:  parent,
		source:  src,
		classes: make(map[string]*Class),
		name:    cfg.Name,
		libDir:  cfg.LibraryDir,
	}
	l.space = newWasmSpace(ctx, cfg.Name, cfg.Runtime, closers...)

	Logger().Debug("code-loading context created",
		zap.String("loader", cfg.Name),
		zap.String("source", src.Name()),
		zap.String("libraries", cfg.LibraryDir))
	return l, nil
}

func (l *PathLoader) Name() string {
	return l.name
}

// Parent returns the fallback loader.
func (l *PathLoader) Parent() Loader {
	return l.parent
}

// Primary returns the loader consulted before the package's own code.
func (l *PathLoader) Primary() Loader {
	return l.primary
}

// Source returns the package's code source.
func (l *PathLoader) Source() *CodeSource {
	return l.source
}

func (l *PathLoader) LoadClass(ctx context.Context, name string) (*Class, error) {
	if err := ValidateClassName(name); err != nil {
		return nil, err
	}

	l.mu.Lock()
	c, ok := l.classes[name]
	l.mu.Unlock()
	if ok {
		return c, nil
	}

	for _, delegate := range []Loader{l.parent, l.primary} {
		if delegate == nil {
			continue
		}
		c, err := delegate.LoadClass(ctx, name)
		if err == nil {
			return c, nil
		}
		if !IsClassNotFound(err) {
			return nil, err
		}
	}

	code, err := l.source.ReadFile(classPath(name))
	if err != nil {
		return nil, errors.ClassNotFound(l.name, name, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.classes[name]; ok {
		return c, nil
	}
	c = moduleClass(l, l.space, name, code, l.link)
	l.classes[name] = c
	return c, nil
}

func (l *PathLoader) link(ctx context.Context, module string) error {
	_, err := l.LoadLibrary(ctx, module)
	return err
}

func (l *PathLoader) FindLibrary(name string) (string, error) {
	if p, ok := findLibraryIn([]string{l.libDir}, name); ok {
		return p, nil
	}
	return "", errors.LibraryNotFound(l.name, name)
}

// LoadLibrary instantiates a native library from the package once and
// returns its module name. Loading a library file already owned by another
// live loader fails.
func (l *PathLoader) LoadLibrary(ctx context.Context, name string) (string, error) {
	p, err := l.FindLibrary(name)
	if err != nil {
		return "", err
	}
	m, err := l.space.loadLibrary(ctx, name, p)
	if err != nil {
		return "", err
	}
	return m.Name(), nil
}

// LibraryLoaded reports whether a native library is loaded.
func (l *PathLoader) LibraryLoaded(name string) bool {
	return l.space.library(name) != nil
}

// Resources returns matching resources from the fallback parent and then
// from the package's own source. The primary loader is not consulted.
func (l *PathLoader) Resources(name string) ([]Resource, error) {
	var out []Resource
	if l.parent != nil {
		res, err := l.parent.Resources(name)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	if data, err := l.source.ReadFile(name); err == nil {
		out = append(out, Resource{Name: name, Origin: l.name, Data: data})
	}
	return out, nil
}

// Assets returns the package's assets/ tree.
func (l *PathLoader) Assets() fs.FS {
	return l.source.Sub("assets")
}

// ResourceFS returns the package's res/ tree.
func (l *PathLoader) ResourceFS() fs.FS {
	return l.source.Sub("res")
}

// Close releases the runtime and the code source. Classes and objects from
// this loader become unusable.
func (l *PathLoader) Close(ctx context.Context) error {
	l.closed.Do(func() {
		l.closeErr = l.space.close(ctx)
		if err := l.source.Close(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
	})
	return l.closeErr
}
