package classloader

import (
	"context"
	"io/fs"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/featurekit/errors"
)

var (
	system     *StaticLoader
	systemOnce sync.Once
)

// System returns the process-wide root loader. It defines platform classes
// visible to every other loader.
func System() *StaticLoader {
	systemOnce.Do(func() {
		system = NewStaticLoader("system", nil, Config{})
	})
	return system
}

// StaticLoader defines Go classes registered at run time, static resources,
// and classes from code sources added later (installed modules).
type StaticLoader struct {
	parent    Loader
	classes   map[string]*Class
	resources map[string][][]byte
	space     *wasmSpace
	name      string
	sources   []*CodeSource
	libDirs   []string
	cfg       Config
	mu        sync.RWMutex
}

// NewStaticLoader creates a loader that falls back to parent.
func NewStaticLoader(name string, parent Loader, cfg Config) *StaticLoader {
	return &StaticLoader{
		name:      name,
		parent:    parent,
		cfg:       cfg,
		classes:   make(map[string]*Class),
		resources: make(map[string][][]byte),
	}
}

func (l *StaticLoader) Name() string {
	return l.name
}

func (l *StaticLoader) Parent() Loader {
	return l.parent
}

// Define registers a Go class. Defining a name twice is an error.
func (l *StaticLoader) Define(name string, factory Factory) (*Class, error) {
	if err := ValidateClassName(name); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.InvalidInput(errors.PhaseResolve, "nil factory for "+name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.classes[name]; exists {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Identity(l.name).
			Class(name).
			Detail("class already defined").
			Build()
	}
	c := NewClass(name, l, factory)
	l.classes[name] = c
	return c, nil
}

// AddResource appends a resource visible under name.
func (l *StaticLoader) AddResource(name string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resources[name] = append(l.resources[name], data)
}

// AddSource makes the classes and resources of src visible through this
// loader, after everything already defined.
func (l *StaticLoader) AddSource(src *CodeSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, src)
	Logger().Debug("code source added", zap.String("loader", l.name), zap.String("source", src.Name()))
}

// AddLibraryDir adds a directory searched by FindLibrary.
func (l *StaticLoader) AddLibraryDir(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.libDirs = append(l.libDirs, dir)
}

func (l *StaticLoader) LoadClass(ctx context.Context, name string) (*Class, error) {
	if err := ValidateClassName(name); err != nil {
		return nil, err
	}

	if l.parent != nil {
		c, err := l.parent.LoadClass(ctx, name)
		if err == nil {
			return c, nil
		}
		if !IsClassNotFound(err) {
			return nil, err
		}
	}

	l.mu.RLock()
	c, ok := l.classes[name]
	sources := l.sources
	l.mu.RUnlock()
	if ok {
		return c, nil
	}

	for _, src := range sources {
		code, err := src.ReadFile(classPath(name))
		if err != nil {
			continue
		}
		return l.defineModule(ctx, name, code), nil
	}

	return nil, errors.ClassNotFound(l.name, name, nil)
}

func (l *StaticLoader) defineModule(ctx context.Context, name string, code []byte) *Class {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.classes[name]; ok {
		return c
	}
	if l.space == nil {
		l.space = newWasmSpace(ctx, l.name, l.cfg)
	}
	c := moduleClass(l, l.space, name, code, l.link)
	l.classes[name] = c
	return c
}

func (l *StaticLoader) link(ctx context.Context, module string) error {
	return l.LoadLibrary(ctx, module)
}

func (l *StaticLoader) FindLibrary(name string) (string, error) {
	l.mu.RLock()
	dirs := l.libDirs
	l.mu.RUnlock()
	if p, ok := findLibraryIn(dirs, name); ok {
		return p, nil
	}
	return "", errors.LibraryNotFound(l.name, name)
}

// LoadLibrary instantiates a native library into this loader once.
func (l *StaticLoader) LoadLibrary(ctx context.Context, name string) error {
	p, err := l.FindLibrary(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	if l.space == nil {
		l.space = newWasmSpace(ctx, l.name, l.cfg)
	}
	space := l.space
	l.mu.Unlock()

	_, err = space.loadLibrary(ctx, name, p)
	return err
}

func (l *StaticLoader) Resources(name string) ([]Resource, error) {
	var out []Resource
	if l.parent != nil {
		res, err := l.parent.Resources(name)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}

	l.mu.RLock()
	static := l.resources[name]
	sources := l.sources
	l.mu.RUnlock()

	for _, data := range static {
		out = append(out, Resource{Name: name, Origin: l.name, Data: data})
	}
	for _, src := range sources {
		data, err := src.ReadFile(name)
		if err != nil {
			continue
		}
		out = append(out, Resource{Name: name, Origin: l.name, Data: data})
	}
	return out, nil
}

// Classes lists the names of classes defined directly by this loader.
func (l *StaticLoader) Classes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]struct{}, len(l.classes))
	for name := range l.classes {
		seen[name] = struct{}{}
	}
	for _, src := range l.sources {
		names, err := src.Classes()
		if err != nil {
			continue
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Assets returns the assets/ tree of the first source that has one.
func (l *StaticLoader) Assets() fs.FS {
	return l.subtree("assets")
}

// ResourceFS returns the res/ tree of the first source that has one.
func (l *StaticLoader) ResourceFS() fs.FS {
	return l.subtree("res")
}

func (l *StaticLoader) subtree(dir string) fs.FS {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, src := range l.sources {
		if st, err := fs.Stat(src.FS(), dir); err == nil && st.IsDir() {
			return src.Sub(dir)
		}
	}
	return emptyFS{}
}

// Close releases the runtime used by module classes, if one was created.
func (l *StaticLoader) Close(ctx context.Context) error {
	l.mu.Lock()
	space := l.space
	l.space = nil
	l.mu.Unlock()
	if space == nil {
		return nil
	}
	return space.close(ctx)
}
