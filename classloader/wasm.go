package classloader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/featurekit/errors"
)

// Config tunes the wazero runtime each loader creates.
type Config struct {
	// CompilationCache is shared between runtimes when set, so rebuilding a
	// reclaimed loader does not recompile its modules.
	CompilationCache wazero.CompilationCache

	// MemoryLimitPages caps linear memory per module in 64KiB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32

	// WASI serves wasi_snapshot_preview1 imports from the host instead of
	// looking for a native library of that name.
	WASI bool
}

func (c Config) runtimeConfig() wazero.RuntimeConfig {
	rc := wazero.NewRuntimeConfig()
	if c.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.CompilationCache != nil {
		rc = rc.WithCompilationCache(c.CompilationCache)
	}
	return rc
}

// natives tracks which live space owns each native library file.
var natives = struct {
	owners map[string]nativeOwner
	mu     sync.Mutex
}{owners: make(map[string]nativeOwner)}

type nativeOwner struct {
	space weak.Pointer[wasmSpace]
	name  string
}

func claimLibrary(path string, s *wasmSpace) error {
	natives.mu.Lock()
	defer natives.mu.Unlock()

	if o, ok := natives.owners[path]; ok {
		if live := o.space.Value(); live != nil && live != s && !live.closed.Load() {
			return errors.New(errors.PhaseLink, errors.KindUnsupported).
				Identity(s.owner).
				Path(path).
				Detail("native library already loaded by %s", o.name).
				Build()
		}
	}
	natives.owners[path] = nativeOwner{space: weak.Make(s), name: s.owner}
	return nil
}

// releaseLibraries drops ownership entries whose space is gone or is s.
func releaseLibraries(paths []string, s *wasmSpace) {
	natives.mu.Lock()
	defer natives.mu.Unlock()
	for _, p := range paths {
		o, ok := natives.owners[p]
		if !ok {
			continue
		}
		if live := o.space.Value(); live == nil || live == s {
			delete(natives.owners, p)
		}
	}
}

// libraryPaths is shared with the space's cleanup so the cleanup can
// release ownership without referencing the space.
type libraryPaths struct {
	paths []string
	mu    sync.Mutex
}

func (lp *libraryPaths) add(p string) {
	lp.mu.Lock()
	lp.paths = append(lp.paths, p)
	lp.mu.Unlock()
}

func (lp *libraryPaths) snapshot() []string {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]string(nil), lp.paths...)
}

type spaceResources struct {
	runtime wazero.Runtime
	paths   *libraryPaths
	closers []io.Closer
	owner   string
}

func releaseSpace(res spaceResources) {
	if err := res.runtime.Close(context.Background()); err != nil {
		Logger().Warn("close reclaimed runtime", zap.String("loader", res.owner), zap.Error(err))
	}
	for _, c := range res.closers {
		_ = c.Close()
	}
	releaseLibraries(res.paths.snapshot(), nil)
	Logger().Debug("code-loading context reclaimed", zap.String("loader", res.owner))
}

// wasmSpace is a wazero runtime plus the classes and libraries loaded into it.
type wasmSpace struct {
	runtime  wazero.Runtime
	compiled map[string]wazero.CompiledModule
	libs     map[string]api.Module
	paths    *libraryPaths
	owner    string
	mu       sync.Mutex
	closed   atomic.Bool
	wasi     bool
}

func newWasmSpace(ctx context.Context, owner string, cfg Config, closers ...io.Closer) *wasmSpace {
	s := &wasmSpace{
		runtime:  wazero.NewRuntimeWithConfig(ctx, cfg.runtimeConfig()),
		compiled: make(map[string]wazero.CompiledModule),
		libs:     make(map[string]api.Module),
		paths:    &libraryPaths{},
		owner:    owner,
		wasi:     cfg.WASI,
	}
	runtime.AddCleanup(s, releaseSpace, spaceResources{
		runtime: s.runtime,
		paths:   s.paths,
		closers: closers,
		owner:   owner,
	})
	return s
}

func (s *wasmSpace) compile(ctx context.Context, key string, code []byte) (wazero.CompiledModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, errors.Closed(s.owner)
	}
	if c, ok := s.compiled[key]; ok {
		return c, nil
	}
	c, err := s.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, err
	}
	s.compiled[key] = c
	return c, nil
}

// loadLibrary instantiates the library at path under name once.
func (s *wasmSpace) loadLibrary(ctx context.Context, name, path string) (api.Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, errors.Closed(s.owner)
	}
	if m, ok := s.libs[name]; ok {
		return m, nil
	}
	if err := claimLibrary(path, s); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		releaseLibraries([]string{path}, s)
		return nil, errors.Load(s.owner, "read library "+name, err)
	}
	compiled, err := s.runtime.CompileModule(ctx, data)
	if err != nil {
		releaseLibraries([]string{path}, s)
		return nil, errors.New(errors.PhaseLink, errors.KindInstantiation).
			Identity(s.owner).Path(path).Cause(err).Detail("compile library %s", name).Build()
	}
	m, err := s.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		releaseLibraries([]string{path}, s)
		return nil, errors.New(errors.PhaseLink, errors.KindInstantiation).
			Identity(s.owner).Path(path).Cause(err).Detail("instantiate library %s", name).Build()
	}

	s.libs[name] = m
	s.paths.add(path)
	Logger().Debug("native library loaded",
		zap.String("loader", s.owner),
		zap.String("library", name),
		zap.String("path", path))
	return m, nil
}

func (s *wasmSpace) library(name string) api.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.libs[name]
}

func (s *wasmSpace) close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.runtime.Close(ctx)
	releaseLibraries(s.paths.snapshot(), s)
	return err
}

// linkFunc makes an imported module name available before instantiation.
type linkFunc func(ctx context.Context, module string) error

// moduleClass defines a class backed by a wasm module in space.
func moduleClass(l Loader, s *wasmSpace, name string, code []byte, link linkFunc) *Class {
	c := &Class{name: name, loader: l}
	c.factory = func(ctx context.Context) (any, error) {
		compiled, err := s.compile(ctx, name, code)
		if err != nil {
			return nil, err
		}

		for _, mod := range importedModules(compiled) {
			if s.runtime.Module(mod) != nil {
				continue
			}
			if mod == WASIModule && s.wasi {
				if err := s.initWASI(ctx); err != nil {
					return nil, err
				}
				continue
			}
			if err := link(ctx, mod); err != nil {
				return nil, err
			}
		}

		m, err := s.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
		if err != nil {
			return nil, err
		}
		return &Object{module: m, compiled: compiled, class: c}, nil
	}
	return c
}

func importedModules(compiled wazero.CompiledModule) []string {
	seen := make(map[string]struct{})
	var mods []string
	add := func(mod string) {
		if _, ok := seen[mod]; ok {
			return
		}
		seen[mod] = struct{}{}
		mods = append(mods, mod)
	}
	for _, def := range compiled.ImportedFunctions() {
		mod, _, _ := def.Import()
		add(mod)
	}
	for _, def := range compiled.ImportedMemories() {
		mod, _, _ := def.Import()
		add(mod)
	}
	return mods
}

// findLibraryIn looks for <name>.wasm directly in each dir, then anywhere
// below it.
func findLibraryIn(dirs []string, name string) (string, bool) {
	if err := ValidateClassName(name); err != nil {
		return "", false
	}
	file := name + ".wasm"
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		direct := filepath.Join(dir, file)
		if st, err := os.Stat(direct); err == nil && !st.IsDir() {
			return direct, true
		}
		matches, err := doublestar.Glob(os.DirFS(dir), "**/"+file)
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		return filepath.Join(dir, filepath.FromSlash(matches[0])), true
	}
	return "", false
}

// Object is an instance of a package class.
type Object struct {
	module   api.Module
	compiled wazero.CompiledModule
	class    *Class
}

// Class returns the class the object was created from.
func (o *Object) Class() *Class {
	return o.class
}

// Exports returns the sorted names of exported functions.
func (o *Object) Exports() []string {
	defs := o.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether the object exports a function named fn.
func (o *Object) HasExport(fn string) bool {
	_, ok := o.compiled.ExportedFunctions()[fn]
	return ok
}

// Call invokes an exported function with raw core wasm values.
func (o *Object) Call(ctx context.Context, fn string, params ...uint64) ([]uint64, error) {
	f := o.module.ExportedFunction(fn)
	if f == nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Identity(o.class.loader.Name()).
			Class(o.class.name).
			Detail("function %q not exported", fn).
			Build()
	}
	return f.Call(ctx, params...)
}

// Close releases the instance. The class and its loader stay usable.
func (o *Object) Close(ctx context.Context) error {
	return o.module.Close(ctx)
}
