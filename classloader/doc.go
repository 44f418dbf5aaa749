// Package classloader resolves class names and native library names for one
// package of foreign code.
//
// A Loader is the Go rendition of a code-loading context. Classes come in two
// forms:
//
//   - Go classes, registered by name with a factory on a StaticLoader. The
//     host application and the process-wide System loader use these.
//   - Package classes, WebAssembly modules stored as classes/<name>.wasm in a
//     code source (a directory or zip archive). Each New instantiates the
//     module anonymously into the loader's wazero runtime and returns an
//     *Object.
//
// Native libraries are WebAssembly modules found in a package's native
// library directory. A library is instantiated under its own name at most once
// per loader, and a given library file may be owned by only one live loader
// at a time. Class modules that import a library by module name get it loaded
// on demand.
//
// # Resolution order
//
// PathLoader delegates class lookups to its fallback parent (usually
// System), then to the primary loader (usually the host), and only then to
// the package's own code. Resource enumeration covers the fallback parent and
// the package's own sources, which keeps host service registrations from
// shadowing a package's.
//
// # Lifetime
//
// A PathLoader owns a wazero runtime. The runtime is closed by a runtime
// cleanup once the loader is unreachable, or explicitly by Close.
package classloader
