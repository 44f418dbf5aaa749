// Package pkgmeta answers the read-only question "is this package installed,
// and where does its code live".
//
// A package is identified by an opaque identity string. Its metadata names
// two locations: the source (a directory or zip archive holding classes,
// service registrations, resources and assets) and the native library
// directory (WebAssembly modules that are instantiated once per code-loading
// context).
//
// DirIndex reads packages installed under a root directory:
//
//	<root>/<identity>/package.yaml
//	<root>/<identity>/code/...        (or code.zip)
//	<root>/<identity>/lib/*.wasm
//
// A missing package is reported as ErrNotInstalled, which callers treat as an
// expected outcome rather than a failure.
package pkgmeta
