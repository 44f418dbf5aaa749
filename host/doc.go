// Package host drives feature installation from the host application's
// side.
//
// Installer tries, in order: the feature's separately installed plugin
// package, an already installed feature module, and finally installing the
// feature module. Once a Loader is available it loads the feature once,
// builds a session when the feature is supported, and reports progress
// through a View.
package host
