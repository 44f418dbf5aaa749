// Package featurekit discovers and loads an optional feature that ships
// separately from the host application.
//
// The feature may live in a separately installed package, in a module
// installed into the host at run time, or nowhere. Factory picks the
// strategy:
//
//	f := featurekit.NewFactory(index, hostLoader)
//	loader, ok, err := f.PackageLoader(ctx, screen, "com.example.plugin")
//	if err != nil {
//	    return err
//	}
//	if !ok {
//	    loader = f.ServiceLoader(screen) // installed module or nothing
//	}
//	feature, err := loader.Load(ctx)
//
// # Architecture Overview
//
//	featurekit/        Feature contract, Loader, Factory and the wasm binding
//	├── pkgmeta/       Installed package metadata (package.yaml)
//	├── registry/      Weak, single-flight cache of code-loading contexts
//	├── classloader/   Class and native library resolution over wazero
//	├── execctx/       Execution contexts, wrappers and lifecycles
//	├── service/       META-INF/services discovery
//	├── session/       Processing sessions built by a feature
//	├── defaultfeature/  Feature implementation delegating to session
//	├── split/         Dynamic module installation
//	├── host/          Host-side install flow
//	├── config/        Environment configuration
//	├── errors/        Structured error types
//	└── cmd/featurectl/  Command-line front end
//
// # Package loading
//
// PackageLoader returns ok == false when the package is not installed; that
// is an expected outcome, not an error. Otherwise the returned Loader, on
// each Load, reuses or builds the package's code-loading context through the
// registry, wraps the host context so the package sees its own resources and
// classes but the host's state and lifecycle, discovers the Contract
// implementation, and attaches it.
//
// Package code-loading contexts are cached weakly by identity. At most one
// is live per identity, so a native library is never loaded twice.
package featurekit
