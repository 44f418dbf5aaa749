// Package errors provides structured error types for featurekit.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the package identity and class name that
// were being resolved, plus the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindClassNotFound).
//		Identity("com.example.plugin").
//		Class("com.example.plugin.FeatureImpl").
//		Detail("not visible to host or package code").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotInstalled("com.example.plugin")
//	err := errors.DiscoveryExhausted("com.example.Feature")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
