// Package execctx provides the execution contexts handed to package code.
//
// A Context is a read-only view of resources, assets, a class loader and
// host state. The host application is a Host; screens with a lifecycle are
// Screens. Foreign package code receives a context built by WrapPackage,
// which answers resource and class questions from the package and
// everything else from the host.
package execctx
