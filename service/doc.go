// Package service discovers implementations of a contract through a loader.
//
// A package registers an implementation by shipping the resource
// META-INF/services/<contract>, a text file with one implementation class
// name per line. Blank lines and text after '#' are ignored. Find
// instantiates the first registration visible through the loader, looking
// at the loader's parents before the package itself.
//
// Table builds the same registrations in memory, for host loaders and
// tests.
package service
