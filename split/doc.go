// Package split installs feature modules into a running host.
//
// A module is a code source (a directory or zip archive) holding service
// registrations, classes and assets. Installing a module makes its code
// source visible through the host loader, so discovery through the host
// loader starts finding what the module registers.
//
// Installation is asynchronous. StartInstall returns a Task at once and
// listeners observe each task move through Pending, Downloading and
// Installing to Installed, Failed or Canceled. All states of a task are
// delivered from a single goroutine, in order.
package split
