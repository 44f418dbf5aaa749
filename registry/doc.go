// Package registry provides a process-wide cache of expensive values keyed by
// package identity and held through weak pointers.
//
// A cached value stays reusable for as long as anything else holds it, and is
// reclaimed by the garbage collector once nothing does. A later Resolve for
// the same key then builds a fresh value instead of returning a dead one.
//
// Construction for a key is single-flight: concurrent callers that miss
// share one build, and the result is published exactly once. The map lock is
// held only for the lookup and the publish, never across the build.
//
// Retain pins a value with a strong reference when a caller needs resources
// tied to it (loaded native libraries, for example) to survive between calls
// that would otherwise drop every reference.
package registry
