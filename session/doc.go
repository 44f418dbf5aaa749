// Package session is the feature's processing session: a builder bound to an
// execution context, media sources read from files, and the lens catalog a
// session exposes.
package session
