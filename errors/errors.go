package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLookup   Phase = "lookup"   // package metadata query
	PhaseLoad     Phase = "load"     // code-loading context construction
	PhaseLink     Phase = "link"     // native library loading
	PhaseResolve  Phase = "resolve"  // class resolution
	PhaseDiscover Phase = "discover" // service discovery
	PhaseAttach   Phase = "attach"   // feature attachment
	PhaseInstall  Phase = "install"  // dynamic module install
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseSession  Phase = "session"  // session construction
)

// Kind categorizes the error
type Kind string

const (
	KindNotInstalled       Kind = "not_installed"
	KindClassNotFound      Kind = "class_not_found"
	KindLibraryNotFound    Kind = "library_not_found"
	KindDiscoveryExhausted Kind = "discovery_exhausted"
	KindInvalidManifest    Kind = "invalid_manifest"
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindTypeMismatch       Kind = "type_mismatch"
	KindInstantiation      Kind = "instantiation"
	KindUnsupported        Kind = "unsupported"
	KindClosed             Kind = "closed"
	KindIO                 Kind = "io"
)

// Error is the structured error type used throughout featurekit
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Identity string
	Class    string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Identity != "" {
		b.WriteString(" in ")
		b.WriteString(e.Identity)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "/"))
	}

	if e.Class != "" {
		b.WriteString(": class ")
		b.WriteString(e.Class)
	}

	if e.Detail != "" {
		if e.Class != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Identity sets the package identity
func (b *Builder) Identity(id string) *Builder {
	b.err.Identity = id
	return b
}

// Class sets the class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Path sets the resource path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns a matcher for errors.Is that ignores the phase.
func KindOf(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Convenience constructors for common error patterns

// NotInstalled creates an error for a package that is not present
func NotInstalled(identity string) *Error {
	return &Error{
		Phase:    PhaseLookup,
		Kind:     KindNotInstalled,
		Identity: identity,
		Detail:   "package is not installed",
	}
}

// ClassNotFound creates a class resolution error
func ClassNotFound(identity, class string, cause error) *Error {
	return &Error{
		Phase:    PhaseResolve,
		Kind:     KindClassNotFound,
		Identity: identity,
		Class:    class,
		Cause:    cause,
	}
}

// LibraryNotFound creates a native library lookup error
func LibraryNotFound(identity, library string) *Error {
	return &Error{
		Phase:    PhaseLink,
		Kind:     KindLibraryNotFound,
		Identity: identity,
		Detail:   fmt.Sprintf("library %q not found", library),
	}
}

// DiscoveryExhausted creates an error for a contract with no visible implementation
func DiscoveryExhausted(contract string) *Error {
	return &Error{
		Phase:  PhaseDiscover,
		Kind:   KindDiscoveryExhausted,
		Detail: fmt.Sprintf("no implementation registered for %s", contract),
	}
}

// InvalidManifest creates a manifest parsing error
func InvalidManifest(identity string, path string, cause error) *Error {
	return &Error{
		Phase:    PhaseLookup,
		Kind:     KindInvalidManifest,
		Identity: identity,
		Path:     []string{path},
		Cause:    cause,
	}
}

// TypeMismatch creates an error for an instance that does not satisfy a contract
func TypeMismatch(class, contract string, got any) *Error {
	return &Error{
		Phase:  PhaseDiscover,
		Kind:   KindTypeMismatch,
		Class:  class,
		Detail: fmt.Sprintf("%T does not implement %s", got, contract),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(identity, class string, cause error) *Error {
	return &Error{
		Phase:    PhaseResolve,
		Kind:     KindInstantiation,
		Identity: identity,
		Class:    class,
		Detail:   "instantiate module",
		Cause:    cause,
	}
}

// Load creates a code-loading context construction error
func Load(identity, detail string, cause error) *Error {
	return &Error{
		Phase:    PhaseLoad,
		Kind:     KindIO,
		Identity: identity,
		Detail:   detail,
		Cause:    cause,
	}
}

// Closed creates an error for use of a released loader
func Closed(identity string) *Error {
	return &Error{
		Phase:    PhaseLoad,
		Kind:     KindClosed,
		Identity: identity,
		Detail:   "code-loading context is closed",
	}
}

// Wrap wraps an error with phase and kind context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
