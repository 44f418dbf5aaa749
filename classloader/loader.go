package classloader

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/wippyai/featurekit/errors"
)

// ClassDir is the directory inside a code source that holds class modules.
const ClassDir = "classes"

// ErrClassNotFound matches class resolution failures from any loader.
var ErrClassNotFound = errors.KindOf(errors.KindClassNotFound)

// Loader resolves classes, native libraries and resources for one package.
type Loader interface {
	// Name identifies the loader, usually the package identity.
	Name() string

	// Parent returns the fallback loader, or nil for the root.
	Parent() Loader

	// LoadClass resolves a class by name. Failures match ErrClassNotFound
	// when no loader in the chain defines the class.
	LoadClass(ctx context.Context, name string) (*Class, error)

	// FindLibrary returns the path of a native library, or an error of kind
	// KindLibraryNotFound.
	FindLibrary(name string) (string, error)

	// Resources returns every resource with the given name visible through
	// the loader, parent entries first.
	Resources(name string) ([]Resource, error)
}

// Resource is a named blob read from a code source.
type Resource struct {
	Name string
	// Origin is the Name of the loader whose source held the resource.
	Origin string
	Data   []byte
}

// Factory creates a new instance of a class.
type Factory func(ctx context.Context) (any, error)

// Class is a resolved class bound to its defining loader.
type Class struct {
	loader  Loader
	factory Factory
	name    string
}

// NewClass binds a factory to a name and defining loader.
func NewClass(name string, loader Loader, factory Factory) *Class {
	return &Class{name: name, loader: loader, factory: factory}
}

func (c *Class) Name() string {
	return c.name
}

// Loader returns the loader that defined the class.
func (c *Class) Loader() Loader {
	return c.loader
}

// New creates an instance.
func (c *Class) New(ctx context.Context) (any, error) {
	v, err := c.factory(ctx)
	if err != nil {
		return nil, errors.Instantiation(c.loader.Name(), c.name, err)
	}
	return v, nil
}

// FindResource returns the first resource with the given name visible
// through l.
func FindResource(l Loader, name string) (*Resource, error) {
	res, err := l.Resources(name)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, errors.NotFound(errors.PhaseResolve, "resource", name)
	}
	return &res[0], nil
}

// IsClassNotFound reports whether err is a class resolution miss.
func IsClassNotFound(err error) bool {
	return stderrors.Is(err, ErrClassNotFound)
}

// ValidateClassName rejects names that cannot map onto a class file.
func ValidateClassName(name string) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseResolve, "class name cannot be empty")
	}
	if strings.ContainsAny(name, `/\ `) || strings.Contains(name, "..") {
		return errors.InvalidInput(errors.PhaseResolve, "invalid class name "+name)
	}
	return nil
}

// classPath maps a class name onto its module path in a code source.
func classPath(name string) string {
	return ClassDir + "/" + name + ".wasm"
}
