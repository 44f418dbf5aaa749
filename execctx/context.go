package execctx

import (
	"io/fs"
	"slices"

	"github.com/gabriel-vasile/mimetype"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/pkgmeta"
)

// Context is the environment code runs in.
type Context interface {
	// PackageName is the identity of the package whose resources the
	// context exposes.
	PackageName() string
	Info() *pkgmeta.Info
	ClassLoader() classloader.Loader
	// Resources is the res/ tree.
	Resources() fs.FS
	// Assets is the assets/ tree.
	Assets() fs.FS
	OpenAsset(name string) (*Asset, error)
	Application() Application
	// Value returns host state stored under key, or nil.
	Value(key any) any
}

// Application is the process-wide context.
type Application interface {
	Context
	// ApplicationID identifies the running application.
	ApplicationID() string
	Capabilities() []string
}

// HasCapability reports whether app advertises capability.
func HasCapability(app Application, capability string) bool {
	if app == nil {
		return false
	}
	return slices.Contains(app.Capabilities(), capability)
}

// Asset is a file read from an assets tree.
type Asset struct {
	MIME *mimetype.MIME
	Name string
	Data []byte
}

// ContentType returns the detected media type, e.g. "image/png".
func (a *Asset) ContentType() string {
	if a.MIME == nil {
		return "application/octet-stream"
	}
	return a.MIME.String()
}

func openAsset(owner string, fsys fs.FS, name string) (*Asset, error) {
	if !fs.ValidPath(name) {
		return nil, errors.InvalidInput(errors.PhaseResolve, "invalid asset name "+name)
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Identity(owner).
			Path("assets", name).
			Cause(err).
			Detail("asset %q not found", name).
			Build()
	}
	return &Asset{Name: name, Data: data, MIME: mimetype.Detect(data)}, nil
}

type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
