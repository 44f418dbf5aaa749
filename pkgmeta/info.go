package pkgmeta

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/wippyai/featurekit/errors"
)

// ManifestName is the file name of a package manifest inside its directory.
const ManifestName = "package.yaml"

const (
	defaultSourceDir  = "code"
	defaultSourceZip  = "code.zip"
	defaultLibraryDir = "lib"
)

// ErrNotInstalled matches any lookup of a package that is not present.
var ErrNotInstalled = &errors.Error{Phase: errors.PhaseLookup, Kind: errors.KindNotInstalled}

// Info describes an installed package.
type Info struct {
	Metadata         map[string]string `yaml:"metadata,omitempty"`
	Identity         string            `yaml:"identity"`
	Version          string            `yaml:"version,omitempty"`
	Label            string            `yaml:"label,omitempty"`
	SourceDir        string            `yaml:"source,omitempty"`
	NativeLibraryDir string            `yaml:"native_libraries,omitempty"`
	// Root is the directory the manifest was read from. Empty for
	// packages registered in memory.
	Root string `yaml:"-"`
}

// Index looks up installed packages by identity.
type Index interface {
	// Lookup returns the package metadata, or an error matching
	// ErrNotInstalled when the package is absent.
	Lookup(ctx context.Context, identity string) (*Info, error)
}

// Lister is implemented by indexes that can enumerate their packages.
type Lister interface {
	List(ctx context.Context) ([]*Info, error)
}

// ValidateIdentity checks that the identity is usable as a cache key and directory
// name.
func ValidateIdentity(identity string) error {
	switch {
	case identity == "":
		return errors.InvalidInput(errors.PhaseLookup, "package identity cannot be empty")
	case identity == "." || identity == "..":
		return errors.InvalidInput(errors.PhaseLookup, "invalid package identity "+identity)
	case strings.ContainsAny(identity, `/\`):
		return errors.InvalidInput(errors.PhaseLookup, "package identity cannot contain path separators: "+identity)
	}
	return nil
}

// checkLookup maps an identity no package can have to a not-installed
// error, so lookups never fail on malformed names.
func checkLookup(identity string) error {
	if err := ValidateIdentity(identity); err != nil {
		e := errors.NotInstalled(identity)
		e.Cause = err
		return e
	}
	return nil
}

// resolvePaths makes SourceDir and NativeLibraryDir absolute relative to
// the package root, filling in defaults.
func (i *Info) resolvePaths(exists func(string) bool) {
	if i.SourceDir == "" {
		i.SourceDir = defaultSourceDir
		if !exists(filepath.Join(i.Root, defaultSourceDir)) && exists(filepath.Join(i.Root, defaultSourceZip)) {
			i.SourceDir = defaultSourceZip
		}
	}
	if i.NativeLibraryDir == "" {
		i.NativeLibraryDir = defaultLibraryDir
	}
	if !filepath.IsAbs(i.SourceDir) {
		i.SourceDir = filepath.Join(i.Root, i.SourceDir)
	}
	if !filepath.IsAbs(i.NativeLibraryDir) {
		i.NativeLibraryDir = filepath.Join(i.Root, i.NativeLibraryDir)
	}
}

// Clone returns a deep copy so callers cannot mutate index state.
func (i *Info) Clone() *Info {
	c := *i
	if i.Metadata != nil {
		c.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
