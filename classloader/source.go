package classloader

import (
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"

	"github.com/wippyai/featurekit/errors"
)

// CodeSource is a read-only tree of classes and resources: a directory, a
// zip archive, or any fs.FS.
type CodeSource struct {
	fsys   fs.FS
	closer io.Closer
	name   string
}

// NewSource wraps fsys. name is used in errors and as resource origin.
func NewSource(name string, fsys fs.FS) *CodeSource {
	return &CodeSource{name: name, fsys: fsys}
}

// OpenSource opens a directory or zip archive.
func OpenSource(p string) (*CodeSource, error) {
	st, err := os.Stat(p)
	if err != nil {
		return nil, errors.Load("", "open code source "+p, err)
	}
	if st.IsDir() {
		return &CodeSource{name: p, fsys: os.DirFS(p)}, nil
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, errors.Load("", "open code archive "+p, err)
	}
	return &CodeSource{name: p, fsys: zr, closer: zr}, nil
}

func (s *CodeSource) Name() string {
	return s.name
}

// FS exposes the underlying file system.
func (s *CodeSource) FS() fs.FS {
	return s.fsys
}

// ReadFile reads a slash-separated path. It returns fs.ErrNotExist for
// missing or invalid paths.
func (s *CodeSource) ReadFile(name string) ([]byte, error) {
	name = strings.TrimPrefix(name, "/")
	if !fs.ValidPath(name) {
		return nil, fs.ErrNotExist
	}
	return fs.ReadFile(s.fsys, name)
}

// Sub returns the subtree rooted at dir, or an empty tree when dir is absent.
func (s *CodeSource) Sub(dir string) fs.FS {
	sub, err := fs.Sub(s.fsys, dir)
	if err != nil {
		return emptyFS{}
	}
	return sub
}

// Classes lists the class names defined in the source.
func (s *CodeSource) Classes() ([]string, error) {
	matches, err := doublestar.Glob(s.fsys, ClassDir+"/*.wasm")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(path.Base(m), ".wasm"))
	}
	sort.Strings(names)
	return names, nil
}

// Close releases an underlying archive.
func (s *CodeSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
