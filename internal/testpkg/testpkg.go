// Package testpkg lays out installed packages on disk for tests.
package testpkg

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/klauspost/compress/zip"

	"github.com/wippyai/featurekit/pkgmeta"
)

// Package describes the contents of a test package.
type Package struct {
	Classes   map[string][]byte // class name -> module
	Services  map[string]string // contract -> implementation class
	Libraries map[string][]byte // library name -> module
	Files     map[string][]byte // extra source files, e.g. res/..., assets/...
	Identity  string
	Version   string
	// Zip stores the code source as code.zip instead of a directory.
	Zip bool
}

// SourceFiles returns the code source tree of p.
func (p Package) SourceFiles() map[string][]byte {
	files := make(map[string][]byte)
	for name, code := range p.Classes {
		files["classes/"+name+".wasm"] = code
	}
	for contract, impl := range p.Services {
		files["META-INF/services/"+contract] = []byte(impl + "\n")
	}
	for name, data := range p.Files {
		files[name] = data
	}
	return files
}

// MapFS returns the code source of p as an in-memory file system.
func (p Package) MapFS() fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, data := range p.SourceFiles() {
		fsys[name] = &fstest.MapFile{Data: data, Mode: 0o644}
	}
	return fsys
}

// Install writes p under root and returns its metadata as a DirIndex sees it.
func Install(t testing.TB, root string, p Package) *pkgmeta.Info {
	t.Helper()

	dir := filepath.Join(root, p.Identity)
	if err := os.MkdirAll(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	manifest, err := pkgmeta.MarshalManifest(&pkgmeta.Info{Identity: p.Identity, Version: p.Version})
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	write(t, filepath.Join(dir, pkgmeta.ManifestName), manifest)

	if p.Zip {
		writeZip(t, filepath.Join(dir, "code.zip"), p.SourceFiles())
	} else {
		for name, data := range p.SourceFiles() {
			write(t, filepath.Join(dir, "code", filepath.FromSlash(name)), data)
		}
		if err := os.MkdirAll(filepath.Join(dir, "code"), 0o755); err != nil {
			t.Fatalf("mkdir code: %v", err)
		}
	}

	for name, code := range p.Libraries {
		write(t, filepath.Join(dir, "lib", name+".wasm"), code)
	}

	info, err := pkgmeta.NewDirIndex(root).Lookup(context.Background(), p.Identity)
	if err != nil {
		t.Fatalf("lookup installed package: %v", err)
	}
	return info
}

// WriteSource writes files as a code source directory (or zip archive when
// the path ends in .zip) and returns its path.
func WriteSource(t testing.TB, p string, files map[string][]byte) string {
	t.Helper()
	if path.Ext(p) == ".zip" {
		writeZip(t, p, files)
		return p
	}
	for name, data := range files {
		write(t, filepath.Join(p, filepath.FromSlash(name)), data)
	}
	return p
}

func write(t testing.TB, p string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

func writeZip(t testing.TB, p string, files map[string][]byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", p, err)
	}
}
