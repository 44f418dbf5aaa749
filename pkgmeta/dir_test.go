package pkgmeta

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/featurekit/errors"
)

func writeManifest(t *testing.T, root, identity, body string) string {
	t.Helper()
	dir := filepath.Join(root, identity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return dir
}

func TestDirIndex_Lookup(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := writeManifest(t, root, "com.example.plugin", "identity: com.example.plugin\nversion: 1.2.0\n")

	idx := NewDirIndex(root)
	info, err := idx.Lookup(ctx, "com.example.plugin")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if info.Version != "1.2.0" {
		t.Errorf("Version = %q, want 1.2.0", info.Version)
	}
	if info.Root != dir {
		t.Errorf("Root = %q, want %q", info.Root, dir)
	}
	if info.SourceDir != filepath.Join(dir, "code") {
		t.Errorf("SourceDir = %q", info.SourceDir)
	}
	if info.NativeLibraryDir != filepath.Join(dir, "lib") {
		t.Errorf("NativeLibraryDir = %q", info.NativeLibraryDir)
	}
}

func TestDirIndex_LookupZipSource(t *testing.T) {
	root := t.TempDir()
	dir := writeManifest(t, root, "zipped", "version: \"1\"\n")
	if err := os.WriteFile(filepath.Join(dir, "code.zip"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := NewDirIndex(root).Lookup(context.Background(), "zipped")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if info.Identity != "zipped" {
		t.Errorf("Identity = %q, want zipped", info.Identity)
	}
	if info.SourceDir != filepath.Join(dir, "code.zip") {
		t.Errorf("SourceDir = %q, want code.zip", info.SourceDir)
	}
}

func TestDirIndex_NotInstalled(t *testing.T) {
	idx := NewDirIndex(t.TempDir())

	_, err := idx.Lookup(context.Background(), "com.example.missing")
	if !stderrors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
}

func TestDirIndex_InvalidIdentity(t *testing.T) {
	idx := NewDirIndex(t.TempDir())

	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := idx.Lookup(context.Background(), id)
		if !stderrors.Is(err, ErrNotInstalled) {
			t.Errorf("Lookup(%q) = %v, want ErrNotInstalled", id, err)
		}
		if !stderrors.Is(err, errors.KindOf(errors.KindInvalidInput)) {
			t.Errorf("Lookup(%q) = %v, want the validation failure as cause", id, err)
		}
	}
}

func TestDirIndex_ManifestErrors(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "mismatch", "identity: other\n")
	writeManifest(t, root, "unknown", "identity: unknown\nbogus: true\n")

	idx := NewDirIndex(root)
	for _, id := range []string{"mismatch", "unknown"} {
		_, err := idx.Lookup(context.Background(), id)
		if !stderrors.Is(err, errors.KindOf(errors.KindInvalidManifest)) {
			t.Errorf("Lookup(%q) = %v, want invalid manifest", id, err)
		}
	}
}

func TestDirIndex_List(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "b.pkg", "version: \"2\"\n")
	writeManifest(t, root, "a.pkg", "version: \"1\"\n")
	writeManifest(t, root, "broken", "identity: [\n")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	infos, err := NewDirIndex(root).List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d packages, want 2", len(infos))
	}
	if infos[0].Identity != "a.pkg" || infos[1].Identity != "b.pkg" {
		t.Errorf("unexpected order: %s, %s", infos[0].Identity, infos[1].Identity)
	}
}

func TestDirIndex_ListMissingRoot(t *testing.T) {
	infos, err := NewDirIndex(filepath.Join(t.TempDir(), "nope")).List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("got %d packages, want 0", len(infos))
	}
}

func TestManifestRoundTrip(t *testing.T) {
	in := &Info{Identity: "com.example.plugin", Version: "3", Metadata: map[string]string{"abi": "1"}}
	data, err := MarshalManifest(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseManifest(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Identity != in.Identity || out.Metadata["abi"] != "1" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
