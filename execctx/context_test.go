package execctx

import (
	"context"
	stderrors "errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/internal/testpkg"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type themeKey struct{}

func newHost() *Host {
	h := NewHost(HostConfig{
		Name:         "com.example.host",
		Loader:       classloader.NewStaticLoader("host", nil, classloader.Config{}),
		Capabilities: []string{"camera", "media"},
		Assets: fstest.MapFS{
			"icon.png": {Data: pngHeader},
		},
	})
	h.SetValue(themeKey{}, "dark")
	return h
}

func TestHost(t *testing.T) {
	h := newHost()

	if h.Application() != Application(h) || h.ApplicationID() != "com.example.host" {
		t.Fatal("host should be its own application")
	}
	if !HasCapability(h, "camera") || HasCapability(h, "gps") || HasCapability(nil, "camera") {
		t.Error("HasCapability mismatch")
	}

	caps := h.Capabilities()
	caps[0] = "mutated"
	if !HasCapability(h, "camera") {
		t.Error("Capabilities must return a copy")
	}

	h.SetCapabilities("gps")
	if !HasCapability(h, "gps") || HasCapability(h, "camera") {
		t.Error("SetCapabilities did not replace")
	}

	if h.Value(themeKey{}) != "dark" {
		t.Error("Value mismatch")
	}
	h.SetValue(themeKey{}, nil)
	if h.Value(themeKey{}) != nil {
		t.Error("SetValue(nil) should delete")
	}

	asset, err := h.OpenAsset("icon.png")
	if err != nil {
		t.Fatalf("OpenAsset: %v", err)
	}
	if !asset.MIME.Is("image/png") {
		t.Errorf("content type = %s", asset.ContentType())
	}

	if _, err := h.OpenAsset("missing.png"); !stderrors.Is(err, errors.KindOf(errors.KindNotFound)) {
		t.Errorf("OpenAsset(missing) error = %v", err)
	}
	if _, err := h.OpenAsset("../escape"); !stderrors.Is(err, errors.KindOf(errors.KindInvalidInput)) {
		t.Errorf("OpenAsset(../escape) error = %v", err)
	}

	if NewHost(HostConfig{Name: "bare"}).ClassLoader() != classloader.Loader(classloader.System()) {
		t.Error("default loader should be the system loader")
	}
}

func TestWrapPackage(t *testing.T) {
	ctx := context.Background()
	host := newHost()
	screen := NewScreen(host, "main")

	info := testpkg.Install(t, t.TempDir(), testpkg.Package{
		Identity: "com.example.plugin",
		Version:  "3",
		Files: map[string][]byte{
			"res/strings.txt":  []byte("plugin strings"),
			"assets/hello.txt": []byte("hello from plugin"),
		},
	})

	base, err := NewPackage(info, screen)
	if err != nil {
		t.Fatalf("NewPackage: %v", err)
	}
	if base.ClassLoader() != host.ClassLoader() {
		t.Error("base package context should use the host loader")
	}

	pkgLoader := classloader.NewStaticLoader("com.example.plugin", nil, classloader.Config{})
	if _, err := pkgLoader.Define("com.example.plugin.Thing", func(context.Context) (any, error) {
		return "thing", nil
	}); err != nil {
		t.Fatalf("Define: %v", err)
	}

	wrapped := WrapPackage(base, pkgLoader, screen)

	t.Run("package side", func(t *testing.T) {
		if wrapped.PackageName() != "com.example.plugin" || wrapped.Info().Version != "3" {
			t.Errorf("package = %s@%s", wrapped.PackageName(), wrapped.Info().Version)
		}
		data, err := fs.ReadFile(wrapped.Resources(), "strings.txt")
		if err != nil || string(data) != "plugin strings" {
			t.Errorf("Resources strings.txt = %q, %v", data, err)
		}
		asset, err := wrapped.OpenAsset("hello.txt")
		if err != nil {
			t.Fatalf("OpenAsset: %v", err)
		}
		if !asset.MIME.Is("text/plain") {
			t.Errorf("content type = %s", asset.ContentType())
		}
		if _, err := wrapped.ClassLoader().LoadClass(ctx, "com.example.plugin.Thing"); err != nil {
			t.Errorf("LoadClass through wrapped loader: %v", err)
		}
	})

	t.Run("host side", func(t *testing.T) {
		if wrapped.Value(themeKey{}) != "dark" {
			t.Error("host state not visible")
		}
		if wrapped.Host() != Context(screen) {
			t.Error("Host mismatch")
		}
	})

	t.Run("application", func(t *testing.T) {
		app := wrapped.Application()
		if _, ok := app.(*PackageApplication); !ok {
			t.Fatalf("Application() = %T", app)
		}
		if app.ApplicationID() != "com.example.host" {
			t.Errorf("ApplicationID = %s", app.ApplicationID())
		}
		if !HasCapability(app, "media") {
			t.Error("capabilities should come from the host application")
		}
		if app.Value(themeKey{}) != "dark" {
			t.Error("application state should come from the host")
		}
		if app.PackageName() != "com.example.plugin" || app.ClassLoader() != classloader.Loader(pkgLoader) {
			t.Error("application resources and classes should come from the package")
		}
		if _, err := fs.ReadFile(app.Assets(), "hello.txt"); err != nil {
			t.Errorf("application assets: %v", err)
		}
		if app.Application() != app {
			t.Error("package application should be its own application")
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		lc := WithLifecycle(wrapped, screen)
		if err := screen.Registry().MoveTo(Resumed); err != nil {
			t.Fatalf("MoveTo: %v", err)
		}
		if lc.Lifecycle().CurrentState() != Resumed {
			t.Errorf("state = %v", lc.Lifecycle().CurrentState())
		}
		if lc.ClassLoader() != classloader.Loader(pkgLoader) {
			t.Error("lifecycle context should keep the package loader")
		}
	})
}

func TestNewPackage_MissingSource(t *testing.T) {
	host := newHost()
	info := testpkg.Install(t, t.TempDir(), testpkg.Package{Identity: "com.example.empty"})
	info.SourceDir = info.SourceDir + "-gone"
	if _, err := NewPackage(info, host); !stderrors.Is(err, errors.KindOf(errors.KindIO)) {
		t.Fatalf("error = %v", err)
	}
}
