package featurekit_test

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/featurekit"
	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/defaultfeature"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/internal/testpkg"
	"github.com/wippyai/featurekit/internal/wasmtest"
	"github.com/wippyai/featurekit/pkgmeta"
	"github.com/wippyai/featurekit/service"
	"github.com/wippyai/featurekit/session"
)

const pluginID = "com.example.plugin"

type failingIndex struct{ err error }

func (f failingIndex) Lookup(context.Context, string) (*pkgmeta.Info, error) {
	return nil, f.err
}

func pluginPackage(supported int32) testpkg.Package {
	return testpkg.Package{
		Identity: pluginID,
		Version:  "1.0.0",
		Classes: map[string][]byte{
			defaultfeature.ClassName: wasmtest.New().Const(featurekit.SupportedExport, supported).Bytes(),
		},
		Services: map[string]string{featurekit.Contract: defaultfeature.ClassName},
		Files: map[string][]byte{
			"assets/lenses/pets/dog.yaml": []byte("id: dog\nname: Dog\n"),
		},
	}
}

type env struct {
	factory *featurekit.Factory
	host    *execctx.Host
	screen  *execctx.Screen
	primary *classloader.StaticLoader
	system  *classloader.StaticLoader
}

func newEnv(t *testing.T, index pkgmeta.Index, caps ...string) *env {
	t.Helper()
	system := classloader.NewStaticLoader("system", nil, classloader.Config{})
	primary := classloader.NewStaticLoader("host", system, classloader.Config{})
	host := execctx.NewHost(execctx.HostConfig{Name: "com.example.host", Loader: primary, Capabilities: caps})
	return &env{
		factory: featurekit.NewFactory(index, primary, featurekit.WithSystemLoader(system)),
		host:    host,
		screen:  execctx.NewScreen(host, "main"),
		primary: primary,
		system:  system,
	}
}

func TestPackageLoader_NotInstalled(t *testing.T) {
	e := newEnv(t, pkgmeta.NewDirIndex(t.TempDir()), session.Capability)
	for _, id := range []string{pluginID, "", ".", "..", "com/example/plugin", `com\example`} {
		t.Run(id, func(t *testing.T) {
			loader, ok, err := e.factory.PackageLoader(context.Background(), e.screen, id)
			if err != nil || ok || loader != nil {
				t.Fatalf("PackageLoader(%q) = %v, %v, %v; want nil, false, nil", id, loader, ok, err)
			}
		})
	}
}

func TestPackageLoader_IndexFailure(t *testing.T) {
	boom := errors.Load(pluginID, "index unavailable", stderrors.New("disk"))
	e := newEnv(t, failingIndex{err: boom}, session.Capability)
	_, ok, err := e.factory.PackageLoader(context.Background(), e.screen, pluginID)
	if ok || !stderrors.Is(err, errors.KindOf(errors.KindIO)) {
		t.Fatalf("PackageLoader = %v, %v; want index error", ok, err)
	}
}

func TestPackageLoader_WasmFeature(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		supported int32
		caps      []string
		want      bool
	}{
		{"supported", 1, []string{session.Capability}, true},
		{"module declines", 0, []string{session.Capability}, false},
		{"platform lacks capability", 1, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			testpkg.Install(t, root, pluginPackage(tt.supported))
			e := newEnv(t, pkgmeta.NewDirIndex(root), tt.caps...)

			loader, ok, err := e.factory.PackageLoader(ctx, e.screen, pluginID)
			if err != nil || !ok {
				t.Fatalf("PackageLoader = %v, %v", ok, err)
			}
			feature, err := loader.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := feature.Supported(); got != tt.want {
				t.Errorf("Supported() = %v, want %v", got, tt.want)
			}
			if feature.NewSessionBuilder() == feature.NewSessionBuilder() {
				t.Error("NewSessionBuilder must return a fresh builder")
			}
		})
	}
}

func TestPackageLoader_HostClassFirst(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testpkg.Install(t, root, pluginPackage(0))
	e := newEnv(t, pkgmeta.NewDirIndex(root), session.Capability)
	if err := defaultfeature.Register(e.primary); err != nil {
		t.Fatalf("Register: %v", err)
	}

	loader, ok, err := e.factory.PackageLoader(ctx, e.screen, pluginID)
	if err != nil || !ok {
		t.Fatalf("PackageLoader = %v, %v", ok, err)
	}
	feature, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	df, ok := feature.(*defaultfeature.Feature)
	if !ok {
		t.Fatalf("Load returned %T, want the host class", feature)
	}
	if !feature.Supported() {
		t.Error("host implementation should be supported")
	}

	pkgCtx := df.Context()
	if pkgCtx.PackageName() != pluginID {
		t.Errorf("PackageName = %s", pkgCtx.PackageName())
	}
	if pkgCtx.ClassLoader().Name() != pluginID {
		t.Errorf("class loader = %s, want the package loader", pkgCtx.ClassLoader().Name())
	}
	if pkgCtx.Application().ApplicationID() != "com.example.host" {
		t.Errorf("ApplicationID = %s", pkgCtx.Application().ApplicationID())
	}
	owner, ok := pkgCtx.(execctx.LifecycleOwner)
	if !ok {
		t.Fatal("context of a lifecycle-aware host should forward its lifecycle")
	}
	if err := e.screen.Registry().MoveTo(execctx.Resumed); err != nil {
		t.Fatal(err)
	}
	if owner.Lifecycle().CurrentState() != execctx.Resumed {
		t.Errorf("lifecycle state = %v", owner.Lifecycle().CurrentState())
	}

	s, err := df.NewSessionBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	lenses, err := s.Lenses().Available(ctx, "pets")
	if err != nil || len(lenses) != 1 {
		t.Fatalf("package lenses = %v, %v", lenses, err)
	}
}

func TestPackageLoader_PlainHostContext(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testpkg.Install(t, root, pluginPackage(1))
	e := newEnv(t, pkgmeta.NewDirIndex(root), session.Capability)
	if err := defaultfeature.Register(e.primary); err != nil {
		t.Fatal(err)
	}

	loader, _, err := e.factory.PackageLoader(ctx, e.host, pluginID)
	if err != nil {
		t.Fatal(err)
	}
	feature, err := loader.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := feature.(*defaultfeature.Feature).Context().(execctx.LifecycleOwner); ok {
		t.Error("context of a host without lifecycle must not be a LifecycleOwner")
	}
}

func TestPackageLoader_ReusesCodeLoadingContext(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testpkg.Install(t, root, pluginPackage(1))
	e := newEnv(t, pkgmeta.NewDirIndex(root), session.Capability)

	loader, _, err := e.factory.PackageLoader(ctx, e.screen, pluginID)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16
	features := make([]featurekit.Feature, workers)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := loader.Load(ctx)
			if err != nil {
				errs <- err
				return
			}
			features[i] = f
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Load: %v", err)
	}

	if stats := e.factory.LoaderStats(); stats.Builds != 1 {
		t.Errorf("Builds = %d, want 1", stats.Builds)
	}
	for _, f := range features {
		if !f.Supported() {
			t.Error("feature not supported")
		}
	}
}

func TestPackageLoader_RebuildsAfterReclaim(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testpkg.Install(t, root, pluginPackage(1))
	e := newEnv(t, pkgmeta.NewDirIndex(root), session.Capability)

	loader, _, err := e.factory.PackageLoader(ctx, e.screen, pluginID)
	if err != nil {
		t.Fatal(err)
	}
	load := func() {
		t.Helper()
		f, err := loader.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !f.Supported() {
			t.Error("feature not supported")
		}
	}

	load()
	reclaimed := false
	for i := 0; i < 50 && !reclaimed; i++ {
		runtime.GC()
		reclaimed = e.factory.LoaderStats().Reclaims >= 1
		time.Sleep(time.Millisecond)
	}
	if !reclaimed {
		t.Fatal("code-loading context was not reclaimed once the feature became unreachable")
	}

	load()
	if stats := e.factory.LoaderStats(); stats.Builds != 2 {
		t.Errorf("Builds = %d, want 2", stats.Builds)
	}
}

func TestPackageLoader_RetainRelease(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	testpkg.Install(t, root, pluginPackage(1))
	e := newEnv(t, pkgmeta.NewDirIndex(root), session.Capability)

	if err := e.factory.Retain(ctx, pluginID); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if err := e.factory.Retain(ctx, "com.example.absent"); !stderrors.Is(err, pkgmeta.ErrNotInstalled) {
		t.Fatalf("Retain(absent) error = %v", err)
	}
	if !e.factory.Release(pluginID) {
		t.Error("Release should report a pinned loader")
	}
	if e.factory.Release(pluginID) {
		t.Error("second Release should report nothing pinned")
	}
}

func TestServiceLoader(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, pkgmeta.NewMemIndex(), session.Capability)
	if err := defaultfeature.Register(e.primary); err != nil {
		t.Fatal(err)
	}

	_, err := e.factory.ServiceLoader(e.screen).Load(ctx)
	if !stderrors.Is(err, service.ErrDiscoveryExhausted) {
		t.Fatalf("Load before module install error = %v", err)
	}

	src, err := defaultfeature.Registration().Source("feature-module")
	if err != nil {
		t.Fatal(err)
	}
	e.primary.AddSource(src)
	feature, err := e.factory.ServiceLoader(e.screen).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !feature.Supported() {
		t.Error("feature should be supported on a capable host")
	}
	if feature.(*defaultfeature.Feature).Context() != execctx.Context(e.screen) {
		t.Error("service-loaded feature should be attached to the host context")
	}
}

func TestBindObject(t *testing.T) {
	ctx := context.Background()
	l, err := classloader.NewPathLoader(ctx, classloader.PathConfig{
		Name:     "pkg",
		Fallback: classloader.NewStaticLoader("system", nil, classloader.Config{}),
		Source: classloader.NewSource("pkg", testpkg.Package{
			Classes: map[string][]byte{
				"pkg.NoSupport": wasmtest.New().Const("other", 1).Bytes(),
			},
		}.MapFS()),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close(ctx)

	c, err := l.LoadClass(ctx, "pkg.NoSupport")
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := featurekit.BindObject(v.(*classloader.Object)); !stderrors.Is(err, errors.KindOf(errors.KindTypeMismatch)) {
		t.Fatalf("BindObject error = %v", err)
	}
}
