package service

import (
	"context"
	stderrors "errors"
	"io/fs"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/internal/wasmtest"
)

const contract = "com.example.feature.Feature"

type feature interface {
	Name() string
}

type impl struct{ name string }

func (i *impl) Name() string { return i.name }

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"single", "com.example.Impl\n", []string{"com.example.Impl"}},
		{"no newline", "com.example.Impl", []string{"com.example.Impl"}},
		{"comments and blanks", "# header\n\n  com.example.A  # primary\n#com.example.Off\ncom.example.B\n", []string{"com.example.A", "com.example.B"}},
		{"crlf", "com.example.A\r\ncom.example.B\r\n", []string{"com.example.A", "com.example.B"}},
		{"empty", "", nil},
		{"only comments", "# nothing here\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse([]byte(tt.data))
			if len(got) != len(tt.want) {
				t.Fatalf("Parse = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Parse[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func newLoader(t *testing.T, table Table, impls ...string) *classloader.StaticLoader {
	t.Helper()
	l := classloader.NewStaticLoader("host", nil, classloader.Config{})
	for _, name := range impls {
		if _, err := l.Define(name, func(context.Context) (any, error) {
			return &impl{name: name}, nil
		}); err != nil {
			t.Fatalf("Define: %v", err)
		}
	}
	table.Register(l)
	return l
}

func TestFind(t *testing.T) {
	ctx := context.Background()

	t.Run("single registration", func(t *testing.T) {
		l := newLoader(t, Table{contract: {"com.example.Impl"}}, "com.example.Impl")
		v, err := Find(ctx, l, contract)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := v.(*impl).name; got != "com.example.Impl" {
			t.Errorf("found %s", got)
		}
	})

	t.Run("first wins", func(t *testing.T) {
		l := newLoader(t, Table{contract: {"com.example.A", "com.example.B"}}, "com.example.A", "com.example.B")
		v, err := Find(ctx, l, contract)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if got := v.(*impl).name; got != "com.example.A" {
			t.Errorf("found %s, want com.example.A", got)
		}
	})

	t.Run("none registered", func(t *testing.T) {
		l := newLoader(t, Table{}, "com.example.Impl")
		_, err := Find(ctx, l, contract)
		if !stderrors.Is(err, ErrDiscoveryExhausted) {
			t.Fatalf("error = %v, want discovery exhausted", err)
		}
	})

	t.Run("registered class missing", func(t *testing.T) {
		l := newLoader(t, Table{contract: {"com.example.Gone"}})
		_, err := Find(ctx, l, contract)
		if !classloader.IsClassNotFound(err) {
			t.Fatalf("error = %v, want class not found", err)
		}
	})

	t.Run("illegal provider name", func(t *testing.T) {
		l := newLoader(t, Table{contract: {"com/example/Bad"}})
		_, err := Find(ctx, l, contract)
		if !stderrors.Is(err, errors.KindOf(errors.KindInvalidManifest)) {
			t.Fatalf("error = %v, want invalid manifest", err)
		}
	})

	t.Run("invalid contract", func(t *testing.T) {
		l := newLoader(t, Table{})
		_, err := Find(ctx, l, "")
		if !stderrors.Is(err, errors.KindOf(errors.KindInvalidInput)) {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		l := newLoader(t, Table{contract: {"com.example.Impl"}}, "com.example.Impl")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := Find(cctx, l, contract); !stderrors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	})
}

func TestProviders_ParentFirstDeduplicated(t *testing.T) {
	ctx := context.Background()
	parent := classloader.NewStaticLoader("system", nil, classloader.Config{})
	Table{contract: {"com.example.A"}}.Register(parent)

	src, err := Table{contract: {"com.example.B", "com.example.A"}}.Source("pkg")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	l, err := classloader.NewPathLoader(ctx, classloader.PathConfig{
		Name:     "pkg",
		Fallback: parent,
		Source:   src,
	})
	if err != nil {
		t.Fatalf("NewPathLoader: %v", err)
	}
	defer l.Close(ctx)

	var got []string
	for name, err := range Providers(ctx, l, contract) {
		if err != nil {
			t.Fatalf("Providers: %v", err)
		}
		got = append(got, name)
	}
	if len(got) != 2 || got[0] != "com.example.A" || got[1] != "com.example.B" {
		t.Fatalf("Providers = %v", got)
	}

	for range Providers(ctx, l, contract) {
		break
	}
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("go implementation", func(t *testing.T) {
		l := newLoader(t, Table{contract: {"com.example.Impl"}}, "com.example.Impl")
		f, err := Load[feature](ctx, l, contract, nil)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if f.Name() != "com.example.Impl" {
			t.Errorf("Name = %s", f.Name())
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		l := classloader.NewStaticLoader("host", nil, classloader.Config{})
		if _, err := l.Define("com.example.Str", func(context.Context) (any, error) { return "str", nil }); err != nil {
			t.Fatalf("Define: %v", err)
		}
		Table{contract: {"com.example.Str"}}.Register(l)
		_, err := Load[feature](ctx, l, contract, nil)
		if !stderrors.Is(err, errors.KindOf(errors.KindTypeMismatch)) {
			t.Fatalf("error = %v, want type mismatch", err)
		}
	})

	t.Run("adapted wasm implementation", func(t *testing.T) {
		src := fstest.MapFS{
			"classes/com.example.WasmImpl.wasm": {Data: wasmtest.New().Const("version", 3).Bytes()},
		}
		reg, err := Table{contract: {"com.example.WasmImpl"}}.FS()
		if err != nil {
			t.Fatalf("FS: %v", err)
		}
		data, err := fs.ReadFile(reg, RegistrationPath(contract))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		src[RegistrationPath(contract)] = &fstest.MapFile{Data: data}
		l, err := classloader.NewPathLoader(ctx, classloader.PathConfig{
			Name:     "pkg.wasm",
			Fallback: classloader.NewStaticLoader("system", nil, classloader.Config{}),
			Source:   classloader.NewSource("pkg.wasm", src),
		})
		if err != nil {
			t.Fatalf("NewPathLoader: %v", err)
		}
		defer l.Close(ctx)

		adapt := func(ctx context.Context, class *classloader.Class, v any) (feature, error) {
			obj := v.(*classloader.Object)
			res, err := obj.Call(ctx, "version")
			if err != nil {
				return nil, err
			}
			if res[0] != 3 {
				t.Errorf("version = %d", res[0])
			}
			return &impl{name: class.Name()}, nil
		}
		f, err := Load[feature](ctx, l, contract, adapt)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if f.Name() != "com.example.WasmImpl" {
			t.Errorf("Name = %s", f.Name())
		}
	})
}

func TestTable(t *testing.T) {
	table := Table{
		"b.Contract": {"b.Impl"},
		"a.Contract": {"a.Impl", "a.Other"},
	}
	if got := table.Contracts(); len(got) != 2 || got[0] != "a.Contract" {
		t.Fatalf("Contracts = %v", got)
	}
	src, err := table.Source("table")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}

	tests := []struct {
		contract string
		want     []string
	}{
		{"a.Contract", []string{"a.Impl", "a.Other"}},
		{"b.Contract", []string{"b.Impl"}},
	}
	for _, tt := range tests {
		t.Run(tt.contract, func(t *testing.T) {
			data, err := src.ReadFile(RegistrationPath(tt.contract))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if got := Parse(data); !slices.Equal(got, tt.want) {
				t.Errorf("Parse = %v, want %v", got, tt.want)
			}
		})
	}

	fsys, err := table.FS()
	if err != nil {
		t.Fatalf("FS: %v", err)
	}
	entries, err := fs.ReadDir(fsys, RegistrationDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "a.Contract" {
		t.Errorf("ReadDir = %v", entries)
	}
	if _, err := src.ReadFile(RegistrationPath("c.Contract")); err == nil {
		t.Error("unregistered contract should not resolve")
	}
}
