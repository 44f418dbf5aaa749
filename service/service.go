package service

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"iter"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
)

// RegistrationDir holds registration files, one per contract.
const RegistrationDir = "META-INF/services"

// ErrDiscoveryExhausted matches Find failures caused by a contract with no
// registered implementation.
var ErrDiscoveryExhausted = errors.KindOf(errors.KindDiscoveryExhausted)

// RegistrationPath returns the resource name registering implementations
// of contract.
func RegistrationPath(contract string) string {
	return RegistrationDir + "/" + contract
}

// Parse returns the class names listed in a registration file, in order.
func Parse(data []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

// Providers yields the implementation class names registered for contract
// and visible through loader, without duplicates. Iteration stops after the
// first error.
func Providers(ctx context.Context, loader classloader.Loader, contract string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := classloader.ValidateClassName(contract); err != nil {
			yield("", err)
			return
		}
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}

		res, err := loader.Resources(RegistrationPath(contract))
		if err != nil {
			yield("", errors.Wrap(errors.PhaseDiscover, errors.KindIO, err, "read registrations for "+contract))
			return
		}

		seen := make(map[string]struct{})
		for _, r := range res {
			for _, name := range Parse(r.Data) {
				if _, dup := seen[name]; dup {
					continue
				}
				seen[name] = struct{}{}
				if err := classloader.ValidateClassName(name); err != nil {
					yield("", errors.New(errors.PhaseDiscover, errors.KindInvalidManifest).
						Identity(r.Origin).
						Path(RegistrationPath(contract)).
						Cause(err).
						Detail("illegal provider class name %q", name).
						Build())
					return
				}
				if !yield(name, nil) {
					return
				}
			}
		}
	}
}

// Find instantiates the first implementation of contract visible through
// loader. With none registered it returns an error matching
// ErrDiscoveryExhausted. Class resolution failures are returned unchanged.
func Find(ctx context.Context, loader classloader.Loader, contract string) (any, error) {
	_, v, err := find(ctx, loader, contract)
	return v, err
}

func find(ctx context.Context, loader classloader.Loader, contract string) (*classloader.Class, any, error) {
	for name, err := range Providers(ctx, loader, contract) {
		if err != nil {
			return nil, nil, err
		}
		class, err := loader.LoadClass(ctx, name)
		if err != nil {
			return nil, nil, err
		}
		v, err := class.New(ctx)
		if err != nil {
			return nil, nil, err
		}
		Logger().Debug("service provider selected",
			zap.String("contract", contract),
			zap.String("class", name),
			zap.String("loader", class.Loader().Name()))
		return class, v, nil
	}
	return nil, nil, errors.DiscoveryExhausted(contract)
}

// Adapter converts an instance that is not a T, such as a wasm object, into
// a T.
type Adapter[T any] func(ctx context.Context, class *classloader.Class, v any) (T, error)

// Load is Find for a typed contract. Instances that are not a T go through
// adapt; without an adapter they fail with a type mismatch.
func Load[T any](ctx context.Context, loader classloader.Loader, contract string, adapt Adapter[T]) (T, error) {
	var zero T
	class, v, err := find(ctx, loader, contract)
	if err != nil {
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	if adapt == nil {
		return zero, errors.TypeMismatch(class.Name(), contract, v)
	}
	return adapt(ctx, class, v)
}

// Table maps contracts to implementation class names.
type Table map[string][]string

// Contracts returns the registered contracts, sorted.
func (t Table) Contracts() []string {
	names := make([]string, 0, len(t))
	for c := range t {
		names = append(names, c)
	}
	sort.Strings(names)
	return names
}

// FS renders the table as a read-only tree of registration files.
func (t Table) FS() (fs.FS, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, contract := range t.Contracts() {
		f, err := w.CreateHeader(&zip.FileHeader{Name: RegistrationPath(contract), Method: zip.Store})
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Detail("registration for %s", contract).Cause(err).Build()
		}
		if _, err := f.Write(t.file(contract)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
}

func (t Table) file(contract string) []byte {
	return []byte(strings.Join(t[contract], "\n") + "\n")
}

// Source renders the table as a code source named name.
func (t Table) Source(name string) (*classloader.CodeSource, error) {
	fsys, err := t.FS()
	if err != nil {
		return nil, err
	}
	return classloader.NewSource(name, fsys), nil
}

// Register adds the table's registrations to l as resources.
func (t Table) Register(l *classloader.StaticLoader) {
	for _, contract := range t.Contracts() {
		l.AddResource(RegistrationPath(contract), t.file(contract))
	}
}
