package featurekit

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/session"
)

// SupportedExport is the function a wasm feature exports to report
// support. It returns a non-zero i32 when supported.
const SupportedExport = "supported"

// wasmFeature is a Feature implemented by a package class module.
type wasmFeature struct {
	obj *classloader.Object
	ctx execctx.Context
}

// BindObject adapts a wasm object exporting SupportedExport to Feature.
func BindObject(obj *classloader.Object) (Feature, error) {
	if !obj.HasExport(SupportedExport) {
		return nil, errors.New(errors.PhaseAttach, errors.KindTypeMismatch).
			Identity(obj.Class().Loader().Name()).
			Class(obj.Class().Name()).
			Detail("module does not export %s", SupportedExport).
			Build()
	}
	return &wasmFeature{obj: obj}, nil
}

func (f *wasmFeature) Attach(ctx execctx.Context) Feature {
	f.ctx = ctx
	return f
}

// Supported requires both the module and the platform to agree.
func (f *wasmFeature) Supported() bool {
	res, err := f.obj.Call(context.Background(), SupportedExport)
	if err != nil {
		Logger().Warn("feature support check failed",
			zap.String("class", f.obj.Class().Name()),
			zap.Error(err))
		return false
	}
	return len(res) == 1 && uint32(res[0]) != 0 && session.Supported(f.ctx)
}

func (f *wasmFeature) NewSessionBuilder() *session.Builder {
	return session.NewBuilder(f.ctx)
}

func (f *wasmFeature) SourceFrom(path string) (session.Source, error) {
	return session.NewFileSource(path)
}

// adaptFeature is the service adapter for non-Go implementations.
func adaptFeature(_ context.Context, class *classloader.Class, v any) (Feature, error) {
	obj, ok := v.(*classloader.Object)
	if !ok {
		return nil, errors.TypeMismatch(class.Name(), Contract, v)
	}
	return BindObject(obj)
}
