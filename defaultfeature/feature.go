// Package defaultfeature is the feature implementation shipped as a
// dynamically installed module. It delegates everything to session.
//
// Its code is linked into the host; the module only carries the service
// registration, so the feature becomes discoverable once the module is
// installed.
package defaultfeature

import (
	"context"

	"github.com/wippyai/featurekit"
	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/service"
	"github.com/wippyai/featurekit/session"
)

// ClassName is the class the module registers for featurekit.Contract.
const ClassName = "com.example.plugin.FeatureImpl"

// Feature delegates to session using the attached context.
type Feature struct {
	ctx execctx.Context
}

var _ featurekit.Feature = (*Feature)(nil)

func New() *Feature {
	return &Feature{}
}

func (f *Feature) Attach(ctx execctx.Context) featurekit.Feature {
	f.ctx = ctx
	return f
}

func (f *Feature) Supported() bool {
	return session.Supported(f.ctx)
}

func (f *Feature) NewSessionBuilder() *session.Builder {
	return session.NewBuilder(f.ctx)
}

func (f *Feature) SourceFrom(path string) (session.Source, error) {
	return session.NewFileSource(path)
}

// Context returns the attached context.
func (f *Feature) Context() execctx.Context {
	return f.ctx
}

// Register defines ClassName on l.
func Register(l *classloader.StaticLoader) error {
	_, err := l.Define(ClassName, func(context.Context) (any, error) {
		return New(), nil
	})
	return err
}

// Registration is the service table the module ships.
func Registration() service.Table {
	return service.Table{featurekit.Contract: {ClassName}}
}
