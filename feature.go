package featurekit

import (
	"context"

	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/session"
)

// Contract is the service name implementations register under.
const Contract = "com.example.feature.Feature"

// Feature is the entry point of a feature implementation.
//
// Attach must be called before any other method.
type Feature interface {
	// Attach binds the feature to the context it must use for everything
	// it creates and returns the attached feature.
	Attach(ctx execctx.Context) Feature

	// Supported reports whether the feature can run here.
	Supported() bool

	// NewSessionBuilder returns a new builder on every call.
	NewSessionBuilder() *session.Builder

	// SourceFrom creates an image processor source reading the media file
	// at path.
	SourceFrom(path string) (session.Source, error)
}

// Loader produces an attached Feature.
type Loader interface {
	Load(ctx context.Context) (Feature, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Feature, error)

func (f LoaderFunc) Load(ctx context.Context) (Feature, error) {
	return f(ctx)
}
