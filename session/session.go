package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/execctx"
)

// Capability is the application capability sessions require.
const Capability = "image-processing"

// Supported reports whether the application behind ctx can run sessions.
func Supported(ctx execctx.Context) bool {
	if ctx == nil {
		return false
	}
	return execctx.HasCapability(ctx.Application(), Capability)
}

// Source feeds frames to a session's image processor.
type Source interface {
	Path() string
	ContentType() string
}

// FileSource reads frames from a media file.
type FileSource struct {
	mime *mimetype.MIME
	path string
}

// NewFileSource opens path and checks that it holds video or image data.
func NewFileSource(path string) (*FileSource, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseSession, errors.KindIO).
			Path(path).Cause(err).Detail("read media source").Build()
	}
	if !isMedia(mime) {
		return nil, errors.New(errors.PhaseSession, errors.KindUnsupported).
			Path(path).Detail("unsupported media type %s", mime.String()).Build()
	}
	return &FileSource{path: path, mime: mime}, nil
}

func isMedia(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "video/") || strings.HasPrefix(s, "image/") {
			return true
		}
	}
	return false
}

func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) ContentType() string {
	if s.mime == nil {
		return "application/octet-stream"
	}
	return s.mime.String()
}

// Builder configures a Session.
type Builder struct {
	ctx    execctx.Context
	source Source
	target string
}

// NewBuilder returns a fresh builder bound to ctx.
func NewBuilder(ctx execctx.Context) *Builder {
	return &Builder{ctx: ctx}
}

// ImageProcessorSource sets the frames source. Without one the session uses
// the default camera.
func (b *Builder) ImageProcessorSource(src Source) *Builder {
	b.source = src
	return b
}

// AttachTo names the view the session renders into.
func (b *Builder) AttachTo(target string) *Builder {
	b.target = target
	return b
}

// Build starts a session.
func (b *Builder) Build() (*Session, error) {
	if b.ctx == nil {
		return nil, errors.InvalidInput(errors.PhaseSession, "builder has no context")
	}
	if !Supported(b.ctx) {
		return nil, errors.New(errors.PhaseSession, errors.KindUnsupported).
			Identity(b.ctx.PackageName()).
			Detail("application lacks %s capability", Capability).
			Build()
	}

	s := &Session{
		id:     uuid.New(),
		ctx:    b.ctx,
		source: b.source,
		target: b.target,
		lenses: &Lenses{assets: b.ctx.Assets()},
	}
	fields := []zap.Field{
		zap.String("session", s.id.String()),
		zap.String("package", b.ctx.PackageName()),
	}
	if b.source != nil {
		fields = append(fields, zap.String("source", b.source.Path()), zap.String("content_type", b.source.ContentType()))
	}
	Logger().Info("session started", fields...)
	return s, nil
}

// Session is a running processing session.
type Session struct {
	ctx    execctx.Context
	source Source
	lenses *Lenses
	target string
	id     uuid.UUID
	closed atomic.Bool
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Context returns the execution context the session was built in.
func (s *Session) Context() execctx.Context {
	return s.ctx
}

// Source returns the frames source, or nil for the default camera.
func (s *Session) Source() Source {
	return s.source
}

func (s *Session) Target() string {
	return s.target
}

func (s *Session) Lenses() *Lenses {
	return s.lenses
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close stops the session. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		Logger().Info("session closed", zap.String("session", s.id.String()))
	}
	return nil
}

// FileSourceIn returns a file source for the asset name, copied into
// cacheDir on first use.
func FileSourceIn(ctx execctx.Context, cacheDir, name string) (*FileSource, error) {
	p := filepath.Join(cacheDir, filepath.FromSlash(name))
	if _, err := os.Stat(p); err == nil {
		return NewFileSource(p)
	}
	asset, err := ctx.OpenAsset(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.New(errors.PhaseSession, errors.KindIO).Path(cacheDir).Cause(err).Detail("create cache dir").Build()
	}
	if err := os.WriteFile(p, asset.Data, 0o644); err != nil {
		return nil, errors.New(errors.PhaseSession, errors.KindIO).Path(p).Cause(err).Detail("copy asset").Build()
	}
	return NewFileSource(p)
}
