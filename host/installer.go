package host

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/featurekit"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/execctx"
	"github.com/wippyai/featurekit/session"
	"github.com/wippyai/featurekit/split"
)

// Config names what the installer looks for.
type Config struct {
	// PluginPackage is the identity of the separately installed plugin.
	PluginPackage string
	// FeatureModule is the dynamically installed module name.
	FeatureModule string
	// PreviewAsset is a host asset the session plays when supported.
	PreviewAsset string
	// CacheDir receives the preview asset as a file.
	CacheDir string
	// LensGroup is the lens group queried after the session starts.
	LensGroup string
	// Target is the view the session attaches to.
	Target string
}

// Installer installs and sets up the feature for one host context.
type Installer struct {
	factory    *featurekit.Factory
	manager    split.Manager
	host       execctx.Context
	view       View
	logger     *zap.Logger
	feature    featurekit.Feature
	session    *session.Session
	task       *split.Task
	unregister func()
	lenses     []session.Lens
	cfg        Config
	mu         sync.Mutex
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger overrides the package logger for one installer.
func WithLogger(l *zap.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// NewInstaller creates an installer for the host context host.
func NewInstaller(factory *featurekit.Factory, manager split.Manager, host execctx.Context, view View, cfg Config, opts ...Option) *Installer {
	i := &Installer{
		factory: factory,
		manager: manager,
		host:    host,
		view:    view,
		cfg:     cfg,
		logger:  Logger(),
	}
	if i.view == nil {
		i.view = LogView{}
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TryInstall sets the feature up from the plugin package when installed,
// else from the installed feature module, else starts installing the
// module and finishes setup once it is installed.
func (i *Installer) TryInstall(ctx context.Context) error {
	i.view.ShowLoading(true)

	loader, ok, err := i.factory.PackageLoader(ctx, i.host, i.cfg.PluginPackage)
	if err != nil {
		i.fail(err)
		return err
	}
	if ok {
		i.view.ShowMessage(fmt.Sprintf("Loading feature from plugin %s", i.cfg.PluginPackage))
		return i.OnInstalled(ctx, loader)
	}

	if slices.Contains(i.manager.InstalledModules(), i.cfg.FeatureModule) {
		i.view.ShowMessage("Loading feature module")
		return i.OnInstalled(ctx, i.factory.ServiceLoader(i.host))
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.task != nil {
		i.logger.Warn("feature install task may be running already", zap.String("task", i.task.ID()))
		return nil
	}

	lctx := context.WithoutCancel(ctx)
	unregister := i.manager.RegisterListener(func(s split.State) {
		if s.Status != split.Installed || !slices.Contains(s.Modules, i.cfg.FeatureModule) {
			return
		}
		i.view.ShowMessage("Loading feature module")
		_ = i.OnInstalled(lctx, i.factory.ServiceLoader(i.host))
	})

	task, err := i.manager.StartInstall(lctx, split.NewRequest(i.cfg.FeatureModule))
	if err != nil {
		unregister()
		i.fail(err)
		return err
	}
	if i.unregister != nil {
		i.unregister()
	}
	i.unregister = unregister
	i.task = task
	go i.watchFailure(task)
	return nil
}

// watchFailure resets the installer when task fails so a later TryInstall
// starts over.
func (i *Installer) watchFailure(task *split.Task) {
	<-task.Done()
	err := task.Err()
	if err == nil {
		return
	}
	i.mu.Lock()
	if i.task == task {
		i.task = nil
	}
	i.mu.Unlock()
	i.fail(err)
}

// OnInstalled loads the feature from loader. It does nothing but log a
// warning when the feature is already set up.
func (i *Installer) OnInstalled(ctx context.Context, loader featurekit.Loader) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.feature != nil {
		i.logger.Warn("feature has been set up already")
		i.view.ShowLoading(false)
		i.view.HideInstallButton()
		return nil
	}

	feature, err := loader.Load(ctx)
	if err != nil {
		i.fail(err)
		return err
	}
	i.feature = feature

	if !feature.Supported() {
		i.view.ShowUnsupported()
		i.view.ShowLoading(false)
		i.view.HideInstallButton()
		return nil
	}

	if err := i.startSession(ctx, feature); err != nil {
		i.fail(err)
		return err
	}
	i.view.ShowLenses(i.lenses)
	i.view.ShowLoading(false)
	i.view.HideInstallButton()
	return nil
}

// startSession must be called with i.mu held.
func (i *Installer) startSession(ctx context.Context, feature featurekit.Feature) error {
	builder := feature.NewSessionBuilder().AttachTo(i.cfg.Target)
	if i.cfg.PreviewAsset != "" {
		src, err := session.FileSourceIn(i.host, i.cfg.CacheDir, i.cfg.PreviewAsset)
		if err != nil {
			return errors.Wrap(errors.PhaseSession, errors.KindIO, err, "copy preview "+i.cfg.PreviewAsset)
		}
		builder.ImageProcessorSource(src)
	}

	s, err := builder.Build()
	if err != nil {
		return err
	}
	i.session = s

	if i.cfg.LensGroup == "" {
		return nil
	}
	lenses, err := s.Lenses().Available(ctx, i.cfg.LensGroup)
	if err != nil {
		return err
	}
	i.logger.Debug("lenses query result", zap.String("group", i.cfg.LensGroup), zap.Int("count", len(lenses)))
	i.lenses = lenses
	return nil
}

// ApplyLens applies a lens listed by the last query.
func (i *Installer) ApplyLens(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.session == nil {
		return errors.New(errors.PhaseSession, errors.KindInvalidInput).Detail("no session").Build()
	}
	for _, l := range i.lenses {
		if l.ID == id {
			i.session.Lenses().Apply(l)
			i.logger.Debug("applied lens", zap.String("lens", id))
			return nil
		}
	}
	return errors.NotFound(errors.PhaseSession, "lens", id)
}

func (i *Installer) fail(err error) {
	i.view.ShowInstallFailure(err)
	i.view.ShowLoading(false)
}

// Feature returns the set-up feature, or nil.
func (i *Installer) Feature() featurekit.Feature {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.feature
}

// Session returns the running session, or nil.
func (i *Installer) Session() *session.Session {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.session
}

// Installing reports whether an install task is running.
func (i *Installer) Installing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.task != nil && i.task.Status() < split.Installed
}

// Close stops the session and the install listener.
func (i *Installer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.unregister != nil {
		i.unregister()
		i.unregister = nil
	}
	if i.session != nil {
		return i.session.Close()
	}
	return nil
}
