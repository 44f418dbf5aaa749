package split

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/errors"
	"github.com/wippyai/featurekit/pkgmeta"
)

const zipExt = ".zip"

// LocalConfig configures a Local manager.
type LocalConfig struct {
	// Target receives the code source of each installed module.
	Target *classloader.StaticLoader
	// Metrics is optional.
	Metrics *Metrics
	Logger  *zap.Logger
	// Catalog holds the modules available for install, each as <name>/ or
	// <name>.zip.
	Catalog string
	// InstallDir holds installed modules. Modules found there at start are
	// installed immediately.
	InstallDir string
}

// Local installs modules from a catalog directory on the local file system.
type Local struct {
	target     *classloader.StaticLoader
	metrics    *Metrics
	logger     *zap.Logger
	installed  map[string]*classloader.CodeSource
	inflight   map[string]string
	listeners  map[int]func(State)
	catalog    string
	installDir string
	nextID     int
	mu         sync.Mutex
}

var _ Manager = (*Local)(nil)

// NewLocal creates the manager and installs the modules already present in
// cfg.InstallDir.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Target == nil {
		return nil, errors.InvalidInput(errors.PhaseInstall, "target loader is required")
	}
	if cfg.Catalog == "" || cfg.InstallDir == "" {
		return nil, errors.InvalidInput(errors.PhaseInstall, "catalog and install directories are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	if err := os.MkdirAll(cfg.InstallDir, 0o755); err != nil {
		return nil, errors.New(errors.PhaseInstall, errors.KindIO).
			Path(cfg.InstallDir).Cause(err).Detail("create install dir").Build()
	}

	l := &Local{
		target:     cfg.Target,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		installed:  make(map[string]*classloader.CodeSource),
		inflight:   make(map[string]string),
		listeners:  make(map[int]func(State)),
		catalog:    cfg.Catalog,
		installDir: cfg.InstallDir,
	}

	entries, err := os.ReadDir(cfg.InstallDir)
	if err != nil {
		return nil, errors.New(errors.PhaseInstall, errors.KindIO).
			Path(cfg.InstallDir).Cause(err).Detail("read install dir").Build()
	}
	for _, e := range entries {
		name := moduleName(e.Name())
		if strings.HasPrefix(e.Name(), ".") || pkgmeta.ValidateIdentity(name) != nil {
			continue
		}
		if err := l.activate(name, filepath.Join(cfg.InstallDir, e.Name())); err != nil {
			l.logger.Warn("skipping installed module", zap.String("module", name), zap.Error(err))
		}
	}
	return l, nil
}

func moduleName(file string) string {
	return strings.TrimSuffix(file, zipExt)
}

// InstalledModules returns the installed module names, sorted.
func (l *Local) InstalledModules() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.installed))
	for name := range l.installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableModules lists the modules in the catalog, sorted.
func (l *Local) AvailableModules() ([]string, error) {
	entries, err := os.ReadDir(l.catalog)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.PhaseInstall, errors.KindIO).
			Path(l.catalog).Cause(err).Detail("read catalog").Build()
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && !strings.HasSuffix(e.Name(), zipExt) {
			continue
		}
		name := moduleName(e.Name())
		if pkgmeta.ValidateIdentity(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) RegisterListener(fn func(State)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// StartInstall validates req and installs its modules in the background.
// Requesting a module that another task is installing fails. Canceling ctx
// cancels the install.
func (l *Local) StartInstall(ctx context.Context, req Request) (*Task, error) {
	if len(req.Modules) == 0 {
		return nil, errors.InvalidInput(errors.PhaseInstall, "install request names no modules")
	}
	modules := slices.Clone(req.Modules)
	slices.Sort(modules)
	modules = slices.Compact(modules)
	for _, m := range modules {
		if err := pkgmeta.ValidateIdentity(m); err != nil {
			return nil, errors.Wrap(errors.PhaseInstall, errors.KindInvalidInput, err, "invalid module name")
		}
	}

	task := newTask(uuid.NewString(), modules)

	l.mu.Lock()
	for _, m := range modules {
		if other, busy := l.inflight[m]; busy {
			l.mu.Unlock()
			return nil, errors.New(errors.PhaseInstall, errors.KindInvalidInput).
				Identity(m).
				Detail("module is being installed by task %s", other).
				Build()
		}
	}
	for _, m := range modules {
		l.inflight[m] = task.id
	}
	l.mu.Unlock()

	l.logger.Info("module install started",
		zap.String("task", task.id),
		zap.Strings("modules", modules))
	go l.run(ctx, task)
	return task, nil
}

func (l *Local) run(ctx context.Context, task *Task) {
	state := State{TaskID: task.id, Modules: task.modules}
	l.emit(task, state)

	var pending []string
	for _, m := range task.modules {
		if !l.isInstalled(m) {
			pending = append(pending, m)
		}
	}

	sources := make(map[string]string, len(pending))
	for _, m := range pending {
		src, err := l.locate(m)
		if err != nil {
			l.fail(ctx, task, state, err)
			return
		}
		size, err := treeSize(ctx, src)
		if err != nil {
			l.fail(ctx, task, state, errors.New(errors.PhaseInstall, errors.KindIO).
				Identity(m).Path(src).Cause(err).Detail("stat module").Build())
			return
		}
		sources[m] = src
		state.Total += size
	}

	state.Status = Downloading
	l.emit(task, state)

	staged := make(map[string]string, len(pending))
	staging := filepath.Join(l.installDir, ".task-"+task.id)
	defer os.RemoveAll(staging)
	for _, m := range pending {
		src := sources[m]
		dst := filepath.Join(staging, filepath.Base(src))
		n, err := copyTree(ctx, src, dst)
		state.Downloaded += n
		if l.metrics != nil {
			l.metrics.DownloadedBytes.Add(float64(n))
		}
		if err != nil {
			l.fail(ctx, task, state, errors.New(errors.PhaseInstall, errors.KindIO).
				Identity(m).Path(src).Cause(err).Detail("download module").Build())
			return
		}
		staged[m] = dst
		l.emit(task, state)
	}

	state.Status = Installing
	l.emit(task, state)
	for _, m := range pending {
		final := filepath.Join(l.installDir, filepath.Base(staged[m]))
		if err := os.Rename(staged[m], final); err != nil {
			l.fail(ctx, task, state, errors.New(errors.PhaseInstall, errors.KindIO).
				Identity(m).Path(final).Cause(err).Detail("move module into place").Build())
			return
		}
		if err := l.activate(m, final); err != nil {
			l.fail(ctx, task, state, err)
			return
		}
	}

	state.Status = Installed
	l.finish(task, state)
	l.logger.Info("module install finished",
		zap.String("task", task.id),
		zap.Strings("modules", task.modules),
		zap.Int64("bytes", state.Downloaded))
}

// locate finds module m in the catalog.
func (l *Local) locate(m string) (string, error) {
	for _, p := range []string{filepath.Join(l.catalog, m), filepath.Join(l.catalog, m+zipExt)} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New(errors.PhaseInstall, errors.KindNotFound).
		Identity(m).
		Path(l.catalog).
		Detail("module not in catalog").
		Build()
}

// activate opens an installed module and adds it to the target loader.
func (l *Local) activate(name, p string) error {
	src, err := classloader.OpenSource(p)
	if err != nil {
		return errors.Wrap(errors.PhaseInstall, errors.KindIO, err, "open module "+name)
	}

	l.mu.Lock()
	if _, ok := l.installed[name]; ok {
		l.mu.Unlock()
		_ = src.Close()
		return nil
	}
	l.installed[name] = src
	l.mu.Unlock()

	l.target.AddSource(src)
	if l.metrics != nil {
		l.metrics.Installed.Inc()
	}
	l.logger.Debug("module activated", zap.String("module", name), zap.String("path", p))
	return nil
}

func (l *Local) isInstalled(m string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.installed[m]
	return ok
}

func (l *Local) fail(ctx context.Context, task *Task, state State, err error) {
	state.Status = Failed
	if ctx.Err() != nil {
		state.Status = Canceled
		err = ctx.Err()
	}
	state.Err = err
	l.finish(task, state)
	l.logger.Warn("module install failed",
		zap.String("task", task.id),
		zap.Strings("modules", task.modules),
		zap.Error(err))
}

func (l *Local) finish(task *Task, state State) {
	l.mu.Lock()
	for _, m := range task.modules {
		delete(l.inflight, m)
	}
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.Installs.WithLabelValues(state.Status.String()).Inc()
	}
	l.emit(task, state)
}

// emit delivers state to listeners, then records it on the task, so a
// task is Done only after listeners saw its terminal state.
func (l *Local) emit(task *Task, state State) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.listeners[id])
	}
	l.mu.Unlock()

	state.Modules = slices.Clone(state.Modules)
	for _, fn := range fns {
		fn(state)
	}
	task.set(state.Status, state.Err)
}

// Close releases the code sources of installed modules. The target loader
// must not be used to load module classes afterwards.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for name, src := range l.installed {
		if err := src.Close(); err != nil && first == nil {
			first = err
		}
		delete(l.installed, name)
	}
	if l.metrics != nil {
		l.metrics.Installed.Set(0)
	}
	return first
}
