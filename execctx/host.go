package execctx

import (
	"io/fs"
	"slices"
	"sync"

	"github.com/wippyai/featurekit/classloader"
	"github.com/wippyai/featurekit/pkgmeta"
)

// HostConfig describes the host application.
type HostConfig struct {
	Loader       classloader.Loader
	Resources    fs.FS
	Assets       fs.FS
	Name         string
	Capabilities []string
}

// Host is the host application's context.
type Host struct {
	loader       classloader.Loader
	resources    fs.FS
	assets       fs.FS
	values       map[any]any
	name         string
	capabilities []string
	mu           sync.RWMutex
}

// NewHost creates the application context. A nil loader selects the
// system loader; nil trees are empty.
func NewHost(cfg HostConfig) *Host {
	h := &Host{
		loader:       cfg.Loader,
		resources:    cfg.Resources,
		assets:       cfg.Assets,
		name:         cfg.Name,
		capabilities: slices.Clone(cfg.Capabilities),
		values:       make(map[any]any),
	}
	if h.loader == nil {
		h.loader = classloader.System()
	}
	if h.resources == nil {
		h.resources = emptyFS{}
	}
	if h.assets == nil {
		h.assets = emptyFS{}
	}
	return h
}

func (h *Host) PackageName() string {
	return h.name
}

func (h *Host) Info() *pkgmeta.Info {
	return &pkgmeta.Info{Identity: h.name}
}

func (h *Host) ClassLoader() classloader.Loader {
	return h.loader
}

func (h *Host) Resources() fs.FS {
	return h.resources
}

func (h *Host) Assets() fs.FS {
	return h.assets
}

func (h *Host) OpenAsset(name string) (*Asset, error) {
	return openAsset(h.name, h.assets, name)
}

func (h *Host) Application() Application {
	return h
}

func (h *Host) ApplicationID() string {
	return h.name
}

func (h *Host) Capabilities() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.capabilities)
}

// SetCapabilities replaces the advertised capabilities.
func (h *Host) SetCapabilities(caps ...string) {
	h.mu.Lock()
	h.capabilities = slices.Clone(caps)
	h.mu.Unlock()
}

func (h *Host) Value(key any) any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.values[key]
}

// SetValue stores host state visible to every derived context.
func (h *Host) SetValue(key, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if value == nil {
		delete(h.values, key)
		return
	}
	h.values[key] = value
}

// Screen is a host context with its own lifecycle.
type Screen struct {
	Context
	lifecycle *LifecycleRegistry
	name      string
}

// NewScreen creates a screen of app in the Initialized state.
func NewScreen(app Application, name string) *Screen {
	return &Screen{Context: app, name: name, lifecycle: NewLifecycleRegistry()}
}

func (s *Screen) Name() string {
	return s.name
}

// Lifecycle returns the screen's mutable lifecycle.
func (s *Screen) Lifecycle() Lifecycle {
	return s.lifecycle
}

// Registry gives the owner write access to the lifecycle.
func (s *Screen) Registry() *LifecycleRegistry {
	return s.lifecycle
}
