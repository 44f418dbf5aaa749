package pkgmeta

import (
	"context"
	"sort"
	"sync"

	"github.com/wippyai/featurekit/errors"
)

// MemIndex is an in-memory Index. Paths in registered Info values are used
// as given.
type MemIndex struct {
	pkgs map[string]*Info
	mu   sync.RWMutex
}

func NewMemIndex(infos ...*Info) *MemIndex {
	m := &MemIndex{pkgs: make(map[string]*Info)}
	for _, info := range infos {
		m.pkgs[info.Identity] = info.Clone()
	}
	return m
}

// Add registers or replaces a package.
func (m *MemIndex) Add(info *Info) error {
	if err := ValidateIdentity(info.Identity); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pkgs[info.Identity] = info.Clone()
	return nil
}

// Remove uninstalls a package. It reports whether the package was present.
func (m *MemIndex) Remove(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pkgs[identity]
	delete(m.pkgs, identity)
	return ok
}

func (m *MemIndex) Lookup(ctx context.Context, identity string) (*Info, error) {
	if err := checkLookup(identity); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.pkgs[identity]
	if !ok {
		return nil, errors.NotInstalled(identity)
	}
	return info.Clone(), nil
}

func (m *MemIndex) List(ctx context.Context) ([]*Info, error) {
	m.mu.RLock()
	infos := make([]*Info, 0, len(m.pkgs))
	for _, info := range m.pkgs {
		infos = append(infos, info.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	return infos, nil
}
