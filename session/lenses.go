package session

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/wippyai/featurekit/errors"
)

// LensDir is the assets directory holding lens groups.
const LensDir = "lenses"

// Lens is an effect a session can apply.
type Lens struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Group   string `yaml:"-"`
	Preview string `yaml:"preview,omitempty"`
}

// Lenses is a session's lens catalog, read from lenses/<group>/*.yaml in
// the session's assets.
type Lenses struct {
	assets  fs.FS
	applied *Lens
	mu      sync.Mutex
}

// Available returns the lenses of group sorted by ID. An unknown group has
// no lenses.
func (l *Lenses) Available(ctx context.Context, group string) ([]Lens, error) {
	if group == "" || strings.ContainsAny(group, `/\*?[{`) {
		return nil, errors.InvalidInput(errors.PhaseSession, "invalid lens group "+group)
	}

	matches, err := doublestar.Glob(l.assets, path.Join(LensDir, group, "*.yaml"))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSession, errors.KindIO, err, "list lens group "+group)
	}
	sort.Strings(matches)

	lenses := make([]Lens, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(l.assets, m)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseSession, errors.KindIO, err, "read lens "+m)
		}
		var lens Lens
		if err := yaml.Unmarshal(data, &lens); err != nil {
			return nil, errors.New(errors.PhaseSession, errors.KindInvalidManifest).
				Path(m).Cause(err).Detail("parse lens").Build()
		}
		if lens.ID == "" {
			lens.ID = strings.TrimSuffix(path.Base(m), ".yaml")
		}
		lens.Group = group
		lenses = append(lenses, lens)
	}
	sort.Slice(lenses, func(i, j int) bool { return lenses[i].ID < lenses[j].ID })
	Logger().Debug("lenses queried", zap.String("group", group), zap.Int("count", len(lenses)))
	return lenses, nil
}

// Apply makes lens the active lens.
func (l *Lenses) Apply(lens Lens) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = &lens
	Logger().Debug("lens applied", zap.String("lens", lens.ID), zap.String("group", lens.Group))
}

// Applied returns the active lens.
func (l *Lenses) Applied() (Lens, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied == nil {
		return Lens{}, false
	}
	return *l.applied, true
}
