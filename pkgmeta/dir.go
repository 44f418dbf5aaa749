package pkgmeta

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"

	"github.com/wippyai/featurekit/errors"
)

// DirIndex is an Index over packages installed under a root directory.
// Metadata is read on every lookup so installs and removals are observed
// without invalidation.
type DirIndex struct {
	root string
}

// NewDirIndex creates an index rooted at dir.
func NewDirIndex(dir string) *DirIndex {
	return &DirIndex{root: dir}
}

// Root returns the index root directory.
func (d *DirIndex) Root() string {
	return d.root
}

func (d *DirIndex) Lookup(ctx context.Context, identity string) (*Info, error) {
	if err := checkLookup(identity); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readManifest(filepath.Join(d.root, identity), identity)
}

// List returns all packages with a readable manifest, sorted by identity.
// Packages with broken manifests are skipped.
func (d *DirIndex) List(ctx context.Context) ([]*Info, error) {
	if _, err := os.Stat(d.root); os.IsNotExist(err) {
		return nil, nil
	}

	var (
		mu    sync.Mutex
		infos []*Info
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if filepath.Dir(rel) != "." {
			return fs.SkipDir
		}

		info, readErr := readManifest(path, entry.Name())
		if readErr == nil {
			mu.Lock()
			infos = append(infos, info)
			mu.Unlock()
		}
		return fs.SkipDir
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLookup, errors.KindIO, err, "scan "+d.root)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Identity < infos[j].Identity })
	return infos, nil
}

func readManifest(dir, identity string) (*Info, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotInstalled(identity)
		}
		return nil, errors.Load(identity, "read manifest", err)
	}

	info, err := ParseManifest(data)
	if err != nil {
		return nil, errors.InvalidManifest(identity, path, err)
	}
	if info.Identity == "" {
		info.Identity = identity
	}
	if info.Identity != identity {
		return nil, errors.New(errors.PhaseLookup, errors.KindInvalidManifest).
			Identity(identity).
			Path(path).
			Detail("manifest declares identity %q", info.Identity).
			Build()
	}

	info.Root = dir
	info.resolvePaths(func(p string) bool {
		_, statErr := os.Stat(p)
		return statErr == nil
	})
	return info, nil
}

// ParseManifest decodes a package.yaml document. Unknown fields are rejected.
func ParseManifest(data []byte) (*Info, error) {
	var info Info
	if err := yaml.UnmarshalWithOptions(data, &info, yaml.Strict()); err != nil {
		return nil, err
	}
	return &info, nil
}

// MarshalManifest encodes info as a package.yaml document.
func MarshalManifest(info *Info) ([]byte, error) {
	return yaml.Marshal(info)
}
