// Package assets reads and writes photo renditions on the local filesystem.
//
// Low-resolution previews live under the public directory and originals
// under the private one. Paths are always resolved inside their root, so a
// stored path cannot escape it.
package assets

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"

	"github.com/fbccsz/yshpics/internal/domain/catalog"
	"github.com/fbccsz/yshpics/internal/domain/download"
)

var _ download.AssetStore = (*Store)(nil)

// Store is a filesystem asset store.
type Store struct {
	public  *os.Root
	private *os.Root
}

// Open opens the public and private roots, creating them when missing.
func Open(publicDir, privateDir string) (*Store, error) {
	public, err := openRoot(publicDir)
	if err != nil {
		return nil, errors.Wrap(err, "public dir")
	}
	private, err := openRoot(privateDir)
	if err != nil {
		_ = public.Close()
		return nil, errors.Wrap(err, "private dir")
	}
	return &Store{public: public, private: private}, nil
}

func openRoot(dir string) (*os.Root, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return os.OpenRoot(dir)
}

// Close releases both roots.
func (s *Store) Close() error {
	pubErr := s.public.Close()
	if err := s.private.Close(); err != nil {
		return err
	}
	return pubErr
}

func (s *Store) root(tier catalog.Tier) *os.Root {
	if tier == catalog.TierHigh {
		return s.private
	}
	return s.public
}

// clean turns a stored path into one relative to its root. Legacy rows store
// previews with a leading slash.
func clean(path string) string {
	return filepath.Clean(strings.TrimLeft(filepath.FromSlash(path), string(filepath.Separator)))
}

// Read implements download.AssetStore.
func (s *Store) Read(_ context.Context, tier catalog.Tier, path string) ([]byte, error) {
	f, err := s.root(tier).Open(clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// Write stores data at path, creating parent directories.
func (s *Store) Write(tier catalog.Tier, path string, data []byte) error {
	root := s.root(tier)
	p := clean(path)
	if dir := filepath.Dir(p); dir != "." {
		if err := mkdirAll(root, dir); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	f, err := root.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func mkdirAll(root *os.Root, dir string) error {
	var cur string
	for _, part := range strings.Split(dir, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		if err := root.Mkdir(cur, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return err
		}
	}
	return nil
}

// Probe verifies both roots are still readable.
func (s *Store) Probe(context.Context) error {
	if _, err := s.public.Stat("."); err != nil {
		return errors.Wrap(err, "public dir")
	}
	if _, err := s.private.Stat("."); err != nil {
		return errors.Wrap(err, "private dir")
	}
	return nil
}
