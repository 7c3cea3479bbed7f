// Package localfs implements the "localfs" backend, which stores each backup
// run as a directory named after its prefix under a local root.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
)

// Name is the backend type used in task configuration.
const Name = "localfs"

const (
	defaultDirMode  fs.FileMode = 0o750
	defaultFileMode fs.FileMode = 0o640
)

// Module implements the backend.Module interface for this package.
type Module struct{}

// Register registers the localfs backend factory.
func (m *Module) Register(r *backend.Registry) {
	r.Register(Name, New)
}

// Backend stores copies under Root/<prefix>/.
type Backend struct {
	Root      string
	DirMode   fs.FileMode
	FileMode  fs.FileMode
	BlockSize int
	quota     backend.Quota
	clock     backend.Clock
}

// New builds the backend from task parameters.
func New(ctx context.Context, params config.Params) (backend.Backend, error) {
	pr := backend.NewParamReader(Name, params)
	b := &Backend{
		Root:      pr.Required("root"),
		DirMode:   pr.Mode("dmode", defaultDirMode),
		FileMode:  pr.Mode("fmode", defaultFileMode),
		BlockSize: int(pr.Size("block-size", uint64(os.Getpagesize()))),
		quota:     pr.Quota(),
	}
	if err := pr.Err(); err != nil {
		return nil, err
	}
	if b.BlockSize <= 0 {
		return nil, errs.Configf("localfs backend-param: block-size must be positive")
	}
	return b, nil
}

func (b *Backend) Name() string         { return Name }
func (b *Backend) Quota() backend.Quota { return b.quota }

// IOSize implements backend.IOSizer.
func (b *Backend) IOSize() int { return b.BlockSize }

func (b *Backend) String() string {
	return fmt.Sprintf("localfs root=%s %s dmode=%o fmode=%o", b.Root, b.quota, b.DirMode, b.FileMode)
}

// Begin creates Root/<prefix> exclusively.
func (b *Backend) Begin(ctx context.Context) (backend.Session, error) {
	if err := os.MkdirAll(b.Root, b.DirMode); err != nil {
		return nil, errs.Backend(err, "creating root %s", b.Root)
	}
	prefix, err := backend.AllocatePrefix(ctx, b.clock, func(p string) error {
		err := os.Mkdir(filepath.Join(b.Root, p), b.DirMode)
		if errors.Is(err, fs.ErrExist) {
			return backend.ErrPrefixExists
		}
		return err
	})
	if err != nil {
		return nil, errs.Backend(err, "allocating prefix under %s", b.Root)
	}

	dir := filepath.Join(b.Root, prefix)
	ctxlog.FromContext(ctx).Debug("Backup directory created.", "dir", dir)
	return &session{b: b, prefix: prefix, dir: dir}, nil
}

// ListPrefixes lists the non-symlink directories of Root by name. A missing
// root has no copies.
func (b *Backend) ListPrefixes(ctx context.Context) ([]backend.PrefixUsage, error) {
	entries, err := os.ReadDir(b.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Backend(err, "reading %s", b.Root)
	}

	var out []backend.PrefixUsage
	for _, e := range entries {
		if !e.IsDir() || e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		size, err := du(filepath.Join(b.Root, e.Name()))
		if err != nil {
			return nil, errs.Backend(err, "measuring %s", e.Name())
		}
		out = append(out, backend.PrefixUsage{Prefix: e.Name(), Size: size})
	}
	return out, nil
}

// DeletePrefix removes Root/prefix recursively.
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	if !filepath.IsLocal(prefix) || filepath.Base(prefix) != prefix {
		return errs.Backend(fmt.Errorf("invalid prefix %q", prefix), "deleting")
	}
	return errs.Backend(os.RemoveAll(filepath.Join(b.Root, prefix)), "deleting %s", prefix)
}

// du sums the sizes of regular files under dir; symlinks are not followed.
func du(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		return nil
	})
	return total, err
}
