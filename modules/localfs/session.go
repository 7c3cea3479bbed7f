package localfs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
)

type session struct {
	b      *Backend
	prefix string
	dir    string
	// mkdirMu serializes parent directory creation between sinks.
	mkdirMu sync.Mutex
}

func (s *session) Prefix() string { return s.prefix }

// OpenSink stages writes in a hidden file next to the destination.
func (s *session) OpenSink(ctx context.Context, path string, sizeHint int64) (backend.Sink, error) {
	if !filepath.IsLocal(path) {
		return nil, errs.Backend(fmt.Errorf("path %q escapes the backup directory", path), "opening sink")
	}
	final := filepath.Join(s.dir, path)
	parent := filepath.Dir(final)

	s.mkdirMu.Lock()
	err := os.MkdirAll(parent, s.b.DirMode)
	s.mkdirMu.Unlock()
	if err != nil {
		return nil, errs.Backend(err, "creating %s", parent)
	}

	staging := filepath.Join(parent, "."+filepath.Base(final)+"."+uuid.NewString()+".part")
	f, err := os.OpenFile(staging, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errs.Backend(err, "creating %s", staging)
	}
	if sizeHint > 0 {
		if err := preallocate(f, sizeHint); err != nil {
			ctxlog.FromContext(ctx).Debug("Preallocation failed.", "path", path, "size", sizeHint, "error", err)
		}
	}

	return &sink{
		f:       f,
		w:       bufio.NewWriterSize(f, s.b.BlockSize),
		staging: staging,
		final:   final,
		mode:    s.b.FileMode,
	}, nil
}

// Abort removes committed files, then the whole run directory.
func (s *session) Abort(ctx context.Context, committed []string) error {
	logger := ctxlog.FromContext(ctx)
	var errList []error
	for _, p := range committed {
		full := filepath.Join(s.dir, p)
		logger.Debug("Removing committed file.", "path", full)
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errList = append(errList, err)
		}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		errList = append(errList, err)
	}
	return errs.Backend(errors.Join(errList...), "rolling back %s", s.dir)
}

func (s *session) Close(ctx context.Context, ok bool) error {
	if !ok {
		return nil
	}
	d, err := os.Open(s.dir)
	if err != nil {
		return errs.Backend(err, "syncing %s", s.dir)
	}
	defer d.Close()
	return errs.Backend(d.Sync(), "syncing %s", s.dir)
}

type sink struct {
	f       *os.File
	w       *bufio.Writer
	staging string
	final   string
	mode    os.FileMode
	written int64
	closed  bool
}

func (k *sink) Write(p []byte) (int, error) {
	if k.closed {
		return 0, backend.ErrSinkClosed
	}
	n, err := k.w.Write(p)
	k.written += int64(n)
	return n, err
}

// Commit trims any preallocated tail, syncs, applies the file mode and
// renames the staging file into place.
func (k *sink) Commit(ctx context.Context) (int64, error) {
	if k.closed {
		return 0, backend.ErrSinkClosed
	}
	k.closed = true

	err := k.w.Flush()
	if err == nil {
		err = k.f.Truncate(k.written)
	}
	if err == nil {
		err = k.f.Sync()
	}
	if err == nil {
		err = k.f.Chmod(k.mode)
	}
	if cerr := k.f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(k.staging, k.final)
	}
	if err != nil {
		os.Remove(k.staging)
		return 0, errs.Backend(err, "committing %s", k.final)
	}
	return k.written, nil
}

func (k *sink) Abort(ctx context.Context) error {
	if k.closed {
		return backend.ErrSinkClosed
	}
	k.closed = true
	k.f.Close()
	if err := os.Remove(k.staging); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errs.Backend(err, "removing %s", k.staging)
	}
	return nil
}
