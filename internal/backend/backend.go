package backend

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrSinkClosed is returned by a Sink once Commit or Abort was called.
	ErrSinkClosed = errors.New("sink already closed")
	// ErrPrefixExists signals that a freshly generated prefix is taken.
	ErrPrefixExists = errors.New("prefix already exists")
)

// PrefixUsage is one backup copy found under a backend root.
type PrefixUsage struct {
	Prefix string
	Size   uint64
}

// Backend is a configured storage target.
type Backend interface {
	// Name is the registered backend type, e.g. "localfs".
	Name() string
	// Begin allocates a new prefix and opens a run session on it.
	Begin(ctx context.Context) (Session, error)
	// ListPrefixes returns every copy under the root, oldest first.
	ListPrefixes(ctx context.Context) ([]PrefixUsage, error)
	// DeletePrefix irreversibly removes every artifact under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Quota is the retention policy applied by Rotate.
	Quota() Quota
}

// Session is one backup run under a single prefix. Sinks of a session may be
// used concurrently provided they target distinct paths.
type Session interface {
	Prefix() string
	// OpenSink opens a writer for path relative to the prefix. sizeHint is
	// negative when unknown.
	OpenSink(ctx context.Context, path string, sizeHint int64) (Sink, error)
	// Abort removes the committed paths and anything else the run left
	// behind. It is called at most once, before Close.
	Abort(ctx context.Context, committed []string) error
	// Close ends the session. ok reports whether every object committed.
	Close(ctx context.Context, ok bool) error
}

// Sink receives one object's data. Exactly one of Commit or Abort takes
// effect; any later call returns ErrSinkClosed.
type Sink interface {
	io.Writer
	// Commit finalizes the artifact and returns the number of bytes the
	// backend retains for it.
	Commit(ctx context.Context) (int64, error)
	// Abort discards whatever was written.
	Abort(ctx context.Context) error
}

// IOSizer is implemented by backends with a preferred write size. Pipelines
// copy into their sinks in chunks of that size.
type IOSizer interface {
	IOSize() int
}
