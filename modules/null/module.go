// Package null implements the "null" backend: every write is discarded and
// no copy is ever listed. It is meant for dry runs of backup pipelines.
package null

import (
	"context"
	"io"

	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
)

// Name is the backend type used in task configuration.
const Name = "null"

// Module implements the backend.Module interface for this package.
type Module struct{}

// Register registers the null backend factory.
func (m *Module) Register(r *backend.Registry) {
	r.Register(Name, New)
}

// New builds the backend. The null backend accepts no parameters except the
// common quota pair, which it ignores.
func New(ctx context.Context, params config.Params) (backend.Backend, error) {
	pr := backend.NewParamReader(Name, params)
	pr.String("root", "")
	pr.Quota()
	if err := pr.Err(); err != nil {
		return nil, err
	}
	return Backend{}, nil
}

// Backend is the null backend.
type Backend struct{}

func (Backend) Name() string         { return Name }
func (Backend) Quota() backend.Quota { return backend.NoQuota }

func (Backend) Begin(ctx context.Context) (backend.Session, error) {
	return session{prefix: backend.NewPrefix(nil)}, nil
}

func (Backend) ListPrefixes(ctx context.Context) ([]backend.PrefixUsage, error) {
	return nil, nil
}

func (Backend) DeletePrefix(ctx context.Context, prefix string) error { return nil }

type session struct {
	prefix string
}

func (s session) Prefix() string { return s.prefix }

func (s session) OpenSink(ctx context.Context, path string, sizeHint int64) (backend.Sink, error) {
	return &sink{}, nil
}

func (session) Abort(ctx context.Context, committed []string) error { return nil }
func (session) Close(ctx context.Context, ok bool) error            { return nil }

type sink struct {
	closed bool
}

func (s *sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, backend.ErrSinkClosed
	}
	return io.Discard.Write(p)
}

func (s *sink) Commit(ctx context.Context) (int64, error) {
	if s.closed {
		return 0, backend.ErrSinkClosed
	}
	s.closed = true
	return 0, nil
}

func (s *sink) Abort(ctx context.Context) error {
	if s.closed {
		return backend.ErrSinkClosed
	}
	s.closed = true
	return nil
}
