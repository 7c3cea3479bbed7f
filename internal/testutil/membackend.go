package testutil

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/vk/hostmaint/internal/backend"
)

// MemBackend is an in-memory backend.Backend that records every call.
type MemBackend struct {
	mu sync.Mutex

	quota  backend.Quota
	copies map[string]map[string][]byte
	clock  time.Time

	// FailOpen makes OpenSink fail for the given paths.
	FailOpen map[string]error
	// FailDelete makes DeletePrefix fail for the given prefixes.
	FailDelete map[string]error
	// FailClose makes Close(true) of every session fail.
	FailClose error

	// Events lists calls in order, e.g. "commit p/x", "abort-session p".
	Events   []string
	Sessions []*MemSession
}

// NewMemBackend creates a backend with the given retention quota.
func NewMemBackend(q backend.Quota) *MemBackend {
	return &MemBackend{
		quota:      q,
		copies:     make(map[string]map[string][]byte),
		clock:      time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		FailOpen:   make(map[string]error),
		FailDelete: make(map[string]error),
	}
}

// Seed adds an existing copy holding one object of size bytes.
func (m *MemBackend) Seed(prefix string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copies[prefix] = map[string][]byte{"seed": make([]byte, size)}
}

// Prefixes lists the stored copies, sorted.
func (m *MemBackend) Prefixes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.copies {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Object returns a committed object's content.
func (m *MemBackend) Object(prefix, path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.copies[prefix][path]
	return data, ok
}

// EventLog returns a copy of Events.
func (m *MemBackend) EventLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Events)
}

func (m *MemBackend) event(format string, args ...any) {
	m.Events = append(m.Events, fmt.Sprintf(format, args...))
}

func (m *MemBackend) Name() string         { return "mem" }
func (m *MemBackend) Quota() backend.Quota { return m.quota }

func (m *MemBackend) Begin(ctx context.Context) (backend.Session, error) {
	prefix, err := backend.AllocatePrefix(ctx, m.tick, func(p string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.copies[p]; ok {
			return backend.ErrPrefixExists
		}
		m.copies[p] = map[string][]byte{}
		m.event("begin %s", p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s := &MemSession{b: m, prefix: prefix}
	m.mu.Lock()
	m.Sessions = append(m.Sessions, s)
	m.mu.Unlock()
	return s, nil
}

// tick advances the fake clock by an hour per call.
func (m *MemBackend) tick() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Hour)
	return m.clock
}

func (m *MemBackend) ListPrefixes(ctx context.Context) ([]backend.PrefixUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []backend.PrefixUsage
	for p, objs := range m.copies {
		var size uint64
		for _, data := range objs {
			size += uint64(len(data))
		}
		out = append(out, backend.PrefixUsage{Prefix: p, Size: size})
	}
	slices.SortFunc(out, func(a, b backend.PrefixUsage) int {
		switch {
		case a.Prefix < b.Prefix:
			return -1
		case a.Prefix > b.Prefix:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *MemBackend) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailDelete[prefix]; err != nil {
		return err
	}
	delete(m.copies, prefix)
	m.event("delete %s", prefix)
	return nil
}

// MemSession is the session of a MemBackend run.
type MemSession struct {
	b      *MemBackend
	prefix string

	Aborted []string
	Closed  *bool
}

func (s *MemSession) Prefix() string { return s.prefix }

func (s *MemSession) OpenSink(ctx context.Context, path string, sizeHint int64) (backend.Sink, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.FailOpen[path]; err != nil {
		return nil, err
	}
	s.b.event("open %s", path)
	return &memSink{s: s, path: path}, nil
}

func (s *MemSession) Abort(ctx context.Context, committed []string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.Aborted = slices.Clone(committed)
	delete(s.b.copies, s.prefix)
	s.b.event("abort-session %s", s.prefix)
	return nil
}

func (s *MemSession) Close(ctx context.Context, ok bool) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.Closed = &ok
	s.b.event("close %s %t", s.prefix, ok)
	if ok {
		return s.b.FailClose
	}
	return nil
}

type memSink struct {
	s    *MemSession
	path string
	buf  bytes.Buffer
	done bool
}

func (k *memSink) Write(p []byte) (int, error) {
	if k.done {
		return 0, backend.ErrSinkClosed
	}
	return k.buf.Write(p)
}

func (k *memSink) Commit(ctx context.Context) (int64, error) {
	if k.done {
		return 0, backend.ErrSinkClosed
	}
	k.done = true
	b := k.s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if objs, ok := b.copies[k.s.prefix]; ok {
		objs[k.path] = slices.Clone(k.buf.Bytes())
	}
	b.event("commit %s", k.path)
	return int64(k.buf.Len()), nil
}

func (k *memSink) Abort(ctx context.Context) error {
	if k.done {
		return backend.ErrSinkClosed
	}
	k.done = true
	b := k.s.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.event("abort %s", k.path)
	return nil
}
