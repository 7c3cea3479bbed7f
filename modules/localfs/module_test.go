package localfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/zclconf/go-cty/cty"
)

func newTestBackend(t *testing.T, params config.Params) *Backend {
	t.Helper()
	root := filepath.Join(t.TempDir(), "backup")
	if params == nil {
		params = config.Params{}
	}
	params["root"] = cty.StringVal(root)
	b, err := New(context.Background(), params)
	require.NoError(t, err)

	n := 0
	lb := b.(*Backend)
	lb.clock = func() time.Time {
		n++
		return time.Date(2026, 5, 1, 0, 0, n, 0, time.UTC)
	}
	return lb
}

func writeObject(t *testing.T, sess backend.Session, path, content string, hint int64) {
	t.Helper()
	ctx := context.Background()
	sink, err := sess.OpenSink(ctx, path, hint)
	require.NoError(t, err)
	_, err = sink.Write([]byte(content))
	require.NoError(t, err)
	n, err := sink.Commit(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), n)
}

func TestNew_Defaults(t *testing.T) {
	b := newTestBackend(t, nil)
	assert.Equal(t, fs.FileMode(0o750), b.DirMode)
	assert.Equal(t, fs.FileMode(0o640), b.FileMode)
	assert.Equal(t, os.Getpagesize(), b.BlockSize)
	assert.Equal(t, backend.NoQuota, b.Quota())
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(context.Background(), config.Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfig)
	assert.Contains(t, err.Error(), "root: required")
}

func TestCommitAndList(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, config.Params{"fmode": cty.StringVal("600")})

	sess, err := b.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01T00:00:01Z", sess.Prefix())

	writeObject(t, sess, "etc.tar", "hello", 1<<20)
	writeObject(t, sess, "db/dump.sql", "0123456789", -1)
	require.NoError(t, sess.Close(ctx, true))

	final := filepath.Join(b.Root, sess.Prefix(), "etc.tar")
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data), "preallocated tail is trimmed")

	info, err := os.Stat(final)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())

	// No staging files remain.
	matches, err := filepath.Glob(filepath.Join(b.Root, sess.Prefix(), "db", ".*.part"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Symlinks and files in the root are not copies.
	require.NoError(t, os.Symlink(filepath.Join(b.Root, sess.Prefix()), filepath.Join(b.Root, "latest")))
	require.NoError(t, os.WriteFile(filepath.Join(b.Root, "README"), []byte("x"), 0o644))

	usage, err := b.ListPrefixes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []backend.PrefixUsage{{Prefix: sess.Prefix(), Size: 15}}, usage)
}

func TestSinkAbort(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, nil)
	sess, err := b.Begin(ctx)
	require.NoError(t, err)

	sink, err := sess.OpenSink(ctx, "partial.bin", 64)
	require.NoError(t, err)
	_, err = sink.Write([]byte("half"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort(ctx))

	_, err = sink.Commit(ctx)
	assert.ErrorIs(t, err, backend.ErrSinkClosed)

	entries, err := os.ReadDir(filepath.Join(b.Root, sess.Prefix()))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSessionAbortRemovesRun(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, nil)
	sess, err := b.Begin(ctx)
	require.NoError(t, err)
	writeObject(t, sess, "a/b/c.txt", "abc", -1)

	require.NoError(t, sess.Abort(ctx, []string{"a/b/c.txt"}))
	require.NoError(t, sess.Close(ctx, false))

	_, err = os.Stat(filepath.Join(b.Root, sess.Prefix()))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenSink_RejectsEscapingPath(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, nil)
	sess, err := b.Begin(ctx)
	require.NoError(t, err)

	_, err = sess.OpenSink(ctx, "../outside", -1)
	assert.ErrorIs(t, err, errs.ErrBackend)
}

func TestBegin_PrefixCollision(t *testing.T) {
	orig := backend.PrefixRetry
	backend.PrefixRetry = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	t.Cleanup(func() { backend.PrefixRetry = orig })

	ctx := context.Background()
	b := newTestBackend(t, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(b.Root, "2026-05-01T00:00:01Z"), 0o750))

	sess, err := b.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01T00:00:02Z", sess.Prefix())
}

func TestRotateWithLocalfs(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, config.Params{"nb-copy-limit": cty.NumberIntVal(2)})

	var prefixes []string
	for i := 0; i < 4; i++ {
		sess, err := b.Begin(ctx)
		require.NoError(t, err)
		writeObject(t, sess, "x", "data", -1)
		require.NoError(t, sess.Close(ctx, true))
		prefixes = append(prefixes, sess.Prefix())
	}

	deleted, err := backend.Rotate(ctx, b, prefixes[3])
	require.NoError(t, err)
	assert.Equal(t, prefixes[:2], deleted)

	usage, err := b.ListPrefixes(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, prefixes[2], usage[0].Prefix)
	assert.Equal(t, prefixes[3], usage[1].Prefix)
}
