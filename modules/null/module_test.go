package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
	"github.com/zclconf/go-cty/cty"
)

func TestNullBackend(t *testing.T) {
	ctx := context.Background()
	r := backend.NewRegistry(&Module{})
	b, err := r.New(ctx, Name, config.Params{"nb-copy-limit": cty.NumberIntVal(1)})
	require.NoError(t, err)
	assert.Equal(t, backend.NoQuota, b.Quota())

	sess, err := b.Begin(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Prefix())

	sink, err := sess.OpenSink(ctx, "a/b.tar", 1024)
	require.NoError(t, err)
	n, err := sink.Write([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	retained, err := sink.Commit(ctx)
	require.NoError(t, err)
	assert.Zero(t, retained)
	assert.ErrorIs(t, sink.Abort(ctx), backend.ErrSinkClosed)
	require.NoError(t, sess.Close(ctx, true))

	prefixes, err := b.ListPrefixes(ctx)
	require.NoError(t, err)
	assert.Empty(t, prefixes)

	deleted, err := backend.Rotate(ctx, b, sess.Prefix())
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestNullBackend_UnknownParam(t *testing.T) {
	_, err := New(context.Background(), config.Params{"bucket": cty.StringVal("x")})
	assert.ErrorIs(t, err, errs.ErrConfig)
}
