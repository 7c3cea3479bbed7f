package backend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/backend"
)

func fastRetry(t *testing.T) {
	t.Helper()
	orig := backend.PrefixRetry
	backend.PrefixRetry = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}
	t.Cleanup(func() { backend.PrefixRetry = orig })
}

func TestNewPrefix(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2026, 3, 4, 5, 6, 7, 999, time.FixedZone("X", 3600))
	}
	assert.Equal(t, "2026-03-04T04:06:07Z", backend.NewPrefix(clock))
}

func TestAllocatePrefix(t *testing.T) {
	fastRetry(t)

	t.Run("retries on collision", func(t *testing.T) {
		var tried []string
		n := 0
		clock := func() time.Time {
			n++
			return time.Date(2026, 1, 1, 0, 0, n, 0, time.UTC)
		}
		p, err := backend.AllocatePrefix(context.Background(), clock, func(p string) error {
			tried = append(tried, p)
			if len(tried) < 2 {
				return backend.ErrPrefixExists
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "2026-01-01T00:00:02Z", p)
		assert.Len(t, tried, 2)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		calls := 0
		_, err := backend.AllocatePrefix(context.Background(), nil, func(string) error {
			calls++
			return backend.ErrPrefixExists
		})
		assert.ErrorIs(t, err, backend.ErrPrefixExists)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are permanent", func(t *testing.T) {
		boom := errors.New("read-only file system")
		calls := 0
		_, err := backend.AllocatePrefix(context.Background(), nil, func(string) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}
