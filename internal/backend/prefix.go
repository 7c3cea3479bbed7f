package backend

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/hostmaint/internal/ctxlog"
)

// PrefixLayout is the prefix format: UTC RFC 3339 to the second, which sorts
// lexicographically in chronological order.
const PrefixLayout = time.RFC3339

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// NewPrefix formats the clock's current time as a prefix.
func NewPrefix(clock Clock) string {
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Format(PrefixLayout)
}

// PrefixRetry is the collision retry policy of AllocatePrefix.
var PrefixRetry = func() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)
}

// AllocatePrefix generates prefixes and hands them to claim until one is
// accepted. claim returns ErrPrefixExists when the prefix is taken; any other
// error aborts allocation.
func AllocatePrefix(ctx context.Context, clock Clock, claim func(prefix string) error) (string, error) {
	logger := ctxlog.FromContext(ctx)
	var prefix string
	op := func() error {
		prefix = NewPrefix(clock)
		err := claim(prefix)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrPrefixExists):
			logger.Debug("Prefix collision, retrying.", "prefix", prefix)
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	if err := backoff.Retry(op, backoff.WithContext(PrefixRetry(), ctx)); err != nil {
		return "", err
	}
	return prefix, nil
}
