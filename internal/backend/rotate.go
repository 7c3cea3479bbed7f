package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
)

// Rotate applies b's quota. Walking from the newest copy to the oldest, it
// retains copies while both the retained count and size stay within limits;
// from the first copy that would exceed either, that copy and every older
// one are deleted. current is always retained and counted. Rotate returns the
// deleted prefixes, oldest first.
func Rotate(ctx context.Context, b Backend, current string) ([]string, error) {
	logger := ctxlog.FromContext(ctx).With("backend", b.Name())
	q := b.Quota()
	if q.Copies.IsUnlimited() && q.Bytes.IsUnlimited() {
		logger.Debug("No retention limits, rotation skipped.")
		return nil, nil
	}

	usage, err := b.ListPrefixes(ctx)
	if err != nil {
		return nil, errs.Backend(err, "listing prefixes")
	}

	var (
		keptCopies uint64
		keptBytes  uint64
		expired    []PrefixUsage
		evicting   bool
	)
	for _, u := range usage {
		if u.Prefix == current {
			keptCopies++
			keptBytes += u.Size
		}
	}
	for i := len(usage) - 1; i >= 0; i-- {
		u := usage[i]
		if u.Prefix == current {
			continue
		}
		if !evicting && (q.Copies.Exceeded(keptCopies+1) || q.Bytes.Exceeded(keptBytes+u.Size)) {
			evicting = true
		}
		if evicting {
			expired = append(expired, u)
			continue
		}
		keptCopies++
		keptBytes += u.Size
	}

	logger.Debug("Rotation plan computed.",
		"copies", len(usage), "kept_copies", keptCopies, "kept_size", humanize.IBytes(keptBytes),
		"expired", len(expired), "quota", q.String())

	var deleted []string
	var errList []error
	for i := len(expired) - 1; i >= 0; i-- {
		p := expired[i].Prefix
		logger.Info("Deleting expired copy.", "prefix", p, "size", humanize.IBytes(expired[i].Size))
		if err := b.DeletePrefix(ctx, p); err != nil {
			errList = append(errList, errs.Backend(err, "deleting prefix %s", p))
			continue
		}
		deleted = append(deleted, p)
	}
	if len(errList) > 0 {
		return deleted, fmt.Errorf("rotation incomplete: %w", errors.Join(errList...))
	}
	return deleted, nil
}
