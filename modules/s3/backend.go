package s3

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
)

// parallelism bounds concurrent per-object requests.
const parallelism = 8

// objectAPI is the subset of *minio.Client the backend uses.
type objectAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	RemoveObjects(ctx context.Context, bucket string, objects <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError
	ListIncompleteUploads(ctx context.Context, bucket, prefix string, recursive bool) <-chan minio.ObjectMultipartInfo
	RemoveIncompleteUpload(ctx context.Context, bucket, object string) error
}

// Backend stores copies as objects under <root>/<prefix>/.
type Backend struct {
	api   objectAPI
	opts  Options
	clock backend.Clock
}

func (b *Backend) Name() string         { return Name }
func (b *Backend) Quota() backend.Quota { return b.opts.Quota }

// key joins path segments under the root.
func (b *Backend) key(parts ...string) string {
	if b.opts.Root != "" {
		parts = append([]string{b.opts.Root}, parts...)
	}
	return strings.Join(parts, "/")
}

// Begin claims a prefix nothing is stored under yet.
func (b *Backend) Begin(ctx context.Context) (backend.Session, error) {
	prefix, err := backend.AllocatePrefix(ctx, b.clock, func(p string) error {
		exists, err := b.anyObject(ctx, b.key(p)+"/")
		if err != nil {
			return err
		}
		if exists {
			return backend.ErrPrefixExists
		}
		return nil
	})
	if err != nil {
		return nil, errs.Backend(err, "allocating prefix in s3://%s/%s", b.opts.Bucket, b.opts.Root)
	}
	ctxlog.FromContext(ctx).Debug("S3 backup prefix allocated.", "bucket", b.opts.Bucket, "key", b.key(prefix))
	return &session{b: b, prefix: prefix}, nil
}

func (b *Backend) anyObject(ctx context.Context, prefix string) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range b.api.ListObjects(ctx, b.opts.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true, MaxKeys: 1}) {
		if obj.Err != nil {
			return false, obj.Err
		}
		return true, nil
	}
	return false, nil
}

// ListPrefixes aggregates object sizes by the first key segment below root.
func (b *Backend) ListPrefixes(ctx context.Context) ([]backend.PrefixUsage, error) {
	base := b.key("")
	sizes := make(map[string]uint64)
	for obj := range b.api.ListObjects(ctx, b.opts.Bucket, minio.ListObjectsOptions{Prefix: base, Recursive: true}) {
		if obj.Err != nil {
			return nil, errs.Backend(obj.Err, "listing s3://%s/%s", b.opts.Bucket, base)
		}
		rest, ok := strings.CutPrefix(obj.Key, base)
		if !ok {
			return nil, errs.Backend(errors.New("unexpected key "+obj.Key), "listing s3://%s/%s", b.opts.Bucket, base)
		}
		prefix, _, found := strings.Cut(rest, "/")
		if !found {
			continue
		}
		sizes[prefix] += uint64(max(obj.Size, 0))
	}

	out := make([]backend.PrefixUsage, 0, len(sizes))
	for p, s := range sizes {
		out = append(out, backend.PrefixUsage{Prefix: p, Size: s})
	}
	slices.SortFunc(out, func(a, b backend.PrefixUsage) int { return strings.Compare(a.Prefix, b.Prefix) })
	return out, nil
}

// DeletePrefix removes every object under <root>/<prefix>/.
func (b *Backend) DeletePrefix(ctx context.Context, prefix string) error {
	if prefix == "" || strings.Contains(prefix, "/") {
		return errs.Backend(errors.New("invalid prefix "+prefix), "deleting")
	}
	return errs.Backend(b.removeAll(ctx, b.key(prefix)+"/"), "deleting s3://%s/%s", b.opts.Bucket, b.key(prefix))
}

func (b *Backend) removeAll(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErr error
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for obj := range b.api.ListObjects(ctx, b.opts.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case objects <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errList []error
	for rerr := range b.api.RemoveObjects(ctx, b.opts.Bucket, objects, minio.RemoveObjectsOptions{}) {
		errList = append(errList, rerr.Err)
	}
	// RemoveObjects drains objects before its result channel closes.
	if listErr != nil {
		errList = append(errList, listErr)
	}
	return errors.Join(errList...)
}
