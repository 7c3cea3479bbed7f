package s3

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/ctxlog"
	"github.com/vk/hostmaint/internal/errs"
	"golang.org/x/sync/errgroup"
)

const (
	minPartSize = 16 << 20
	maxParts    = 10000
)

var errSinkAborted = errors.New("sink aborted")

type session struct {
	b      *Backend
	prefix string

	mu        sync.Mutex
	committed []string
}

func (s *session) Prefix() string { return s.prefix }

// partSize fits an object of about hint bytes into the multipart limit.
func partSize(hint int64) uint64 {
	if hint <= 0 {
		return minPartSize
	}
	return max(minPartSize, uint64((hint+maxParts-1)/maxParts))
}

// OpenSink starts a streaming upload fed through a pipe. The object size is
// unknown to the store; sizeHint only sizes the multipart parts.
func (s *session) OpenSink(ctx context.Context, path string, sizeHint int64) (backend.Sink, error) {
	key := s.b.key(s.prefix, path)
	pr, pw := io.Pipe()
	k := &sink{s: s, key: key, pw: pw, done: make(chan struct{})}

	go func() {
		defer close(k.done)
		info, err := s.b.api.PutObject(ctx, s.b.opts.Bucket, key, pr, -1, minio.PutObjectOptions{
			StorageClass: s.b.opts.SinkClass,
			PartSize:     partSize(sizeHint),
		})
		k.size, k.err = info.Size, err
		pr.CloseWithError(err)
	}()
	return k, nil
}

// Abort removes the committed objects, then anything else left under the
// run's prefix.
func (s *session) Abort(ctx context.Context, committed []string) error {
	logger := ctxlog.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, p := range committed {
		key := s.b.key(s.prefix, p)
		g.Go(func() error {
			logger.Debug("Removing committed object.", "key", key)
			return s.b.api.RemoveObject(gctx, s.b.opts.Bucket, key, minio.RemoveObjectOptions{})
		})
	}
	err := g.Wait()
	err = errors.Join(err, s.b.removeAll(ctx, s.b.key(s.prefix)+"/"))
	return errs.Backend(err, "rolling back s3://%s/%s", s.b.opts.Bucket, s.b.key(s.prefix))
}

// Close applies the rotation storage class after a successful run and always
// clears incomplete multipart uploads under the prefix.
func (s *session) Close(ctx context.Context, ok bool) error {
	var errList []error
	if ok && s.b.opts.RotClass != "" && s.b.opts.RotClass != s.b.opts.SinkClass {
		errList = append(errList, s.transition(ctx))
	}
	errList = append(errList, s.cleanupUploads(ctx))
	return errs.Backend(errors.Join(errList...), "closing s3://%s/%s", s.b.opts.Bucket, s.b.key(s.prefix))
}

// transition rewrites each committed object onto itself with the rotation
// storage class.
func (s *session) transition(ctx context.Context) error {
	s.mu.Lock()
	keys := append([]string(nil), s.committed...)
	s.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, key := range keys {
		g.Go(func() error {
			logger.Debug("Changing storage class.", "key", key, "class", s.b.opts.RotClass)
			_, err := s.b.api.CopyObject(gctx,
				minio.CopyDestOptions{
					Bucket:          s.b.opts.Bucket,
					Object:          key,
					ReplaceMetadata: true,
					UserMetadata:    map[string]string{"X-Amz-Storage-Class": s.b.opts.RotClass},
				},
				minio.CopySrcOptions{Bucket: s.b.opts.Bucket, Object: key},
			)
			return err
		})
	}
	return g.Wait()
}

func (s *session) cleanupUploads(ctx context.Context) error {
	var errList []error
	for up := range s.b.api.ListIncompleteUploads(ctx, s.b.opts.Bucket, s.b.key(s.prefix)+"/", true) {
		if up.Err != nil {
			errList = append(errList, up.Err)
			break
		}
		if err := s.b.api.RemoveIncompleteUpload(ctx, s.b.opts.Bucket, up.Key); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

type sink struct {
	s    *session
	key  string
	pw   *io.PipeWriter
	done chan struct{}

	// size and err are set by the upload goroutine before done closes.
	size int64
	err  error

	closed bool
}

func (k *sink) Write(p []byte) (int, error) {
	if k.closed {
		return 0, backend.ErrSinkClosed
	}
	return k.pw.Write(p)
}

func (k *sink) Commit(ctx context.Context) (int64, error) {
	if k.closed {
		return 0, backend.ErrSinkClosed
	}
	k.closed = true
	k.pw.Close()
	<-k.done
	if k.err != nil {
		k.s.b.api.RemoveIncompleteUpload(ctx, k.s.b.opts.Bucket, k.key)
		return 0, errs.Backend(k.err, "uploading %s", k.key)
	}

	k.s.mu.Lock()
	k.s.committed = append(k.s.committed, k.key)
	k.s.mu.Unlock()
	return k.size, nil
}

func (k *sink) Abort(ctx context.Context) error {
	if k.closed {
		return backend.ErrSinkClosed
	}
	k.closed = true
	k.pw.CloseWithError(errSinkAborted)
	<-k.done

	var err error
	if k.err == nil {
		// The upload completed before the pipe was broken.
		err = k.s.b.api.RemoveObject(ctx, k.s.b.opts.Bucket, k.key, minio.RemoveObjectOptions{})
	} else {
		err = k.s.b.api.RemoveIncompleteUpload(ctx, k.s.b.opts.Bucket, k.key)
	}
	return errs.Backend(err, "aborting %s", k.key)
}
