package s3io

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/s3types"
)

// Upload streams r to bucket/key through a Writer and returns the result once
// the object is published. If r fails, the upload is aborted and r's error is
// returned.
func (c *Client) Upload(
	ctx context.Context,
	bucket, key string,
	r io.Reader,
	opts ...s3types.WriterOption,
) (*s3types.UploadResult, error) {
	if r == nil {
		return nil, s3errors.NewObjectError("upload", bucket, key, s3errors.ErrInvalidInput).
			WithMessage("reader cannot be nil")
	}

	w, err := c.NewWriter(ctx, bucket, key, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := w.ReadFrom(r); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			return nil, s3errors.WithAbort(err, abortErr)
		}
		var s3err *s3errors.Error
		if errors.As(err, &s3err) {
			return nil, err
		}
		return nil, s3errors.NewObjectError("upload", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return w.Result(), nil
}

// UploadFile streams the file at path, read from the client's filesystem, to
// bucket/key.
func (c *Client) UploadFile(
	ctx context.Context,
	bucket, key, path string,
	opts ...s3types.WriterOption,
) (*s3types.UploadResult, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, s3errors.NewObjectError("uploadFile", bucket, key, err).
			WithMessage("failed to open " + path)
	}
	defer f.Close()

	c.log.DebugContext(ctx, "Uploading file", "path", path, "bucket", bucket, "key", key)
	return c.Upload(ctx, bucket, key, f, opts...)
}

// UploadFiles uploads files concurrently, at most WithConcurrency at a time.
// Each file gets its own writer, so peak memory is the cache size times the
// concurrency. The first failure cancels the uploads still running; results
// are returned in input order and are nil for files that did not complete.
func (c *Client) UploadFiles(
	ctx context.Context,
	bucket string,
	files []s3types.FileUpload,
	opts ...s3types.WriterOption,
) ([]*s3types.UploadResult, error) {
	results := make([]*s3types.UploadResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.cfg.Concurrency, 1))

	for i, f := range files {
		g.Go(func() error {
			res, err := c.UploadFile(gctx, bucket, f.Key, f.Path, opts...)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	c.log.InfoContext(ctx, "Uploaded files", "bucket", bucket, "count", len(files))
	return results, nil
}
