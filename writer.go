package s3io

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hubject/aws-s3-io/checksum"
	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/internal/pipeline"
	"github.com/hubject/aws-s3-io/internal/telemetry"
	"github.com/hubject/aws-s3-io/internal/validation"
	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/pool"
	"github.com/hubject/aws-s3-io/s3types"
)

// slot is one half of the writer's double buffer. At most one of buf and ack
// is set: buf while the writer fills it, ack while the pipeline owns it.
type slot struct {
	buf *pool.Buffer
	ack *pipeline.Future[objectstore.Part]
}

// Writer streams bytes to one object. It fills one buffer while the other is
// uploaded as a part, so memory stays bounded by two buffers no matter how
// large the object gets. Objects that fit in one buffer are written with a
// single put.
//
// A Writer is not safe for concurrent use. Close must be called to publish the
// object; until then nothing is visible in the store.
type Writer struct {
	ctx    context.Context
	store  objectstore.Store
	obj    objectstore.Object
	cfg    s3types.WriterConfig
	sum    checksum.Provider
	pool   pool.Pool
	pipe   *pipeline.Pipeline
	log    *slog.Logger
	tel    *telemetry.Telemetry
	attrs  []attribute.KeyValue
	start  time.Time
	bufCap int

	slots  [2]slot
	active int
	parts  int

	size     int64
	uploaded int64

	err    error
	closed bool
	result *s3types.UploadResult
}

var (
	_ io.WriteCloser = (*Writer)(nil)
	_ io.ReaderFrom  = (*Writer)(nil)
)

// NewWriter validates the target and options and returns a writer. No store
// call is made until enough data has been written to fill a buffer, or until
// Close.
//
// Example:
//
//	w, err := client.NewWriter(ctx, "logs", "2024/01/app.log",
//	    s3io.WithCacheSize(64*s3types.MiB),
//	)
//	if err != nil {
//	    return err
//	}
//	if _, err := io.Copy(w, src); err != nil {
//	    _ = w.Abort()
//	    return err
//	}
//	return w.Close()
func (c *Client) NewWriter(
	ctx context.Context,
	bucket, key string,
	opts ...s3types.WriterOption,
) (*Writer, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	cfg := s3types.WriterConfig{
		CacheSize: s3types.DefaultCacheSize,
		Checksum:  true,
		Limits:    s3types.DefaultLimits(),
	}
	for _, opt := range c.cfg.WriterOptions {
		opt(&cfg)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateWriterConfig(cfg); err != nil {
		return nil, s3errors.NewObjectError("newWriter", bucket, key, err)
	}

	var sum checksum.Provider
	if cfg.Checksum {
		var err error
		if sum, err = checksum.ForAlgorithm(cfg.ChecksumAlgorithm); err != nil {
			return nil, s3errors.NewObjectError("newWriter", bucket, key, err)
		}
	}

	bufPool := cfg.BufferPool
	if bufPool == nil {
		bufPool = pool.Shared()
	}

	obj := objectstore.Object{
		Bucket:       bucket,
		Key:          key,
		ContentType:  cfg.ContentType,
		Metadata:     maps.Clone(cfg.Metadata),
		StorageClass: string(cfg.StorageClass),
	}

	log := c.log.With("bucket", bucket, "key", key)
	w := &Writer{
		ctx:    ctx,
		store:  c.store,
		obj:    obj,
		cfg:    cfg,
		sum:    sum,
		pool:   bufPool,
		log:    log,
		tel:    c.tel,
		attrs:  telemetry.Object(bucket, key),
		start:  time.Now(),
		bufCap: min(cfg.CacheSize/2, cfg.Limits.MaxPartSize),
	}
	w.pipe = pipeline.New(ctx, pipeline.Config{
		Store:     c.store,
		Object:    obj,
		Checksum:  sum,
		Pool:      bufPool,
		MaxParts:  cfg.Limits.MaxParts,
		Logger:    c.log,
		Telemetry: c.tel,
	})

	log.DebugContext(ctx, "Created writer", "buffer_size", w.bufCap)
	return w, nil
}

func validateWriterConfig(cfg s3types.WriterConfig) error {
	l := cfg.Limits
	switch {
	case l.MinPartSize <= 0 || l.MaxPartSize < l.MinPartSize:
		return fmt.Errorf("%w: part size limits %d..%d", s3errors.ErrInvalidConfig, l.MinPartSize, l.MaxPartSize)
	case l.MaxPutSize < 0 || l.MaxParts < 0:
		return fmt.Errorf("%w: negative limits", s3errors.ErrInvalidConfig)
	case cfg.CacheSize < 2*l.MinPartSize:
		return fmt.Errorf("%w: cache size %d is below twice the minimum part size %d",
			s3errors.ErrInvalidConfig, cfg.CacheSize, l.MinPartSize)
	}
	if err := validation.ValidateMetadata(cfg.Metadata); err != nil {
		return err
	}
	if err := validation.ValidateContentType(cfg.ContentType); err != nil {
		return err
	}
	return validation.ValidateStorageClass(string(cfg.StorageClass))
}

// Write appends p to the object. When the active buffer is full and bytes
// remain it is handed to the upload pipeline; Write then blocks until the
// other buffer's part has been acknowledged. A failed part makes every later
// call return the same error.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.usable("write"); err != nil {
		return 0, err
	}

	written := 0
	for len(p) > 0 {
		buf, err := w.buffer()
		if err != nil {
			w.err = err
			return written, err
		}
		n, _ := buf.Write(p)
		p = p[n:]
		written += n
		w.size += int64(n)
	}
	return written, nil
}

// ReadFrom reads r until EOF directly into the writer's buffers. It lets
// io.Copy skip its intermediate buffer. Errors from r are returned as is and
// leave the writer usable; upload errors are sticky as with Write.
func (w *Writer) ReadFrom(r io.Reader) (int64, error) {
	if err := w.usable("write"); err != nil {
		return 0, err
	}

	var total int64
	for {
		buf, err := w.buffer()
		if err != nil {
			w.err = err
			return total, err
		}

		n, rerr := buf.Fill(r)
		total += int64(n)
		w.size += int64(n)

		switch {
		case rerr == io.EOF:
			return total, nil
		case rerr != nil:
			return total, rerr
		}
	}
}

// Flush hands the active buffer to the pipeline if it holds at least a
// minimum-size part. Smaller contents stay buffered, since only the last part
// of an object may be undersized.
func (w *Writer) Flush() error {
	if err := w.usable("flush"); err != nil {
		return err
	}

	buf := w.slots[w.active].buf
	if buf == nil || buf.Len() < w.cfg.Limits.MinPartSize {
		return nil
	}
	if err := w.handOff(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Close uploads the remaining bytes and publishes the object. If no part was
// handed off yet and the data fits in one put, a single PutObject is made;
// otherwise the rest becomes the last part and the session is completed.
//
// On failure the session is aborted and the error returned. Close is
// idempotent: later calls return nil.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.releaseBuffers()

	err := w.err
	if err == nil {
		err = w.finish()
	}
	if err != nil {
		if _, cause := w.pipe.Cancel(err).Wait(); cause != nil {
			err = cause
		}
		w.err = err
		w.log.ErrorContext(w.ctx, "Upload failed", "size", w.size, "parts", w.parts, "error", err)
		if w.cfg.ProgressTracker != nil {
			w.cfg.ProgressTracker.Error(err)
		}
		return err
	}

	if w.cfg.ProgressTracker != nil {
		w.cfg.ProgressTracker.Complete()
	}
	return nil
}

// Abort discards the buffered data and aborts the multipart session, if one
// was started. Nothing is published. Abort after Close is a no-op. The
// returned error is non-nil only when the store rejected the abort.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.releaseBuffers()

	reason := w.err
	if reason == nil {
		reason = w.wrap("abort", s3errors.ErrCanceled)
	}
	w.err = reason

	_, err := w.pipe.Cancel(reason).Wait()
	w.log.InfoContext(w.ctx, "Upload aborted", "size", w.size, "parts", w.parts)
	if w.cfg.ProgressTracker != nil {
		w.cfg.ProgressTracker.Error(reason)
	}

	var ae *s3errors.AbortError
	if errors.As(err, &ae) {
		return ae.AbortErr
	}
	return nil
}

// Size returns the number of bytes accepted so far.
func (w *Writer) Size() int64 {
	return w.size
}

// Result describes the published object. It is nil until Close succeeds.
func (w *Writer) Result() *s3types.UploadResult {
	return w.result
}

func (w *Writer) usable(op string) error {
	if w.closed {
		return w.wrap(op, s3errors.ErrClosed)
	}
	return w.err
}

// buffer returns the active buffer with room for at least one byte, handing
// off a full buffer first.
func (w *Writer) buffer() (*pool.Buffer, error) {
	s := &w.slots[w.active]
	if s.buf != nil && s.buf.Full() {
		if err := w.handOff(); err != nil {
			return nil, err
		}
		s = &w.slots[w.active]
	}
	if s.buf == nil {
		s.buf = w.pool.Acquire(w.bufCap)
	}
	return s.buf, nil
}

// handOff moves the active buffer to the pipeline and makes the other slot
// active, waiting for that slot's previous part if it is still in flight.
func (w *Writer) handOff() error {
	s := &w.slots[w.active]
	ack, err := w.pipe.Enqueue(s.buf)
	if err != nil {
		return err
	}
	s.buf, s.ack = nil, ack
	w.parts++
	w.active ^= 1
	return w.reclaim(&w.slots[w.active])
}

// reclaim waits for the part last handed off from s.
func (w *Writer) reclaim(s *slot) error {
	if s.ack == nil {
		return nil
	}
	part, err := s.ack.Wait()
	s.ack = nil
	if err != nil {
		return err
	}

	w.uploaded += part.Size
	if w.cfg.ProgressTracker != nil {
		w.cfg.ProgressTracker.Update(w.uploaded, w.size)
	}
	return nil
}

func (w *Writer) finish() error {
	if err := w.reclaim(&w.slots[w.active^1]); err != nil {
		return err
	}

	buf := w.slots[w.active].buf
	pending := 0
	if buf != nil {
		pending = buf.Len()
	}

	if w.parts == 0 && pending <= w.cfg.Limits.MaxPutSize {
		return w.put(buf)
	}

	if pending > 0 {
		if err := w.handOff(); err != nil {
			return err
		}
		if err := w.reclaim(&w.slots[w.active^1]); err != nil {
			return err
		}
	}

	res, err := w.pipe.Finalize().Wait()
	if err != nil {
		return err
	}
	w.setResult(res, true)
	return nil
}

func (w *Writer) put(buf *pool.Buffer) error {
	var body []byte
	if buf != nil {
		body = buf.Bytes()
	}

	obj := w.obj
	if obj.ContentType == "" {
		obj.ContentType = objectstore.DetectContentType(obj.Key, body)
	}
	var sum *objectstore.Checksum
	if w.sum != nil {
		obj.ChecksumAlgorithm = w.sum.Algorithm()
		sum = w.sum.Sum(body)
	}

	ctx, end := w.tel.StartSpan(w.ctx, "PutObject", append(slices.Clone(w.attrs), attribute.Int("s3io.size", len(body)))...)
	res, err := w.store.PutObject(ctx, obj, body, sum)
	end(err)
	if err != nil {
		w.log.ErrorContext(w.ctx, "Failed to put object", "size", len(body), "error", err)
		return w.wrap("putObject", err)
	}

	w.tel.PutUploaded(ctx, int64(len(body)), w.attrs...)
	w.tel.ObjectCompleted(ctx, "put", w.attrs...)
	w.log.InfoContext(w.ctx, "Put object", "size", len(body), "content_type", obj.ContentType)

	w.uploaded = int64(len(body))
	if w.cfg.ProgressTracker != nil {
		w.cfg.ProgressTracker.Update(w.uploaded, w.size)
	}
	w.setResult(res, false)
	return nil
}

func (w *Writer) setResult(res *objectstore.Result, multipart bool) {
	if res == nil {
		res = &objectstore.Result{}
	}
	w.result = &s3types.UploadResult{
		Bucket:    w.obj.Bucket,
		Key:       w.obj.Key,
		Size:      w.size,
		ETag:      res.ETag,
		VersionID: res.VersionID,
		Location:  res.Location,
		Parts:     w.parts,
		Multipart: multipart,
		Duration:  time.Since(w.start),
	}
}

func (w *Writer) releaseBuffers() {
	for i := range w.slots {
		if w.slots[i].buf != nil {
			w.pool.Release(w.slots[i].buf)
			w.slots[i].buf = nil
		}
	}
}

func (w *Writer) wrap(op string, err error) error {
	return s3errors.NewObjectError(op, w.obj.Bucket, w.obj.Key, err)
}
