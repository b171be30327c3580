// Package pipeline uploads filled chunk buffers as the parts of one multipart
// session, on a single background worker fed through a bounded queue.
//
// A Pipeline has exactly one producer (the stream writer) and one worker. The
// producer calls Enqueue, Finalize and Cancel; the worker owns the session's
// part list and is the only goroutine calling UploadPart, CompleteSession and
// AbortSession.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hubject/aws-s3-io/checksum"
	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/internal/telemetry"
	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/pool"
)

// QueueDepth is the number of parts that may wait for the worker.
const QueueDepth = 2

// Config configures a Pipeline.
type Config struct {
	Store  objectstore.Store
	Object objectstore.Object

	// Checksum computes part digests. Nil disables them.
	Checksum checksum.Provider

	// Pool receives every buffer once its part has been sent.
	Pool pool.Pool

	// MaxParts caps the part number. Zero means no limit.
	MaxParts int

	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry
}

type pending struct {
	buf    *pool.Buffer
	number int32
	ack    *Future[objectstore.Part]
}

// Pipeline drives one multipart upload session.
type Pipeline struct {
	ctx   context.Context
	cfg   Config
	obj   objectstore.Object
	log   *slog.Logger
	tel   *telemetry.Telemetry
	attrs []attribute.KeyValue

	state atomic.Int32
	queue chan pending

	// Producer side.
	next    int32
	running bool
	final   *Future[*objectstore.Result]

	// Written by the producer before the worker starts.
	sessionID string

	// Worker side.
	parts []objectstore.Part

	canceled     atomic.Bool
	cancelReason error

	// aborted is closed once cause is set.
	aborted chan struct{}
	cause   error
}

// New creates an unstarted pipeline. No store call is made until the first
// Enqueue. ctx is used for every store call.
func New(ctx context.Context, cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.New(nil, nil)
	}
	if cfg.Pool == nil {
		cfg.Pool = pool.Shared()
	}

	return &Pipeline{
		ctx:     ctx,
		cfg:     cfg,
		obj:     cfg.Object,
		log:     log.With("bucket", cfg.Object.Bucket, "key", cfg.Object.Key),
		tel:     tel,
		attrs:   telemetry.Object(cfg.Object.Bucket, cfg.Object.Key),
		queue:   make(chan pending, QueueDepth),
		aborted: make(chan struct{}),
	}
}

// State returns the current session state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Enqueue hands buf to the worker as the next part. On success the pipeline
// owns buf and releases it to the pool once sent; on error the caller keeps it.
// The first call opens the session. Enqueue blocks while the queue is full.
func (p *Pipeline) Enqueue(buf *pool.Buffer) (*Future[objectstore.Part], error) {
	if p.final != nil {
		return nil, p.wrap("enqueue", s3errors.ErrPipelineClosed)
	}
	if p.isAborted() {
		return nil, p.wrap("enqueue", fmt.Errorf("%w: %w", s3errors.ErrPipelineClosed, p.cause))
	}
	if p.cfg.MaxParts > 0 && int(p.next) >= p.cfg.MaxParts {
		return nil, p.wrap("enqueue", fmt.Errorf("%w: limit is %d", s3errors.ErrTooManyParts, p.cfg.MaxParts))
	}
	if !p.running {
		if err := p.start(buf); err != nil {
			return nil, err
		}
	}

	p.next++
	item := pending{buf: buf, number: p.next, ack: NewFuture[objectstore.Part]()}
	p.queue <- item
	return item.ack, nil
}

// Finalize stops accepting parts and returns a handle that resolves once every
// queued part is acknowledged and the session is completed. If nothing was
// ever enqueued it resolves immediately with a nil result. Finalize is
// idempotent.
func (p *Pipeline) Finalize() *Future[*objectstore.Result] {
	if p.final != nil {
		return p.final
	}
	p.final = NewFuture[*objectstore.Result]()

	if !p.running {
		if p.isAborted() {
			p.final.Fail(p.cause)
		} else {
			p.state.Store(int32(Completed))
			p.final.Resolve(nil, nil)
		}
		return p.final
	}

	p.state.CompareAndSwap(int32(Active), int32(Finalizing))
	close(p.queue)
	return p.final
}

// Cancel stops accepting parts, fails every part still queued with reason and
// aborts the session. The returned handle fails with the abort cause: reason,
// or the earlier failure if the session had already been aborted. Cancel after
// Finalize returns the finalize handle unchanged.
func (p *Pipeline) Cancel(reason error) *Future[*objectstore.Result] {
	if p.final != nil {
		return p.final
	}
	if reason == nil {
		reason = p.wrap("cancel", s3errors.ErrCanceled)
	}
	p.final = NewFuture[*objectstore.Result]()

	if !p.running {
		if !p.isAborted() {
			p.markAborted(reason)
		}
		p.final.Fail(p.cause)
		return p.final
	}

	p.cancelReason = reason
	p.canceled.Store(true)
	close(p.queue)
	return p.final
}

func (p *Pipeline) start(first *pool.Buffer) error {
	if p.obj.ContentType == "" {
		p.obj.ContentType = objectstore.DetectContentType(p.obj.Key, first.Bytes())
	}
	if p.cfg.Checksum != nil {
		p.obj.ChecksumAlgorithm = p.cfg.Checksum.Algorithm()
	}

	ctx, end := p.tel.StartSpan(p.ctx, "StartSession", p.attrs...)
	id, err := p.cfg.Store.StartSession(ctx, p.obj)
	end(err)
	if err != nil {
		err = p.wrap("startSession", err)
		p.log.ErrorContext(p.ctx, "Failed to start upload session", "error", err)
		p.markAborted(err)
		return err
	}

	p.sessionID = id
	p.log = p.log.With("session", id)
	p.state.Store(int32(Active))
	p.running = true
	p.log.InfoContext(p.ctx, "Started upload session", "content_type", p.obj.ContentType)

	go p.run()
	return nil
}

func (p *Pipeline) run() {
	for item := range p.queue {
		p.process(item)
	}
	p.finish()
}

func (p *Pipeline) process(item pending) {
	switch {
	case p.isAborted():
		p.cfg.Pool.Release(item.buf)
		item.ack.Fail(p.cause)
		return
	case p.canceled.Load():
		p.cfg.Pool.Release(item.buf)
		item.ack.Fail(p.cancelReason)
		return
	}

	part, err := p.uploadPart(item)
	p.cfg.Pool.Release(item.buf)
	if err != nil {
		p.abort(err)
		item.ack.Fail(err)
		return
	}

	p.parts = append(p.parts, part)
	item.ack.Resolve(part, nil)
}

func (p *Pipeline) uploadPart(item pending) (objectstore.Part, error) {
	body := item.buf.Bytes()

	var sum *objectstore.Checksum
	if p.cfg.Checksum != nil {
		sum = p.cfg.Checksum.Sum(body)
	}

	attrs := append(slices.Clone(p.attrs),
		attribute.Int("s3io.part", int(item.number)),
		attribute.Int("s3io.size", len(body)),
	)
	ctx, end := p.tel.StartSpan(p.ctx, "UploadPart", attrs...)
	part, err := p.cfg.Store.UploadPart(ctx, p.obj, p.sessionID, item.number, body, sum)
	end(err)
	if err != nil {
		p.log.ErrorContext(p.ctx, "Failed to upload part", "part", item.number, "size", len(body), "error", err)
		return objectstore.Part{}, p.wrap("uploadPart", err)
	}

	part.Number = item.number
	part.Size = int64(len(body))
	if part.Checksum == nil {
		part.Checksum = sum
	}

	p.tel.PartUploaded(ctx, part.Size, p.attrs...)
	p.log.DebugContext(p.ctx, "Uploaded part", "part", part.Number, "size", part.Size, "etag", part.ETag)
	return part, nil
}

func (p *Pipeline) finish() {
	switch {
	case p.isAborted():
	case p.canceled.Load():
		p.abort(p.cancelReason)
	default:
		res, err := p.complete()
		if err == nil {
			p.state.Store(int32(Completed))
			p.final.Resolve(res, nil)
			return
		}
		p.abort(err)
	}
	p.final.Fail(p.cause)
}

func (p *Pipeline) complete() (*objectstore.Result, error) {
	parts := slices.Clone(p.parts)
	slices.SortFunc(parts, func(a, b objectstore.Part) int {
		return cmp.Compare(a.Number, b.Number)
	})

	attrs := append(slices.Clone(p.attrs), attribute.Int("s3io.parts", len(parts)))
	ctx, end := p.tel.StartSpan(p.ctx, "CompleteSession", attrs...)
	res, err := p.cfg.Store.CompleteSession(ctx, p.obj, p.sessionID, parts)
	end(err)
	if err != nil {
		p.log.ErrorContext(p.ctx, "Failed to complete upload session", "parts", len(parts), "error", err)
		return nil, p.wrap("completeSession", err)
	}
	if res == nil {
		res = &objectstore.Result{}
	}
	if res.Bucket == "" {
		res.Bucket = p.obj.Bucket
	}
	if res.Key == "" {
		res.Key = p.obj.Key
	}

	p.tel.ObjectCompleted(ctx, "multipart", p.attrs...)
	p.log.InfoContext(p.ctx, "Completed upload session", "parts", len(parts), "etag", res.ETag)
	return res, nil
}

// abort discards the session, even when the pipeline context is already
// canceled.
func (p *Pipeline) abort(cause error) {
	ctx, end := p.tel.StartSpan(context.WithoutCancel(p.ctx), "AbortSession", p.attrs...)
	err := p.cfg.Store.AbortSession(ctx, p.obj, p.sessionID)
	end(err)
	p.tel.SessionAborted(ctx, p.attrs...)

	if err != nil {
		err = p.wrap("abortSession", err)
		p.log.WarnContext(p.ctx, "Failed to abort upload session", "cause", cause, "error", err)
	} else {
		p.log.InfoContext(p.ctx, "Aborted upload session", "cause", cause)
	}
	p.markAborted(s3errors.WithAbort(cause, err))
}

func (p *Pipeline) markAborted(cause error) {
	p.cause = cause
	p.state.Store(int32(Aborted))
	close(p.aborted)
}

func (p *Pipeline) isAborted() bool {
	select {
	case <-p.aborted:
		return true
	default:
		return false
	}
}

func (p *Pipeline) wrap(op string, err error) error {
	return s3errors.NewObjectError(op, p.obj.Bucket, p.obj.Key, err)
}
