// Package memstore implements objectstore.Store in memory.
//
// It enforces the same part rules as S3 (minimum part size except for the last
// part, contiguous ordering, checksum verification) and records every call so
// tests can assert on the exact sequence of store operations.
package memstore

import (
	"context"
	"crypto/md5" //nolint:gosec // ETags are MD5 based
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hubject/aws-s3-io/checksum"
	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/objectstore"
)

// Operation names recorded in Calls.
const (
	OpStartSession    = "StartSession"
	OpUploadPart      = "UploadPart"
	OpCompleteSession = "CompleteSession"
	OpAbortSession    = "AbortSession"
	OpPutObject       = "PutObject"
)

// Call records one store invocation.
type Call struct {
	Op        string
	Bucket    string
	Key       string
	SessionID string
	Part      int32
	Size      int
	Checksum  *objectstore.Checksum
	Parts     []objectstore.Part
}

// StoredObject is a completed object.
type StoredObject struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
	ETag        string
	Parts       int
}

type session struct {
	obj   objectstore.Object
	parts map[int32][]byte
	etags map[int32]string
}

// Hooks inject failures. A hook returning a non-nil error makes the
// corresponding call fail without side effects.
type Hooks struct {
	StartSession    func(obj objectstore.Object) error
	UploadPart      func(obj objectstore.Object, number int32, body []byte) error
	CompleteSession func(obj objectstore.Object, parts []objectstore.Part) error
	AbortSession    func(obj objectstore.Object, sessionID string) error
	PutObject       func(obj objectstore.Object, body []byte) error
}

// Store is an in-memory object store.
type Store struct {
	mu          sync.Mutex
	minPartSize int
	objects     map[string]*StoredObject
	sessions    map[string]*session
	calls       []Call
	hooks       Hooks
}

var _ objectstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMinPartSize sets the minimum size of every part but the last.
// Zero disables the check.
func WithMinPartSize(n int) Option {
	return func(s *Store) {
		s.minPartSize = n
	}
}

// WithHooks installs failure injection hooks.
func WithHooks(h Hooks) Option {
	return func(s *Store) {
		s.hooks = h
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		objects:  make(map[string]*StoredObject),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

func etag(parts ...[]byte) string {
	h := md5.New() //nolint:gosec
	for _, p := range parts {
		h.Write(p)
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

func (s *Store) record(c Call) {
	s.calls = append(s.calls, c)
}

// StartSession implements objectstore.Store.
func (s *Store) StartSession(ctx context.Context, obj objectstore.Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{Op: OpStartSession, Bucket: obj.Bucket, Key: obj.Key})
	if s.hooks.StartSession != nil {
		if err := s.hooks.StartSession(obj); err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	s.sessions[id] = &session{
		obj:   obj,
		parts: make(map[int32][]byte),
		etags: make(map[int32]string),
	}
	return id, nil
}

// UploadPart implements objectstore.Store.
func (s *Store) UploadPart(
	ctx context.Context,
	obj objectstore.Object,
	sessionID string,
	number int32,
	body []byte,
	sum *objectstore.Checksum,
) (objectstore.Part, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.Part{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{
		Op: OpUploadPart, Bucket: obj.Bucket, Key: obj.Key,
		SessionID: sessionID, Part: number, Size: len(body), Checksum: sum,
	})
	if s.hooks.UploadPart != nil {
		if err := s.hooks.UploadPart(obj, number, body); err != nil {
			return objectstore.Part{}, err
		}
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return objectstore.Part{}, s3errors.ErrNoSuchUpload
	}
	if number < 1 {
		return objectstore.Part{}, fmt.Errorf("%w: part number %d", s3errors.ErrInvalidInput, number)
	}
	if err := checksum.Verify(body, sum); err != nil {
		return objectstore.Part{}, err
	}

	data := slices.Clone(body)
	tag := etag(data)
	sess.parts[number] = data
	sess.etags[number] = tag

	return objectstore.Part{Number: number, ETag: tag, Size: int64(len(data)), Checksum: sum}, nil
}

// CompleteSession implements objectstore.Store.
func (s *Store) CompleteSession(
	ctx context.Context,
	obj objectstore.Object,
	sessionID string,
	parts []objectstore.Part,
) (*objectstore.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{
		Op: OpCompleteSession, Bucket: obj.Bucket, Key: obj.Key,
		SessionID: sessionID, Parts: slices.Clone(parts),
	})
	if s.hooks.CompleteSession != nil {
		if err := s.hooks.CompleteSession(obj, parts); err != nil {
			return nil, err
		}
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, s3errors.ErrNoSuchUpload
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no parts", s3errors.ErrInvalidInput)
	}

	var (
		data    []byte
		digests []byte
	)
	for i, p := range parts {
		if i > 0 && p.Number <= parts[i-1].Number {
			return nil, fmt.Errorf("%w: parts out of order at %d", s3errors.ErrInvalidInput, p.Number)
		}
		body, ok := sess.parts[p.Number]
		if !ok || sess.etags[p.Number] != p.ETag {
			return nil, fmt.Errorf("%w: unknown part %d", s3errors.ErrInvalidInput, p.Number)
		}
		if i < len(parts)-1 && s.minPartSize > 0 && len(body) < s.minPartSize {
			return nil, fmt.Errorf("%w: part %d is %d bytes", s3errors.ErrEntityTooSmall, p.Number, len(body))
		}
		data = append(data, body...)
		sum, _ := hex.DecodeString(strings.Trim(p.ETag, `"`))
		digests = append(digests, sum...)
	}

	tag := strings.TrimSuffix(etag(digests), `"`) + fmt.Sprintf("-%d\"", len(parts))
	s.objects[objectKey(obj.Bucket, obj.Key)] = &StoredObject{
		Data:        data,
		ContentType: sess.obj.ContentType,
		Metadata:    sess.obj.Metadata,
		ETag:        tag,
		Parts:       len(parts),
	}
	delete(s.sessions, sessionID)

	return &objectstore.Result{Bucket: obj.Bucket, Key: obj.Key, ETag: tag}, nil
}

// AbortSession implements objectstore.Store.
func (s *Store) AbortSession(ctx context.Context, obj objectstore.Object, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{Op: OpAbortSession, Bucket: obj.Bucket, Key: obj.Key, SessionID: sessionID})
	if s.hooks.AbortSession != nil {
		if err := s.hooks.AbortSession(obj, sessionID); err != nil {
			return err
		}
	}

	if _, ok := s.sessions[sessionID]; !ok {
		return s3errors.ErrNoSuchUpload
	}
	delete(s.sessions, sessionID)
	return nil
}

// PutObject implements objectstore.Store.
func (s *Store) PutObject(
	ctx context.Context,
	obj objectstore.Object,
	body []byte,
	sum *objectstore.Checksum,
) (*objectstore.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{Op: OpPutObject, Bucket: obj.Bucket, Key: obj.Key, Size: len(body), Checksum: sum})
	if s.hooks.PutObject != nil {
		if err := s.hooks.PutObject(obj, body); err != nil {
			return nil, err
		}
	}
	if err := checksum.Verify(body, sum); err != nil {
		return nil, err
	}

	data := slices.Clone(body)
	tag := etag(data)
	s.objects[objectKey(obj.Bucket, obj.Key)] = &StoredObject{
		Data:        data,
		ContentType: obj.ContentType,
		Metadata:    obj.Metadata,
		ETag:        tag,
	}
	return &objectstore.Result{Bucket: obj.Bucket, Key: obj.Key, ETag: tag}, nil
}

// Object returns a completed object.
func (s *Store) Object(bucket, key string) (*StoredObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[objectKey(bucket, key)]
	return o, ok
}

// Calls returns a copy of every recorded call in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.calls)
}

// CallsTo returns the recorded calls of one operation.
func (s *Store) CallsTo(op string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// OpenSessions returns the number of sessions neither completed nor aborted.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}
