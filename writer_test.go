package s3io

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubject/aws-s3-io/checksum"
	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/internal/testutil"
	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/objectstore/memstore"
	"github.com/hubject/aws-s3-io/pool"
	"github.com/hubject/aws-s3-io/s3types"
)

const (
	testBucket = "test-bucket"
	testKey    = "data/object.bin"
)

var errBoom = errors.New("boom")

// testLimits give 10-byte buffers with a cache size of 20.
func testLimits() s3types.Limits {
	return s3types.Limits{MinPartSize: 5, MaxPartSize: 10, MaxPutSize: 10, MaxParts: 100}
}

type writerFixture struct {
	store *memstore.Store
	pool  *pool.SyncPool
	w     *Writer
}

func newWriterFixture(t *testing.T, store *memstore.Store, opts ...s3types.WriterOption) *writerFixture {
	t.Helper()

	if store == nil {
		store = memstore.New(memstore.WithMinPartSize(5))
	}
	sp := pool.NewSyncPool()
	base := []s3types.WriterOption{
		WithLimits(testLimits()),
		WithCacheSize(20),
		WithBufferPool(sp),
	}

	w, err := NewWithStore(store).NewWriter(context.Background(), testBucket, testKey, append(base, opts...)...)
	require.NoError(t, err)
	return &writerFixture{store: store, pool: sp, w: w}
}

func (f *writerFixture) object(t *testing.T) *memstore.StoredObject {
	t.Helper()
	obj, ok := f.store.Object(testBucket, testKey)
	require.True(t, ok, "object was not published")
	return obj
}

func partSizes(calls []memstore.Call) []int {
	sizes := make([]int, 0, len(calls))
	for _, c := range calls {
		sizes = append(sizes, c.Size)
	}
	return sizes
}

func partNumbers(parts []objectstore.Part) []int32 {
	nums := make([]int32, 0, len(parts))
	for _, p := range parts {
		nums = append(nums, p.Number)
	}
	return nums
}

func TestWriter_MultipartUpload(t *testing.T) {
	f := newWriterFixture(t, nil)
	data := []byte("abcdefghijklmnopqrstuvwxy")

	n, err := f.w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	require.NoError(t, f.w.Close())

	assert.Len(t, f.store.CallsTo(memstore.OpStartSession), 1)
	assert.Equal(t, []int{10, 10, 5}, partSizes(f.store.CallsTo(memstore.OpUploadPart)))
	assert.Empty(t, f.store.CallsTo(memstore.OpPutObject))

	completes := f.store.CallsTo(memstore.OpCompleteSession)
	require.Len(t, completes, 1)
	assert.Equal(t, []int32{1, 2, 3}, partNumbers(completes[0].Parts))

	obj := f.object(t)
	assert.Equal(t, data, obj.Data)
	assert.Equal(t, 3, obj.Parts)

	res := f.w.Result()
	require.NotNil(t, res)
	assert.True(t, res.Multipart)
	assert.Equal(t, 3, res.Parts)
	assert.Equal(t, int64(25), res.Size)
	assert.Equal(t, obj.ETag, res.ETag)
	assert.Equal(t, int64(25), f.w.Size())

	assert.Zero(t, f.pool.Stats().Outstanding())
	assert.Zero(t, f.store.OpenSessions())
}

func TestWriter_SmallObjectUsesPut(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"three bytes", []byte("abc")},
		{"exactly one buffer", []byte("0123456789")},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWriterFixture(t, nil)
			if tt.data != nil {
				_, err := f.w.Write(tt.data)
				require.NoError(t, err)
			}
			require.NoError(t, f.w.Close())

			puts := f.store.CallsTo(memstore.OpPutObject)
			require.Len(t, puts, 1)
			assert.Equal(t, len(tt.data), puts[0].Size)
			assert.Empty(t, f.store.CallsTo(memstore.OpStartSession))
			assert.Empty(t, f.store.CallsTo(memstore.OpUploadPart))

			assert.Equal(t, string(tt.data), string(f.object(t).Data))
			assert.False(t, f.w.Result().Multipart)
			assert.Zero(t, f.w.Result().Parts)
			assert.Zero(t, f.pool.Stats().Outstanding())
		})
	}
}

func TestWriter_RemainderAboveMaxPutUsesSession(t *testing.T) {
	limits := testLimits()
	limits.MaxPutSize = 4
	f := newWriterFixture(t, nil, WithLimits(limits))

	_, err := f.w.Write([]byte("1234567"))
	require.NoError(t, err)
	require.NoError(t, f.w.Close())

	assert.Empty(t, f.store.CallsTo(memstore.OpPutObject))
	assert.Equal(t, []int{7}, partSizes(f.store.CallsTo(memstore.OpUploadPart)))
	assert.Equal(t, "1234567", string(f.object(t).Data))
}

func TestWriter_CloseIsIdempotent(t *testing.T) {
	f := newWriterFixture(t, nil)
	_, err := f.w.Write([]byte("abc"))
	require.NoError(t, err)

	require.NoError(t, f.w.Close())
	require.NoError(t, f.w.Close())
	assert.Len(t, f.store.Calls(), 1)
}

func TestWriter_UseAfterClose(t *testing.T) {
	f := newWriterFixture(t, nil)
	require.NoError(t, f.w.Close())
	calls := len(f.store.Calls())

	_, err := f.w.Write([]byte("late"))
	assert.ErrorIs(t, err, s3errors.ErrClosed)
	assert.True(t, s3errors.IsClosed(err))

	_, err = f.w.ReadFrom(strings.NewReader("late"))
	assert.ErrorIs(t, err, s3errors.ErrClosed)

	assert.ErrorIs(t, f.w.Flush(), s3errors.ErrClosed)
	assert.Len(t, f.store.Calls(), calls, "no store call after close")
}

func TestWriter_PartFailureAbortsSession(t *testing.T) {
	store := memstore.New(memstore.WithMinPartSize(5), memstore.WithHooks(memstore.Hooks{
		UploadPart: func(_ objectstore.Object, number int32, _ []byte) error {
			if number == 2 {
				return errBoom
			}
			return nil
		},
	}))
	f := newWriterFixture(t, store)

	_, err := f.w.Write(make([]byte, 25))
	require.NoError(t, err)

	err = f.w.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, s3errors.CodeStore, s3errors.CodeOf(err))

	assert.Len(t, store.CallsTo(memstore.OpAbortSession), 1)
	assert.Empty(t, store.CallsTo(memstore.OpCompleteSession))
	_, ok := store.Object(testBucket, testKey)
	assert.False(t, ok)
	assert.Zero(t, store.OpenSessions())
	assert.Zero(t, f.pool.Stats().Outstanding())
	assert.Nil(t, f.w.Result())
}

func TestWriter_FailureIsSticky(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		UploadPart: func(objectstore.Object, int32, []byte) error { return errBoom },
	}))
	f := newWriterFixture(t, store)

	_, err := f.w.Write(make([]byte, 20))
	require.NoError(t, err)

	// The third buffer needs the first slot back, whose part failed.
	n, err := f.w.Write(make([]byte, 10))
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, n)

	_, err = f.w.Write([]byte("x"))
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, f.w.Flush(), errBoom)

	assert.ErrorIs(t, f.w.Close(), errBoom)
	assert.Len(t, store.CallsTo(memstore.OpAbortSession), 1)
	assert.Zero(t, f.pool.Stats().Outstanding())
}

func TestWriter_CompleteFailureAborts(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		CompleteSession: func(objectstore.Object, []objectstore.Part) error { return errBoom },
	}))
	f := newWriterFixture(t, store)

	_, err := f.w.Write(make([]byte, 15))
	require.NoError(t, err)

	assert.ErrorIs(t, f.w.Close(), errBoom)
	assert.Len(t, store.CallsTo(memstore.OpAbortSession), 1)
	assert.Zero(t, store.OpenSessions())
}

func TestWriter_StartSessionFailure(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		StartSession: func(objectstore.Object) error { return errBoom },
	}))
	f := newWriterFixture(t, store)

	_, err := f.w.Write(make([]byte, 15))
	require.ErrorIs(t, err, errBoom)

	assert.ErrorIs(t, f.w.Close(), errBoom)
	assert.Empty(t, store.CallsTo(memstore.OpAbortSession), "no session to abort")
	assert.Zero(t, f.pool.Stats().Outstanding())
}

func TestWriter_PutFailure(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		PutObject: func(objectstore.Object, []byte) error { return errBoom },
	}))
	f := newWriterFixture(t, store)

	_, err := f.w.Write([]byte("abc"))
	require.NoError(t, err)

	err = f.w.Close()
	require.ErrorIs(t, err, errBoom)

	var s3err *s3errors.Error
	require.ErrorAs(t, err, &s3err)
	assert.Equal(t, "putObject", s3err.Op)
	assert.Equal(t, testKey, s3err.Key)
}

func TestWriter_TooManyParts(t *testing.T) {
	limits := testLimits()
	limits.MaxParts = 2
	f := newWriterFixture(t, nil, WithLimits(limits))

	_, err := f.w.Write(make([]byte, 35))
	require.ErrorIs(t, err, s3errors.ErrTooManyParts)

	assert.ErrorIs(t, f.w.Close(), s3errors.ErrTooManyParts)
	assert.Len(t, f.store.CallsTo(memstore.OpAbortSession), 1)
	assert.Empty(t, f.store.CallsTo(memstore.OpCompleteSession))
	assert.Zero(t, f.pool.Stats().Outstanding())
}

func TestWriter_ChecksumIgnoresStaleBytes(t *testing.T) {
	f := newWriterFixture(t, nil)

	// Leave dirty buffers of the writer's size in the pool.
	for range 3 {
		b := f.pool.Acquire(10)
		_, _ = b.Write(bytes.Repeat([]byte{'X'}, 10))
		f.pool.Release(b)
	}

	_, err := f.w.Write([]byte("0123456789abc"))
	require.NoError(t, err)
	require.NoError(t, f.w.Close())

	parts := f.store.CallsTo(memstore.OpUploadPart)
	require.Len(t, parts, 2)
	assert.Equal(t, checksum.MD5{}.Sum([]byte("0123456789")), parts[0].Checksum)
	assert.Equal(t, checksum.MD5{}.Sum([]byte("abc")), parts[1].Checksum)
	assert.Equal(t, "0123456789abc", string(f.object(t).Data))
}

func TestWriter_ChecksumOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []s3types.WriterOption
		want objectstore.Algorithm
	}{
		{"default md5", nil, objectstore.AlgorithmMD5},
		{"sha256", []s3types.WriterOption{WithChecksumAlgorithm(objectstore.AlgorithmSHA256)}, objectstore.AlgorithmSHA256},
		{"crc32c", []s3types.WriterOption{WithChecksumAlgorithm(objectstore.AlgorithmCRC32C)}, objectstore.AlgorithmCRC32C},
		{"disabled", []s3types.WriterOption{WithChecksum(false)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWriterFixture(t, nil, tt.opts...)
			_, err := f.w.Write([]byte("hello"))
			require.NoError(t, err)
			require.NoError(t, f.w.Close())

			put := f.store.CallsTo(memstore.OpPutObject)[0]
			if tt.want == "" {
				assert.Nil(t, put.Checksum)
				return
			}
			require.NotNil(t, put.Checksum)
			assert.Equal(t, tt.want, put.Checksum.Algorithm)
		})
	}
}

func TestWriter_ReadFrom(t *testing.T) {
	f := newWriterFixture(t, nil)
	data := testutil.RandomBytes(37)

	n, err := io.Copy(f.w, &testutil.ChunkedReader{R: bytes.NewReader(data), N: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(37), n)
	require.NoError(t, f.w.Close())

	assert.Equal(t, data, f.object(t).Data)
	assert.Equal(t, []int{10, 10, 10, 7}, partSizes(f.store.CallsTo(memstore.OpUploadPart)))
	assert.Zero(t, f.pool.Stats().Outstanding())
}

func TestWriter_ReadFromReaderErrorIsNotSticky(t *testing.T) {
	f := newWriterFixture(t, nil)

	_, err := f.w.ReadFrom(io.MultiReader(strings.NewReader("abc"), &failingReader{}))
	require.ErrorIs(t, err, errBoom)

	_, err = f.w.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, f.w.Close())
	assert.Equal(t, "abcdef", string(f.object(t).Data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errBoom }

func TestWriter_Flush(t *testing.T) {
	f := newWriterFixture(t, nil)

	_, err := f.w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.w.Flush())
	assert.Empty(t, f.store.Calls(), "below the minimum part size")

	_, err = f.w.Write([]byte("defg"))
	require.NoError(t, err)
	require.NoError(t, f.w.Flush())

	_, err = f.w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, f.w.Close())

	assert.Equal(t, []int{7, 2}, partSizes(f.store.CallsTo(memstore.OpUploadPart)))
	assert.Equal(t, "abcdefghi", string(f.object(t).Data))
}

func TestWriter_Abort(t *testing.T) {
	t.Run("before any part", func(t *testing.T) {
		f := newWriterFixture(t, nil)
		_, err := f.w.Write([]byte("abc"))
		require.NoError(t, err)

		require.NoError(t, f.w.Abort())
		assert.Empty(t, f.store.Calls())
		assert.NoError(t, f.w.Close())
		assert.Zero(t, f.pool.Stats().Outstanding())
	})

	t.Run("during multipart", func(t *testing.T) {
		f := newWriterFixture(t, nil)
		_, err := f.w.Write(make([]byte, 25))
		require.NoError(t, err)

		require.NoError(t, f.w.Abort())
		assert.Len(t, f.store.CallsTo(memstore.OpAbortSession), 1)
		assert.Empty(t, f.store.CallsTo(memstore.OpCompleteSession))
		assert.Zero(t, f.store.OpenSessions())

		_, err = f.w.Write([]byte("x"))
		assert.ErrorIs(t, err, s3errors.ErrClosed)
		assert.Zero(t, f.pool.Stats().Outstanding())
	})

	t.Run("abort rejected", func(t *testing.T) {
		store := memstore.New(memstore.WithHooks(memstore.Hooks{
			AbortSession: func(objectstore.Object, string) error { return errBoom },
		}))
		f := newWriterFixture(t, store)
		_, err := f.w.Write(make([]byte, 15))
		require.NoError(t, err)

		assert.ErrorIs(t, f.w.Abort(), errBoom)
	})

	t.Run("after close", func(t *testing.T) {
		f := newWriterFixture(t, nil)
		require.NoError(t, f.w.Close())
		assert.NoError(t, f.w.Abort())
		assert.Len(t, f.store.CallsTo(memstore.OpPutObject), 1)
	})
}

func TestWriter_Progress(t *testing.T) {
	tracker := &testutil.ProgressRecorder{}
	f := newWriterFixture(t, nil, WithProgress(tracker))

	_, err := f.w.Write(make([]byte, 25))
	require.NoError(t, err)
	require.NoError(t, f.w.Close())

	assert.Equal(t, 1, tracker.Completed())
	assert.NoError(t, tracker.Err())
	updates := tracker.Updates()
	require.Len(t, updates, 3)
	assert.Equal(t, int64(10), updates[0].Uploaded)
	assert.Equal(t, testutil.ProgressUpdate{Uploaded: 25, Accepted: 25}, tracker.Last())
}

func TestWriter_ProgressOnFailure(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		PutObject: func(objectstore.Object, []byte) error { return errBoom },
	}))
	tracker := &testutil.ProgressRecorder{}
	f := newWriterFixture(t, store, WithProgress(tracker))

	require.Error(t, f.w.Close())
	assert.ErrorIs(t, tracker.Err(), errBoom)
	assert.Zero(t, tracker.Completed())
	assert.Empty(t, tracker.Updates())
}

func TestWriter_ObjectAttributes(t *testing.T) {
	t.Run("detected content type", func(t *testing.T) {
		f := newWriterFixture(t, nil)
		_, err := f.w.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
		require.NoError(t, f.w.Close())
		assert.Equal(t, "application/pdf", f.object(t).ContentType)
	})

	t.Run("explicit attributes", func(t *testing.T) {
		f := newWriterFixture(t, nil,
			WithContentType("text/csv"),
			WithMetadata(map[string]string{"source": "export"}),
			WithStorageClass(s3types.StorageClassStandardIA),
		)
		_, err := f.w.Write(make([]byte, 15))
		require.NoError(t, err)
		require.NoError(t, f.w.Close())

		obj := f.object(t)
		assert.Equal(t, "text/csv", obj.ContentType)
		assert.Equal(t, map[string]string{"source": "export"}, obj.Metadata)
	})
}

func TestNewWriter_Validation(t *testing.T) {
	client := NewWithStore(memstore.New())
	ctx := context.Background()

	tests := []struct {
		name   string
		bucket string
		key    string
		opts   []s3types.WriterOption
		want   error
	}{
		{"invalid bucket", "Bad_Bucket", testKey, nil, s3errors.ErrInvalidBucketName},
		{"invalid key", testBucket, "../escape", nil, s3errors.ErrInvalidObjectKey},
		{
			"cache below two parts", testBucket, testKey,
			[]s3types.WriterOption{WithLimits(testLimits()), WithCacheSize(9)},
			s3errors.ErrInvalidConfig,
		},
		{
			"unknown checksum", testBucket, testKey,
			[]s3types.WriterOption{WithChecksumAlgorithm("md4")},
			s3errors.ErrInvalidConfig,
		},
		{
			"reserved metadata", testBucket, testKey,
			[]s3types.WriterOption{WithMetadata(map[string]string{"x-amz-acl": "public"})},
			s3errors.ErrInvalidInput,
		},
		{
			"unknown storage class", testBucket, testKey,
			[]s3types.WriterOption{WithStorageClass("COLD")},
			s3errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := client.NewWriter(ctx, tt.bucket, tt.key, tt.opts...)
			assert.Nil(t, w)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewWriter_BufferCappedAtMaxPartSize(t *testing.T) {
	f := newWriterFixture(t, nil, WithCacheSize(100))
	assert.Equal(t, 10, f.w.bufCap)

	f = newWriterFixture(t, nil, WithCacheSize(14))
	assert.Equal(t, 7, f.w.bufCap)
}

func TestWriter_Backpressure(t *testing.T) {
	gate := make(chan struct{})
	store := memstore.New(memstore.WithMinPartSize(5), memstore.WithHooks(memstore.Hooks{
		UploadPart: func(objectstore.Object, int32, []byte) error {
			<-gate
			return nil
		},
	}))
	f := newWriterFixture(t, store)

	// The first buffer goes out as part 1 and the second is filled while it
	// is in flight.
	first := make(chan error, 1)
	go func() {
		_, err := f.w.Write(make([]byte, 20))
		first <- err
	}()
	select {
	case err := <-first:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(gate)
		t.Fatal("Write blocked with only one part in flight")
	}

	// Switching buffers again needs part 1 to be acknowledged.
	second := make(chan error, 1)
	go func() {
		_, err := f.w.Write([]byte{1})
		second <- err
	}()
	select {
	case <-second:
		t.Fatal("Write returned while the shadow buffer was still in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Write did not resume after the part was acknowledged")
	}

	require.NoError(t, f.w.Close())
	assert.Equal(t, []int{10, 10, 1}, partSizes(f.store.CallsTo(memstore.OpUploadPart)))
	assert.Equal(t, 21, len(f.object(t).Data))
	assert.Zero(t, f.pool.Stats().Outstanding())
}

func TestWriter_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memstore.New()
	w, err := NewWithStore(store).NewWriter(ctx, testBucket, testKey,
		WithLimits(testLimits()), WithCacheSize(20), WithBufferPool(pool.NewSyncPool()))
	require.NoError(t, err)

	_, err = w.Write(make([]byte, 15))
	require.NoError(t, err)
	cancel()

	err = w.Close()
	require.ErrorIs(t, err, context.Canceled)
	_, ok := store.Object(testBucket, testKey)
	assert.False(t, ok)
	assert.Len(t, store.CallsTo(memstore.OpAbortSession), 1)
}
