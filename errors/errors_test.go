package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bucket and key",
			err:  NewObjectError("uploadPart", "bucket", "key", cause),
			want: "s3io.uploadPart bucket/key: boom",
		},
		{
			name: "bucket only",
			err:  NewError("startSession", cause).WithBucket("bucket"),
			want: "s3io.startSession bucket bucket: boom",
		},
		{
			name: "key only",
			err:  NewError("write", cause).WithKey("key"),
			want: "s3io.write object key: boom",
		},
		{
			name: "no context",
			err:  NewError("close", cause),
			want: "s3io.close: boom",
		},
		{
			name: "with message",
			err:  NewError("put", cause).WithMessage("sending body"),
			want: "s3io.put: sending body: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestWithAbort(t *testing.T) {
	cause := NewObjectError("uploadPart", "b", "k", errors.New("network down"))

	t.Run("abort succeeded", func(t *testing.T) {
		err := WithAbort(cause, nil)
		assert.Same(t, cause, err)
		assert.False(t, IsAbortFailed(err))
	})

	t.Run("abort failed", func(t *testing.T) {
		abortErr := errors.New("abort refused")
		err := WithAbort(cause, abortErr)

		require.True(t, IsAbortFailed(err))
		assert.ErrorIs(t, err, abortErr)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "uploadPart", e.Op)

		var ae *AbortError
		require.ErrorAs(t, err, &ae)
		assert.Same(t, cause, ae.Cause)
		assert.Contains(t, err.Error(), "abort failed: abort refused")
	})
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"invalid config", NewError("newWriter", ErrInvalidConfig), CodeInvalidConfig},
		{"invalid bucket", NewObjectError("newWriter", "B", "k", ErrInvalidBucketName), CodeInvalidInput},
		{"too many parts", NewError("enqueue", ErrTooManyParts), CodeInvalidInput},
		{"closed", NewError("write", ErrClosed), CodeClosed},
		{"pipeline closed", fmt.Errorf("%w: %w", ErrPipelineClosed, errors.New("x")), CodeClosed},
		{"canceled", NewError("uploadPart", context.Canceled), CodeCanceled},
		{"deadline", NewError("uploadPart", context.DeadlineExceeded), CodeTimeout},
		{"no such upload", NewError("completeSession", ErrNoSuchUpload), CodeNotFound},
		{"access denied", NewError("startSession", ErrAccessDenied), CodeForbidden},
		{"store", NewError("uploadPart", errors.New("500")), CodeStore},
		{"unknown", errors.New("plain"), CodeUnknown},
		{
			"abort error uses cause",
			WithAbort(NewError("uploadPart", ErrAccessDenied), errors.New("abort")),
			CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
