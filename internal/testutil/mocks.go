// Package testutil holds mocks, data helpers and containers shared by the
// module's tests.
package testutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hubject/aws-s3-io/internal/s3api"
)

type s3Func[In, Out any] func(context.Context, *In, ...func(*s3.Options)) (*Out, error)

// MockS3Client implements s3api.S3API. Each call runs the matching func field,
// or returns an empty output when the field is nil.
type MockS3Client struct {
	PutObjectFunc               s3Func[s3.PutObjectInput, s3.PutObjectOutput]
	CreateMultipartUploadFunc   s3Func[s3.CreateMultipartUploadInput, s3.CreateMultipartUploadOutput]
	UploadPartFunc              s3Func[s3.UploadPartInput, s3.UploadPartOutput]
	CompleteMultipartUploadFunc s3Func[s3.CompleteMultipartUploadInput, s3.CompleteMultipartUploadOutput]
	AbortMultipartUploadFunc    s3Func[s3.AbortMultipartUploadInput, s3.AbortMultipartUploadOutput]
}

var _ s3api.S3API = (*MockS3Client)(nil)

func invoke[In, Out any](fn s3Func[In, Out], ctx context.Context, in *In, optFns []func(*s3.Options)) (*Out, error) {
	if fn == nil {
		return new(Out), nil
	}
	return fn(ctx, in, optFns...)
}

func (m *MockS3Client) PutObject(
	ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	return invoke(m.PutObjectFunc, ctx, in, optFns)
}

func (m *MockS3Client) CreateMultipartUpload(
	ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	return invoke(m.CreateMultipartUploadFunc, ctx, in, optFns)
}

func (m *MockS3Client) UploadPart(
	ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	return invoke(m.UploadPartFunc, ctx, in, optFns)
}

func (m *MockS3Client) CompleteMultipartUpload(
	ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	return invoke(m.CompleteMultipartUploadFunc, ctx, in, optFns)
}

func (m *MockS3Client) AbortMultipartUpload(
	ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	return invoke(m.AbortMultipartUploadFunc, ctx, in, optFns)
}
