package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Recorder captures every request a mock receives, with request bodies read
// into memory.
type Recorder struct {
	mu sync.Mutex

	Creates   []*s3.CreateMultipartUploadInput
	Parts     []*s3.UploadPartInput
	PartData  map[int32][]byte
	Completes []*s3.CompleteMultipartUploadInput
	Aborts    []*s3.AbortMultipartUploadInput
	Puts      []*s3.PutObjectInput
	PutData   [][]byte
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{PartData: make(map[int32][]byte)}
}

// Counts returns the number of create, part, complete, abort and put requests.
func (r *Recorder) Counts() (creates, parts, completes, aborts, puts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Creates), len(r.Parts), len(r.Completes), len(r.Aborts), len(r.Puts)
}

// MockBuilder assembles a MockS3Client call by call.
type MockBuilder struct {
	client *MockS3Client
}

// NewMockBuilder starts from a client whose calls all succeed with empty output.
func NewMockBuilder() *MockBuilder {
	return &MockBuilder{client: &MockS3Client{}}
}

// Build returns the assembled client.
func (b *MockBuilder) Build() *MockS3Client {
	return b.client
}

// WithPutObject replaces PutObject.
func (b *MockBuilder) WithPutObject(fn func(context.Context, *s3.PutObjectInput) (*s3.PutObjectOutput, error)) *MockBuilder {
	b.client.PutObjectFunc = ignoreOptions(fn)
	return b
}

// WithUploadPart replaces UploadPart.
func (b *MockBuilder) WithUploadPart(fn func(context.Context, *s3.UploadPartInput) (*s3.UploadPartOutput, error)) *MockBuilder {
	b.client.UploadPartFunc = ignoreOptions(fn)
	return b
}

// WithAbortMultipartUpload replaces AbortMultipartUpload.
func (b *MockBuilder) WithAbortMultipartUpload(
	fn func(context.Context, *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error),
) *MockBuilder {
	b.client.AbortMultipartUploadFunc = ignoreOptions(fn)
	return b
}

func ignoreOptions[In, Out any](fn func(context.Context, *In) (*Out, error)) s3Func[In, Out] {
	return func(ctx context.Context, in *In, _ ...func(*s3.Options)) (*Out, error) {
		return fn(ctx, in)
	}
}

// WithMultipartUpload makes every call succeed and records it in rec. The
// upload id is "test-upload-id"; part n gets the ETag "part-etag-n".
func (b *MockBuilder) WithMultipartUpload(rec *Recorder) *MockBuilder {
	c := b.client

	c.CreateMultipartUploadFunc = ignoreOptions(func(_ context.Context, in *s3.CreateMultipartUploadInput) (*s3.CreateMultipartUploadOutput, error) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.Creates = append(rec.Creates, in)
		return &s3.CreateMultipartUploadOutput{UploadId: aws.String("test-upload-id"), Bucket: in.Bucket, Key: in.Key}, nil
	})

	c.UploadPartFunc = ignoreOptions(func(_ context.Context, in *s3.UploadPartInput) (*s3.UploadPartOutput, error) {
		data, err := readBody(in.Body)
		if err != nil {
			return nil, err
		}
		number := aws.ToInt32(in.PartNumber)

		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.Parts = append(rec.Parts, in)
		rec.PartData[number] = data
		return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf(`"part-etag-%d"`, number))}, nil
	})

	c.CompleteMultipartUploadFunc = ignoreOptions(func(_ context.Context, in *s3.CompleteMultipartUploadInput) (*s3.CompleteMultipartUploadOutput, error) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.Completes = append(rec.Completes, in)
		return &s3.CompleteMultipartUploadOutput{
			Bucket:    in.Bucket,
			Key:       in.Key,
			ETag:      aws.String(`"multipart-etag"`),
			Location:  aws.String("https://example.invalid/" + aws.ToString(in.Key)),
			VersionId: aws.String("v1"),
		}, nil
	})

	c.AbortMultipartUploadFunc = ignoreOptions(func(_ context.Context, in *s3.AbortMultipartUploadInput) (*s3.AbortMultipartUploadOutput, error) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.Aborts = append(rec.Aborts, in)
		return &s3.AbortMultipartUploadOutput{}, nil
	})

	c.PutObjectFunc = ignoreOptions(func(_ context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		data, err := readBody(in.Body)
		if err != nil {
			return nil, err
		}

		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.Puts = append(rec.Puts, in)
		rec.PutData = append(rec.PutData, data)
		return &s3.PutObjectOutput{ETag: aws.String(`"test-etag"`)}, nil
	})

	return b
}

// WithAPIError makes the named operation fail with an API error carrying code.
// It panics on an operation the mock does not implement.
func (b *MockBuilder) WithAPIError(op, code string) *MockBuilder {
	err := &smithy.GenericAPIError{Code: code, Message: "mock " + code}
	c := b.client

	switch op {
	case "PutObject":
		c.PutObjectFunc = failWith[s3.PutObjectInput, s3.PutObjectOutput](err)
	case "CreateMultipartUpload":
		c.CreateMultipartUploadFunc = failWith[s3.CreateMultipartUploadInput, s3.CreateMultipartUploadOutput](err)
	case "UploadPart":
		c.UploadPartFunc = failWith[s3.UploadPartInput, s3.UploadPartOutput](err)
	case "CompleteMultipartUpload":
		c.CompleteMultipartUploadFunc = failWith[s3.CompleteMultipartUploadInput, s3.CompleteMultipartUploadOutput](err)
	case "AbortMultipartUpload":
		c.AbortMultipartUploadFunc = failWith[s3.AbortMultipartUploadInput, s3.AbortMultipartUploadOutput](err)
	default:
		panic("testutil: unknown operation " + op)
	}
	return b
}

func failWith[In, Out any](err error) s3Func[In, Out] {
	return func(context.Context, *In, ...func(*s3.Options)) (*Out, error) {
		return nil, err
	}
}

func readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}
