// Package s3store implements objectstore.Store with aws-sdk-go-v2.
package s3store

import (
	"bytes"
	"context"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hubject/aws-s3-io/internal/s3api"
	"github.com/hubject/aws-s3-io/objectstore"
)

// Store talks to S3 or any S3-compatible endpoint through an SDK client.
type Store struct {
	client s3api.S3API
}

var _ objectstore.Store = (*Store)(nil)

// New wraps client, usually an *s3.Client.
func New(client s3api.S3API) *Store {
	return &Store{client: client}
}

// StartSession implements objectstore.Store.
func (s *Store) StartSession(ctx context.Context, obj objectstore.Object) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(obj.Bucket),
		Key:         aws.String(obj.Key),
		ContentType: contentType(obj),
		Metadata:    maps.Clone(obj.Metadata),
	}
	if obj.StorageClass != "" {
		input.StorageClass = types.StorageClass(obj.StorageClass)
	}
	if alg, ok := checksumAlgorithm(obj.ChecksumAlgorithm); ok {
		input.ChecksumAlgorithm = alg
	}

	output, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", convertAWSError(err)
	}
	return aws.ToString(output.UploadId), nil
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
	input := &s3.UploadPartInput{
		Bucket:        aws.String(obj.Bucket),
		Key:           aws.String(obj.Key),
		UploadId:      aws.String(sessionID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	setPartChecksum(input, sum)

	output, err := s.client.UploadPart(ctx, input)
	if err != nil {
		return objectstore.Part{}, convertAWSError(err)
	}

	return objectstore.Part{
		Number:   number,
		ETag:     aws.ToString(output.ETag),
		Size:     int64(len(body)),
		Checksum: sum,
	}, nil
}

// CompleteSession implements objectstore.Store.
func (s *Store) CompleteSession(
	ctx context.Context,
	obj objectstore.Object,
	sessionID string,
	parts []objectstore.Part,
) (*objectstore.Result, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		cp := types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.Number),
		}
		if p.Checksum != nil {
			switch p.Checksum.Algorithm {
			case objectstore.AlgorithmSHA256:
				cp.ChecksumSHA256 = aws.String(p.Checksum.Base64())
			case objectstore.AlgorithmCRC32C:
				cp.ChecksumCRC32C = aws.String(p.Checksum.Base64())
			}
		}
		completed = append(completed, cp)
	}

	output, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(obj.Bucket),
		Key:      aws.String(obj.Key),
		UploadId: aws.String(sessionID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return nil, convertAWSError(err)
	}

	return &objectstore.Result{
		Bucket:    obj.Bucket,
		Key:       obj.Key,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
		Location:  aws.ToString(output.Location),
	}, nil
}

// AbortSession implements objectstore.Store.
func (s *Store) AbortSession(ctx context.Context, obj objectstore.Object, sessionID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(obj.Bucket),
		Key:      aws.String(obj.Key),
		UploadId: aws.String(sessionID),
	})
	return convertAWSError(err)
}

// PutObject implements objectstore.Store.
func (s *Store) PutObject(
	ctx context.Context,
	obj objectstore.Object,
	body []byte,
	sum *objectstore.Checksum,
) (*objectstore.Result, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(obj.Bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   contentType(obj),
		Metadata:      maps.Clone(obj.Metadata),
	}
	if obj.StorageClass != "" {
		input.StorageClass = types.StorageClass(obj.StorageClass)
	}
	if sum != nil {
		switch sum.Algorithm {
		case objectstore.AlgorithmMD5:
			input.ContentMD5 = aws.String(sum.Base64())
		case objectstore.AlgorithmSHA256:
			input.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
			input.ChecksumSHA256 = aws.String(sum.Base64())
		case objectstore.AlgorithmCRC32C:
			input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
			input.ChecksumCRC32C = aws.String(sum.Base64())
		}
	}

	output, err := s.client.PutObject(ctx, input)
	if err != nil {
		return nil, convertAWSError(err)
	}

	return &objectstore.Result{
		Bucket:    obj.Bucket,
		Key:       obj.Key,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

func setPartChecksum(input *s3.UploadPartInput, sum *objectstore.Checksum) {
	if sum == nil {
		return
	}
	switch sum.Algorithm {
	case objectstore.AlgorithmMD5:
		input.ContentMD5 = aws.String(sum.Base64())
	case objectstore.AlgorithmSHA256:
		input.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
		input.ChecksumSHA256 = aws.String(sum.Base64())
	case objectstore.AlgorithmCRC32C:
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
		input.ChecksumCRC32C = aws.String(sum.Base64())
	}
}

// checksumAlgorithm maps algorithms that S3 needs declared at session start.
// MD5 travels per request in Content-MD5 and needs no declaration.
func checksumAlgorithm(alg objectstore.Algorithm) (types.ChecksumAlgorithm, bool) {
	switch alg {
	case objectstore.AlgorithmSHA256:
		return types.ChecksumAlgorithmSha256, true
	case objectstore.AlgorithmCRC32C:
		return types.ChecksumAlgorithmCrc32c, true
	default:
		return "", false
	}
}

func contentType(obj objectstore.Object) *string {
	if obj.ContentType == "" {
		return nil
	}
	return aws.String(obj.ContentType)
}
