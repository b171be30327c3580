// Package miniostore implements objectstore.Store with minio-go's low-level
// Core client.
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"

	"github.com/minio/minio-go/v7"

	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/objectstore"
)

// CoreAPI is the subset of *minio.Core used by Store.
type CoreAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(
		ctx context.Context,
		bucket, object, uploadID string,
		partID int,
		data io.Reader,
		size int64,
		opts minio.PutObjectPartOptions,
	) (minio.ObjectPart, error)
	CompleteMultipartUpload(
		ctx context.Context,
		bucket, object, uploadID string,
		parts []minio.CompletePart,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	PutObject(
		ctx context.Context,
		bucket, object string,
		data io.Reader,
		size int64,
		md5Base64, sha256Hex string,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
}

var _ CoreAPI = (*minio.Core)(nil)

const crc32cHeader = "X-Amz-Checksum-Crc32c"

// Store talks to MinIO or any S3-compatible server through minio-go.
type Store struct {
	core CoreAPI
}

var _ objectstore.Store = (*Store)(nil)

// New wraps core, usually a *minio.Core.
func New(core CoreAPI) *Store {
	return &Store{core: core}
}

func putOptions(obj objectstore.Object) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: maps.Clone(obj.Metadata),
		StorageClass: obj.StorageClass,
	}
}

// StartSession implements objectstore.Store.
func (s *Store) StartSession(ctx context.Context, obj objectstore.Object) (string, error) {
	id, err := s.core.NewMultipartUpload(ctx, obj.Bucket, obj.Key, putOptions(obj))
	if err != nil {
		return "", translateError(err)
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
	var opts minio.PutObjectPartOptions
	if sum != nil {
		switch sum.Algorithm {
		case objectstore.AlgorithmMD5:
			opts.Md5Base64 = sum.Base64()
		case objectstore.AlgorithmSHA256:
			opts.Sha256Hex = sum.Hex()
		case objectstore.AlgorithmCRC32C:
			opts.CustomHeader = http.Header{}
			opts.CustomHeader.Set(crc32cHeader, sum.Base64())
		}
	}

	part, err := s.core.PutObjectPart(ctx, obj.Bucket, obj.Key, sessionID, int(number),
		bytes.NewReader(body), int64(len(body)), opts)
	if err != nil {
		return objectstore.Part{}, translateError(err)
	}

	return objectstore.Part{
		Number:   number,
		ETag:     part.ETag,
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
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		cp := minio.CompletePart{PartNumber: int(p.Number), ETag: p.ETag}
		if p.Checksum != nil && p.Checksum.Algorithm == objectstore.AlgorithmCRC32C {
			cp.ChecksumCRC32C = p.Checksum.Base64()
		}
		completed = append(completed, cp)
	}

	info, err := s.core.CompleteMultipartUpload(ctx, obj.Bucket, obj.Key, sessionID, completed, putOptions(obj))
	if err != nil {
		return nil, translateError(err)
	}
	return result(obj, info), nil
}

// AbortSession implements objectstore.Store.
func (s *Store) AbortSession(ctx context.Context, obj objectstore.Object, sessionID string) error {
	return translateError(s.core.AbortMultipartUpload(ctx, obj.Bucket, obj.Key, sessionID))
}

// PutObject implements objectstore.Store.
func (s *Store) PutObject(
	ctx context.Context,
	obj objectstore.Object,
	body []byte,
	sum *objectstore.Checksum,
) (*objectstore.Result, error) {
	opts := putOptions(obj)

	var md5Base64, sha256Hex string
	if sum != nil {
		switch sum.Algorithm {
		case objectstore.AlgorithmMD5:
			md5Base64 = sum.Base64()
		case objectstore.AlgorithmSHA256:
			sha256Hex = sum.Hex()
		case objectstore.AlgorithmCRC32C:
			opts.UserMetadata = withHeader(opts.UserMetadata, crc32cHeader, sum.Base64())
		}
	}

	info, err := s.core.PutObject(ctx, obj.Bucket, obj.Key, bytes.NewReader(body), int64(len(body)),
		md5Base64, sha256Hex, opts)
	if err != nil {
		return nil, translateError(err)
	}
	return result(obj, info), nil
}

// withHeader adds an x-amz-* header through UserMetadata, which minio-go
// sends verbatim for keys carrying the amz prefix.
func withHeader(meta map[string]string, key, value string) map[string]string {
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta[key] = value
	return meta
}

func result(obj objectstore.Object, info minio.UploadInfo) *objectstore.Result {
	return &objectstore.Result{
		Bucket:    obj.Bucket,
		Key:       obj.Key,
		ETag:      info.ETag,
		VersionID: info.VersionID,
		Location:  info.Location,
	}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", s3errors.ErrBucketNotFound, err)
	case "NoSuchUpload":
		return fmt.Errorf("%w: %w", s3errors.ErrNoSuchUpload, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %w", s3errors.ErrAccessDenied, err)
	case "EntityTooSmall":
		return fmt.Errorf("%w: %w", s3errors.ErrEntityTooSmall, err)
	case "BadDigest", "InvalidDigest", "XAmzContentSHA256Mismatch", "XAmzContentChecksumMismatch":
		return fmt.Errorf("%w: %w", s3errors.ErrChecksumMismatch, err)
	case "RequestTimeout":
		return fmt.Errorf("%w: %w", s3errors.ErrTimeout, err)
	}
	return err
}
