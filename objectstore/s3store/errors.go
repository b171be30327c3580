package s3store

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	s3errors "github.com/hubject/aws-s3-io/errors"
)

// convertAWSError tags SDK errors with the matching sentinel while keeping the
// original error in the chain.
func convertAWSError(err error) error {
	if err == nil {
		return nil
	}

	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: %w", s3errors.ErrBucketNotFound, err)
	}
	var noSuchUpload *types.NoSuchUpload
	if errors.As(err, &noSuchUpload) {
		return fmt.Errorf("%w: %w", s3errors.ErrNoSuchUpload, err)
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.ErrorCode() {
	case "NoSuchBucket":
		return fmt.Errorf("%w: %w", s3errors.ErrBucketNotFound, err)
	case "NoSuchUpload":
		return fmt.Errorf("%w: %w", s3errors.ErrNoSuchUpload, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %w", s3errors.ErrAccessDenied, err)
	case "EntityTooSmall":
		return fmt.Errorf("%w: %w", s3errors.ErrEntityTooSmall, err)
	case "BadDigest", "InvalidDigest", "XAmzContentChecksumMismatch", "XAmzContentSHA256Mismatch":
		return fmt.Errorf("%w: %w", s3errors.ErrChecksumMismatch, err)
	case "RequestTimeout":
		return fmt.Errorf("%w: %w", s3errors.ErrTimeout, err)
	}
	return err
}
