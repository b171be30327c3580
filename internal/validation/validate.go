package validation

import (
	"fmt"
	"net/netip"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/hubject/aws-s3-io/errors"
)

const (
	minBucketLen   = 3
	maxBucketLen   = 63
	maxKeyLen      = 1024
	maxMetaKeyLen  = 128
	maxMetadataLen = 2 * 1024
)

var (
	mimePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+-]*(\s*;.*)?$`)

	reservedBucketPrefixes = []string{"xn--", "sthree-", "amzn-s3-demo-"}
	reservedBucketSuffixes = []string{"-s3alias", "--ol-s3", "--x-s3"}
	reservedMetaPrefixes   = []string{"aws:", "x-amz-"}

	storageClasses = map[string]struct{}{
		"STANDARD":            {},
		"REDUCED_REDUNDANCY":  {},
		"STANDARD_IA":         {},
		"ONEZONE_IA":          {},
		"INTELLIGENT_TIERING": {},
		"GLACIER":             {},
		"GLACIER_IR":          {},
		"DEEP_ARCHIVE":        {},
		"EXPRESS_ONEZONE":     {},
	}
)

func bucketError(bucket, msg string) error {
	return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
		WithBucket(bucket).
		WithMessage(msg)
}

func keyError(key, msg string) error {
	return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
		WithKey(key).
		WithMessage(msg)
}

func inputError(op, msg string) error {
	return errors.NewError(op, errors.ErrInvalidInput).WithMessage(msg)
}

// ValidateBucketName reports whether bucket follows the S3 general purpose
// bucket naming rules. Failures wrap errors.ErrInvalidBucketName.
func ValidateBucketName(bucket string) error {
	switch n := len(bucket); {
	case n == 0:
		return bucketError(bucket, "bucket name cannot be empty")
	case n < minBucketLen || n > maxBucketLen:
		return bucketError(bucket, fmt.Sprintf("bucket name must be between %d and %d characters long",
			minBucketLen, maxBucketLen))
	}

	for _, r := range bucket {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-') {
			return bucketError(bucket, "bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	first, last := bucket[0], bucket[len(bucket)-1]
	if !isAlnum(first) || !isAlnum(last) {
		return bucketError(bucket, "bucket name must begin and end with a letter or number")
	}
	if strings.Contains(bucket, "..") {
		return bucketError(bucket, "bucket name cannot contain two adjacent periods")
	}
	if _, err := netip.ParseAddr(bucket); err == nil {
		return bucketError(bucket, "bucket name cannot be formatted as an IP address")
	}
	for _, p := range reservedBucketPrefixes {
		if strings.HasPrefix(bucket, p) {
			return bucketError(bucket, "bucket name uses reserved prefix "+p)
		}
	}
	for _, s := range reservedBucketSuffixes {
		if strings.HasSuffix(bucket, s) {
			return bucketError(bucket, "bucket name uses reserved suffix "+s)
		}
	}
	return nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// ValidateObjectKey rejects empty or oversized keys, keys with control
// characters and keys that would escape their prefix when interpreted as a
// path. Failures wrap errors.ErrInvalidObjectKey.
func ValidateObjectKey(key string) error {
	if key == "" {
		return keyError(key, "object key cannot be empty")
	}
	if len(key) > maxKeyLen {
		return keyError(key, fmt.Sprintf("object key cannot exceed %d bytes", maxKeyLen))
	}
	if strings.IndexFunc(key, unicode.IsControl) >= 0 {
		return keyError(key, "object key cannot contain control characters")
	}
	if escapes(key) {
		return keyError(key, "object key cannot contain path traversal sequences")
	}
	return nil
}

func escapes(key string) bool {
	slashed := strings.ReplaceAll(key, `\`, "/")
	if strings.HasPrefix(slashed, "/") {
		return true
	}
	if len(slashed) >= 3 && slashed[1] == ':' && slashed[2] == '/' {
		return true
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return true
		}
	}
	return strings.HasPrefix(path.Clean(slashed), "..")
}

// ValidateMetadata checks user metadata keys and values. Keys must be
// printable ASCII without spaces and may not use a reserved prefix. The
// combined size of keys and values is capped at 2 KiB, as in S3.
func ValidateMetadata(metadata map[string]string) error {
	total := 0
	for k, v := range metadata {
		if k == "" {
			return inputError("validateMetadata", "metadata key cannot be empty")
		}
		if len(k) > maxMetaKeyLen {
			return inputError("validateMetadata", fmt.Sprintf("metadata key %q exceeds %d characters", k, maxMetaKeyLen))
		}
		for _, r := range k {
			if r <= ' ' || r > '~' {
				return inputError("validateMetadata", fmt.Sprintf("metadata key %q must be printable ASCII without spaces", k))
			}
		}
		lower := strings.ToLower(k)
		for _, p := range reservedMetaPrefixes {
			if strings.HasPrefix(lower, p) {
				return inputError("validateMetadata", "metadata key cannot start with reserved prefix "+p)
			}
		}
		for _, r := range v {
			if !unicode.IsPrint(r) && r != '\t' {
				return inputError("validateMetadata", fmt.Sprintf("metadata value for %q contains non-printable characters", k))
			}
		}
		total += len(k) + len(v)
	}

	if total > maxMetadataLen {
		return inputError("validateMetadata", fmt.Sprintf("metadata cannot exceed %d bytes, got %d", maxMetadataLen, total))
	}
	return nil
}

// ValidateContentType accepts an empty value or a type/subtype MIME string
// with optional parameters.
func ValidateContentType(contentType string) error {
	if contentType == "" || mimePattern.MatchString(contentType) {
		return nil
	}
	return inputError("validateContentType", fmt.Sprintf("content type %q must be a valid MIME type", contentType))
}

// ValidateStorageClass accepts an empty value or a known S3 storage class.
func ValidateStorageClass(class string) error {
	if class == "" {
		return nil
	}
	if _, ok := storageClasses[class]; !ok {
		return inputError("validateStorageClass", fmt.Sprintf("unknown storage class %q", class))
	}
	return nil
}
