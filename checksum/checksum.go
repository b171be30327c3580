// Package checksum provides the content digests attached to upload parts and
// single-shot puts.
package checksum

import (
	"crypto/md5" //nolint:gosec // MD5 is what S3 expects in Content-MD5
	"crypto/sha256"
	"fmt"
	"hash/crc32"

	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/objectstore"
)

// Provider computes a checksum over a part body.
// Implementations must be safe for concurrent use.
type Provider interface {
	Algorithm() objectstore.Algorithm
	Sum(p []byte) *objectstore.Checksum
}

// MD5 produces Content-MD5 digests.
type MD5 struct{}

// Algorithm returns objectstore.AlgorithmMD5.
func (MD5) Algorithm() objectstore.Algorithm { return objectstore.AlgorithmMD5 }

// Sum returns the MD5 digest of p.
func (MD5) Sum(p []byte) *objectstore.Checksum {
	sum := md5.Sum(p) //nolint:gosec
	return &objectstore.Checksum{Algorithm: objectstore.AlgorithmMD5, Sum: sum[:]}
}

// SHA256 produces x-amz-checksum-sha256 digests.
type SHA256 struct{}

// Algorithm returns objectstore.AlgorithmSHA256.
func (SHA256) Algorithm() objectstore.Algorithm { return objectstore.AlgorithmSHA256 }

// Sum returns the SHA-256 digest of p.
func (SHA256) Sum(p []byte) *objectstore.Checksum {
	sum := sha256.Sum256(p)
	return &objectstore.Checksum{Algorithm: objectstore.AlgorithmSHA256, Sum: sum[:]}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C produces x-amz-checksum-crc32c digests (big-endian).
type CRC32C struct{}

// Algorithm returns objectstore.AlgorithmCRC32C.
func (CRC32C) Algorithm() objectstore.Algorithm { return objectstore.AlgorithmCRC32C }

// Sum returns the CRC32C digest of p.
func (CRC32C) Sum(p []byte) *objectstore.Checksum {
	v := crc32.Checksum(p, castagnoli)
	return &objectstore.Checksum{
		Algorithm: objectstore.AlgorithmCRC32C,
		Sum:       []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)},
	}
}

// ForAlgorithm returns the provider for alg. An empty algorithm selects MD5.
func ForAlgorithm(alg objectstore.Algorithm) (Provider, error) {
	switch alg {
	case "", objectstore.AlgorithmMD5:
		return MD5{}, nil
	case objectstore.AlgorithmSHA256:
		return SHA256{}, nil
	case objectstore.AlgorithmCRC32C:
		return CRC32C{}, nil
	default:
		return nil, s3errors.NewError("checksum", fmt.Errorf("%w: unsupported algorithm %q", s3errors.ErrInvalidConfig, alg))
	}
}

// Verify recomputes the digest of p with the algorithm of want and reports
// whether they match.
func Verify(p []byte, want *objectstore.Checksum) error {
	if want == nil {
		return nil
	}
	provider, err := ForAlgorithm(want.Algorithm)
	if err != nil {
		return err
	}
	got := provider.Sum(p)
	if got.Base64() != want.Base64() {
		return fmt.Errorf("%w: %s %s, computed %s", s3errors.ErrChecksumMismatch, want.Algorithm, want.Base64(), got.Base64())
	}
	return nil
}
