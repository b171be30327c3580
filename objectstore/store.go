// Package objectstore defines the minimal object store surface the upload
// pipeline drives: multipart sessions and single-shot puts.
//
// Adapters live in subpackages: s3store (aws-sdk-go-v2), miniostore
// (minio-go) and memstore (in memory, for tests and examples).
package objectstore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
)

// Algorithm names a content checksum algorithm.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "MD5"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmCRC32C Algorithm = "CRC32C"
)

// Checksum is a digest of a part or object body.
type Checksum struct {
	Algorithm Algorithm
	Sum       []byte
}

// Base64 returns the standard base64 encoding used by S3 headers.
func (c *Checksum) Base64() string {
	if c == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(c.Sum)
}

// Hex returns the lowercase hex encoding.
func (c *Checksum) Hex() string {
	if c == nil {
		return ""
	}
	return hex.EncodeToString(c.Sum)
}

// Object identifies the target of an upload and carries its attributes.
type Object struct {
	Bucket       string
	Key          string
	ContentType  string
	Metadata     map[string]string
	StorageClass string

	// ChecksumAlgorithm is set when parts carry checksums. Stores that need
	// to declare the algorithm up front (S3 with SHA-256/CRC32C) read it at
	// session start.
	ChecksumAlgorithm Algorithm
}

// Part is an acknowledged upload part.
type Part struct {
	Number   int32
	ETag     string
	Size     int64
	Checksum *Checksum
}

// Result describes a stored object.
type Result struct {
	Bucket    string
	Key       string
	ETag      string
	VersionID string
	Location  string
}

// Store is the object store client used by writers and the upload pipeline.
// Implementations must be safe for concurrent use by multiple sessions.
type Store interface {
	// StartSession begins a multipart upload and returns its session id.
	StartSession(ctx context.Context, obj Object) (string, error)

	// UploadPart sends one part. body is only valid for the duration of the call.
	UploadPart(ctx context.Context, obj Object, sessionID string, number int32, body []byte, sum *Checksum) (Part, error)

	// CompleteSession assembles the object from parts, which are sorted by number.
	CompleteSession(ctx context.Context, obj Object, sessionID string, parts []Part) (*Result, error)

	// AbortSession discards a session and every part uploaded to it.
	AbortSession(ctx context.Context, obj Object, sessionID string) error

	// PutObject stores body as a whole object in one request.
	PutObject(ctx context.Context, obj Object, body []byte, sum *Checksum) (*Result, error)
}
