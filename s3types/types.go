// Package s3types provides shared type definitions for the streaming upload module.
package s3types

import (
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/pool"
)

// StorageClass is the storage class a new object is written with. The store
// default applies when it is empty.
type StorageClass string

// Common storage classes. Validation also accepts the archive classes.
const (
	StorageClassStandard           StorageClass = "STANDARD"
	StorageClassReducedRedundancy  StorageClass = "REDUCED_REDUNDANCY"
	StorageClassStandardIA         StorageClass = "STANDARD_IA"
	StorageClassOneZoneIA          StorageClass = "ONEZONE_IA"
	StorageClassIntelligentTiering StorageClass = "INTELLIGENT_TIERING"
	StorageClassGlacierIR          StorageClass = "GLACIER_IR"
)

// Backend selects the SDK used to talk to the object store.
type Backend string

const (
	// BackendAWS uses aws-sdk-go-v2 (AWS S3, LocalStack, any S3-compatible endpoint).
	BackendAWS Backend = "aws"

	// BackendMinio uses minio-go.
	BackendMinio Backend = "minio"
)

const (
	// KiB, MiB and GiB are binary size units.
	KiB = 1 << 10
	MiB = 1 << 20
	GiB = 1 << 30

	// DefaultCacheSize is the memory a writer may use for its two buffers.
	DefaultCacheSize = 32 * MiB

	// DefaultConcurrency is the number of files UploadFiles streams at once.
	DefaultConcurrency = 4
)

// Limits are the size constraints imposed by the object store.
type Limits struct {
	// MinPartSize is the smallest allowed part, except for the last one.
	MinPartSize int

	// MaxPartSize is the largest allowed part.
	MaxPartSize int

	// MaxPutSize is the largest object accepted by a single put.
	MaxPutSize int

	// MaxParts is the largest part number a session accepts.
	MaxParts int
}

// DefaultLimits returns the limits of AWS S3.
func DefaultLimits() Limits {
	return Limits{
		MinPartSize: 5 * MiB,
		MaxPartSize: 5 * GiB,
		MaxPutSize:  5 * GiB,
		MaxParts:    10000,
	}
}

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations can provide real-time progress updates during uploads.
type ProgressTracker interface {
	// Update is called after each acknowledged part. totalBytes is the number of
	// bytes accepted by the writer so far, since the final size is not known.
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer completes successfully
	Complete()

	// Error is called when the transfer fails
	Error(err error)
}

// UploadResult contains the result of an upload operation.
type UploadResult struct {
	// Bucket is the bucket the object was written to
	Bucket string

	// Key is the object key that was uploaded
	Key string

	// Size is the size of the uploaded object in bytes
	Size int64

	// ETag is the entity tag for the uploaded object
	ETag string

	// VersionID is the version ID if versioning is enabled
	VersionID string

	// Location is the URL reported by the store, if any
	Location string

	// Parts is the number of parts uploaded; zero for a direct put
	Parts int

	// Multipart reports whether a multipart session was used
	Multipart bool

	// Duration is how long the upload took
	Duration time.Duration
}

// FileUpload names one local file and its destination key.
type FileUpload struct {
	Path string
	Key  string
}

// Configuration types for functional options

// ClientConfig holds configuration for the client.
type ClientConfig struct {
	Region          string
	Endpoint        string
	MaxRetries      int
	ForcePathStyle  bool
	CustomAWSConfig *aws.Config
	Backend         Backend
	AccessKeyID     string
	SecretAccessKey string
	Concurrency     int
	Logger          *slog.Logger
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider
	Filesystem      billy.Filesystem // Source filesystem for UploadFile
	WriterOptions   []WriterOption   // Applied to every writer before per-call options
}

// WriterConfig holds configuration for a stream writer via functional options.
type WriterConfig struct {
	CacheSize         int
	Checksum          bool
	ChecksumAlgorithm objectstore.Algorithm
	ContentType       string
	Metadata          map[string]string
	StorageClass      StorageClass
	ProgressTracker   ProgressTracker
	BufferPool        pool.Pool
	Limits            Limits
}

// Option is a functional option for configuring the client.
type (
	Option func(*ClientConfig)
	// WriterOption is a functional option for configuring a stream writer.
	WriterOption func(*WriterConfig)
)
