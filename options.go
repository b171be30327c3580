package s3io

import (
	"log/slog"
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/pool"
	"github.com/hubject/aws-s3-io/s3types"
)

// WithRegion sets the region used for store requests.
// If not specified, the default AWS credential chain decides, then us-east-1.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithEndpoint sets a custom endpoint URL, for LocalStack, MinIO or any other
// S3-compatible service.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithMaxRetries sets the SDK's maximum number of attempts per request.
// Zero keeps the SDK default.
func WithMaxRetries(maxRetries int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithForcePathStyle forces path-style URLs instead of virtual-hosted style.
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithAWSConfig replaces the configuration loaded from the environment.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithBackend selects the SDK used to reach the store. Default is BackendAWS.
func WithBackend(backend s3types.Backend) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Backend = backend
	}
}

// WithCredentials sets static credentials instead of the default chain.
func WithCredentials(accessKeyID, secretAccessKey string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithConcurrency sets how many files UploadFiles streams at once.
// Each file holds up to two buffers, so memory grows with this value.
func WithConcurrency(concurrency int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithLogger sets the structured logger. Default discards everything.
func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithTracerProvider sets the tracer provider. Default is the global one.
func WithTracerProvider(tp trace.TracerProvider) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Default is the global one.
func WithMeterProvider(mp metric.MeterProvider) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MeterProvider = mp
	}
}

// WithFilesystem sets the filesystem UploadFile reads from.
// If not specified, defaults to the OS filesystem rooted at /.
func WithFilesystem(filesystem billy.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithWriterDefaults applies opts to every writer the client creates, before
// the options passed to NewWriter.
func WithWriterDefaults(opts ...s3types.WriterOption) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.WriterOptions = append(c.WriterOptions, opts...)
	}
}

// WithCacheSize sets the memory a writer may hold in buffers. Each of the two
// buffers gets half, capped at the maximum part size. The value must be at
// least twice the minimum part size.
func WithCacheSize(size int) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.CacheSize = size
	}
}

// WithChecksum enables or disables per-part checksums. Enabled by default.
func WithChecksum(enabled bool) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.Checksum = enabled
	}
}

// WithChecksumAlgorithm selects the checksum algorithm and enables checksums.
// Default is MD5.
func WithChecksumAlgorithm(alg objectstore.Algorithm) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.Checksum = true
		c.ChecksumAlgorithm = alg
	}
}

// WithBufferPool sets the pool buffers are acquired from and released to.
func WithBufferPool(p pool.Pool) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.BufferPool = p
	}
}

// WithContentType sets the object's content type. Without it the type is
// detected from the first buffer.
func WithContentType(contentType string) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata adds user metadata to the object.
func WithMetadata(metadata map[string]string) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		maps.Copy(c.Metadata, metadata)
	}
}

// WithStorageClass sets the object's storage class.
func WithStorageClass(storageClass s3types.StorageClass) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.StorageClass = storageClass
	}
}

// WithProgress sets a tracker notified after every acknowledged part.
func WithProgress(tracker s3types.ProgressTracker) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.ProgressTracker = tracker
	}
}

// WithLimits overrides the store's size limits. Mostly useful against
// S3-compatible stores with different constraints, and in tests.
func WithLimits(limits s3types.Limits) s3types.WriterOption {
	return func(c *s3types.WriterConfig) {
		c.Limits = limits
	}
}
