package s3io

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	s3errors "github.com/hubject/aws-s3-io/errors"
	"github.com/hubject/aws-s3-io/internal/s3api"
	"github.com/hubject/aws-s3-io/internal/telemetry"
	"github.com/hubject/aws-s3-io/objectstore"
	"github.com/hubject/aws-s3-io/objectstore/miniostore"
	"github.com/hubject/aws-s3-io/objectstore/s3store"
	"github.com/hubject/aws-s3-io/s3types"
)

const defaultRegion = "us-east-1"

// Client creates stream writers against one object store.
// A Client is safe for concurrent use; the writers it returns are not.
type Client struct {
	store objectstore.Store
	cfg   s3types.ClientConfig
	log   *slog.Logger
	tel   *telemetry.Telemetry
	fs    billy.Filesystem
}

func newConfig(opts []s3types.Option) s3types.ClientConfig {
	cfg := s3types.ClientConfig{
		Backend:     s3types.BackendAWS,
		Concurrency: s3types.DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// New creates a client for the configured backend. The AWS backend loads
// credentials through the default chain unless WithCredentials or
// WithAWSConfig is given.
//
// Example:
//
//	client, err := s3io.New(ctx,
//	    s3io.WithRegion("eu-central-1"),
//	    s3io.WithLogger(logger),
//	)
func New(ctx context.Context, opts ...s3types.Option) (*Client, error) {
	cfg := newConfig(opts)

	var (
		store objectstore.Store
		err   error
	)
	switch cfg.Backend {
	case s3types.BackendAWS, "":
		store, err = newAWSStore(ctx, cfg)
	case s3types.BackendMinio:
		store, err = newMinioStore(cfg)
	default:
		err = s3errors.NewError("newClient", s3errors.ErrInvalidConfig).
			WithMessage(fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	return newClient(store, cfg), nil
}

// NewWithClient creates a client on top of an existing S3 API implementation,
// such as a preconfigured *s3.Client or a test double.
func NewWithClient(api s3api.S3API, opts ...s3types.Option) *Client {
	return newClient(s3store.New(api), newConfig(opts))
}

// NewWithStore creates a client on top of any objectstore.Store.
func NewWithStore(store objectstore.Store, opts ...s3types.Option) *Client {
	return newClient(store, newConfig(opts))
}

func newClient(store objectstore.Store, cfg s3types.ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fs := cfg.Filesystem
	if fs == nil {
		fs = osfs.New("/")
	}

	return &Client{
		store: store,
		cfg:   cfg,
		log:   log,
		tel:   telemetry.New(cfg.TracerProvider, cfg.MeterProvider),
		fs:    fs,
	}
}

func newAWSStore(ctx context.Context, cfg s3types.ClientConfig) (objectstore.Store, error) {
	var awsCfg aws.Config
	if cfg.CustomAWSConfig != nil {
		awsCfg = cfg.CustomAWSConfig.Copy()
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AccessKeyID != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
		}

		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, s3errors.NewError("newClient", err)
		}
	}

	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	} else if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	var otelOpts []otelaws.Option
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelaws.WithTracerProvider(cfg.TracerProvider))
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions, otelOpts...)

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return s3store.New(client), nil
}

func newMinioStore(cfg s3types.ClientConfig) (objectstore.Store, error) {
	host, secure, err := minioEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	creds := miniocreds.NewEnvAWS()
	if cfg.AccessKeyID != "" {
		creds = miniocreds.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	lookup := minio.BucketLookupAuto
	if cfg.ForcePathStyle {
		lookup = minio.BucketLookupPath
	}

	core, err := minio.NewCore(host, &minio.Options{
		Creds:        creds,
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
		MaxRetries:   cfg.MaxRetries,
	})
	if err != nil {
		return nil, s3errors.NewError("newClient", err)
	}
	return miniostore.New(core), nil
}

// minioEndpoint splits an endpoint URL into the host minio-go expects and
// whether TLS is used. A bare host:port is treated as HTTPS.
func minioEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "s3.amazonaws.com", true, nil
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", false, s3errors.NewError("newClient", s3errors.ErrInvalidConfig).
			WithMessage(fmt.Sprintf("invalid endpoint %q", endpoint))
	}

	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, s3errors.NewError("newClient", s3errors.ErrInvalidConfig).
			WithMessage(fmt.Sprintf("unsupported endpoint scheme %q", u.Scheme))
	}
}

// Store returns the object store the client writes to.
func (c *Client) Store() objectstore.Store {
	return c.store
}

// Filesystem returns the filesystem UploadFile reads from.
func (c *Client) Filesystem() billy.Filesystem {
	return c.fs
}
