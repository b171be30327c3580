package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// LocalStackRegion is the region buckets are created in.
	LocalStackRegion = "us-east-1"

	// LocalStackAccessKey and LocalStackSecretKey are accepted by LocalStack
	// without verification.
	LocalStackAccessKey = "test"
	LocalStackSecretKey = "test"
)

// LocalStack is a running LocalStack container with only S3 enabled.
type LocalStack struct {
	container *localstack.LocalStackContainer
	endpoint  string
}

// StartLocalStack starts a container and waits until its health check passes.
func StartLocalStack(ctx context.Context) (*LocalStack, error) {
	container, err := localstack.Run(ctx,
		"localstack/localstack:latest",
		testcontainers.WithEnv(map[string]string{"SERVICES": "s3"}),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/_localstack/health").
				WithPort("4566").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start LocalStack container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to resolve LocalStack endpoint: %w", err)
	}
	return &LocalStack{container: container, endpoint: endpoint}, nil
}

// Endpoint returns the http:// URL of the S3 API.
func (l *LocalStack) Endpoint() string {
	return l.endpoint
}

// Client returns a path-style S3 client for the container.
func (l *LocalStack) Client() *s3.Client {
	return s3.New(s3.Options{
		Region:       LocalStackRegion,
		BaseEndpoint: aws.String(l.endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(LocalStackAccessKey, LocalStackSecretKey, ""),
	})
}

// Terminate stops and removes the container.
func (l *LocalStack) Terminate(ctx context.Context) error {
	if err := l.container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate container: %w", err)
	}
	return nil
}

// SetupLocalStackTest starts LocalStack and creates bucket. It returns a raw S3
// client for assertions and the endpoint to configure the code under test.
// The container is removed when the test ends.
func SetupLocalStackTest(t *testing.T, bucket string) (*s3.Client, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	ls, err := StartLocalStack(ctx)
	if err != nil {
		t.Fatalf("Failed to create LocalStack container: %v", err)
	}
	t.Cleanup(func() {
		if err := ls.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate LocalStack container: %v", err)
		}
	})

	client := ls.Client()
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("Failed to create bucket %s: %v", bucket, err)
	}
	return client, ls.Endpoint()
}
