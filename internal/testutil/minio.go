package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// MinioAccessKey and MinioSecretKey are the root credentials of the test server.
	MinioAccessKey = "minioadmin"
	MinioSecretKey = "minioadmin"
)

// MinioContainer wraps a MinIO server container for integration tests.
type MinioContainer struct {
	container testcontainers.Container
	endpoint  string
}

// NewMinioContainer creates and starts a MinIO server.
func NewMinioContainer(ctx context.Context, t *testing.T) (*MinioContainer, error) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     MinioAccessKey,
				"MINIO_ROOT_PASSWORD": MinioSecretKey,
			},
			Cmd: []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000/tcp").
				WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start MinIO container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container endpoint: %w", err)
	}

	return &MinioContainer{container: container, endpoint: endpoint}, nil
}

// Endpoint returns host:port of the MinIO API.
func (c *MinioContainer) Endpoint() string {
	return c.endpoint
}

// Core returns a minio Core client for the container.
func (c *MinioContainer) Core() (*minio.Core, error) {
	return minio.NewCore(c.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(MinioAccessKey, MinioSecretKey, ""),
		Secure: false,
	})
}

// Terminate stops and removes the MinIO container.
func (c *MinioContainer) Terminate(ctx context.Context) error {
	if c.container != nil {
		if err := c.container.Terminate(ctx); err != nil {
			return fmt.Errorf("failed to terminate container: %w", err)
		}
	}
	return nil
}

// SetupMinioTest starts MinIO, creates bucket and returns a Core client with a
// cleanup function that should be deferred.
func SetupMinioTest(t *testing.T, bucket string) (*minio.Core, *MinioContainer, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := NewMinioContainer(ctx, t)
	if err != nil {
		t.Fatalf("Failed to create MinIO container: %v", err)
	}

	core, err := container.Core()
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to create MinIO client: %v", err)
	}

	if err := core.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to create bucket: %v", err)
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MinIO container: %v", err)
		}
	}
	return core, container, cleanup
}
