//go:build e2e

package framework

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Test credentials accepted by Localstack.
const (
	LocalstackAccessKey = "test"
	LocalstackSecretKey = "test"
	LocalstackRegion    = "us-east-1"
)

// Localstack manages a Localstack S3 endpoint for tests.
type Localstack struct {
	T         *testing.T
	Container testcontainers.Container
	Endpoint  string
	Client    *s3.Client
}

// Shared Localstack container (started once per test run).
var sharedLocalstack *Localstack

// StartLocalstack returns the shared Localstack helper, starting the
// container on first use. An external endpoint can be supplied via
// LOCALSTACK_ENDPOINT.
func StartLocalstack(t *testing.T) *Localstack {
	t.Helper()

	if sharedLocalstack != nil {
		return sharedLocalstack
	}

	ctx := context.Background()

	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		ls := &Localstack{T: t, Endpoint: endpoint}
		ls.createClient()
		sharedLocalstack = ls
		return ls
	}

	req := testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3.0",
		ExposedPorts: []string{"4566/tcp"},
		Env: map[string]string{
			"SERVICES":              "s3",
			"DEFAULT_REGION":        LocalstackRegion,
			"EAGER_SERVICE_LOADING": "1",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4566/tcp"),
			wait.ForHTTP("/_localstack/health").
				WithPort("4566/tcp").
				WithStartupTimeout(60*time.Second),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get container port: %v", err)
	}

	ls := &Localstack{
		T:         t,
		Container: container,
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
	}
	ls.createClient()

	// No t.Cleanup here: the container is shared across tests and torn
	// down by TestMain (or by Ryuk when the process exits).
	sharedLocalstack = ls
	return ls
}

// TerminateSharedLocalstack tears the shared container down. Called from
// TestMain after the run.
func TerminateSharedLocalstack() {
	if sharedLocalstack != nil && sharedLocalstack.Container != nil {
		_ = sharedLocalstack.Container.Terminate(context.Background())
	}
	sharedLocalstack = nil
}

// createClient builds an S3 client with path-style URLs and the custom
// endpoint, which Localstack requires.
func (ls *Localstack) createClient() {
	ls.T.Helper()

	cfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion(LocalstackRegion),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			LocalstackAccessKey, LocalstackSecretKey, "",
		)),
	)
	if err != nil {
		ls.T.Fatalf("failed to load AWS config: %v", err)
	}

	ls.Client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &ls.Endpoint
		o.UsePathStyle = true
	})
}

// CreateBucket creates a bucket, emptying it first if a previous run left
// one behind.
func (ls *Localstack) CreateBucket(ctx context.Context, bucket string) error {
	ls.T.Helper()

	ls.cleanupBucket(ctx, bucket)
	if _, err := ls.Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// GetObject reads an object's full contents, for remote-side assertions.
func (ls *Localstack) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := ls.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// PutObject writes an object directly, bypassing the mount.
func (ls *Localstack) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := ls.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (ls *Localstack) cleanupBucket(ctx context.Context, bucket string) {
	listResp, err := ls.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		// Bucket doesn't exist, nothing to clean
		return
	}
	for _, obj := range listResp.Contents {
		_, _ = ls.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    obj.Key,
		})
	}
	_, _ = ls.Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucket),
	})
}
