//go:build e2e

package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tether/pkg/mount"
	"github.com/marmos91/tether/pkg/remote"
	"github.com/marmos91/tether/test/e2e/framework"
)

// TestS3WriteThrough mounts a Localstack bucket and asserts a file
// written through the mount comes back byte-identical via GetObject.
func TestS3WriteThrough(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ls := framework.StartLocalstack(t)

	ctx := context.Background()
	const bucket = "tether-e2e"
	require.NoError(t, ls.CreateBucket(ctx, bucket))

	local := t.TempDir()
	cfg := mount.Config{
		Local: local,
		Remote: &remote.S3{
			Provider:        "Other",
			Region:          framework.LocalstackRegion,
			Endpoint:        ls.Endpoint,
			AccessKeyID:     framework.LocalstackAccessKey,
			SecretAccessKey: framework.LocalstackSecretKey,
		},
		RemotePath:      bucket,
		RefreshInterval: testInterval,
		Timeout:         testTimeout,
	}
	session := newSession(t, cfg)

	require.NoError(t, session.Mount(ctx))
	defer func() { _ = session.Unmount(ctx) }()

	payload := framework.GenerateRandomData(t, 128*1024)
	framework.WriteFile(t, filepath.Join(local, "object.bin"), payload)
	require.NoError(t, session.Refresh(ctx))

	var got []byte
	require.True(t, framework.WaitFor(2*testTimeout, 500*time.Millisecond, func() bool {
		data, err := ls.GetObject(ctx, bucket, "object.bin")
		if err != nil {
			return false
		}
		got = data
		return true
	}), "object never appeared in the bucket")
	assert.Equal(t, payload, got)
}

// TestS3ReadRemoteObject puts an object directly into the bucket and
// reads it back through the mount.
func TestS3ReadRemoteObject(t *testing.T) {
	framework.SkipIfShort(t, "starts containers")
	ls := framework.StartLocalstack(t)

	ctx := context.Background()
	const bucket = "tether-e2e-read"
	require.NoError(t, ls.CreateBucket(ctx, bucket))

	payload := framework.GenerateRandomData(t, 64*1024)
	require.NoError(t, ls.PutObject(ctx, bucket, "seeded.bin", payload))

	local := t.TempDir()
	cfg := mount.Config{
		Local: local,
		Remote: &remote.S3{
			Provider:        "Other",
			Region:          framework.LocalstackRegion,
			Endpoint:        ls.Endpoint,
			AccessKeyID:     framework.LocalstackAccessKey,
			SecretAccessKey: framework.LocalstackSecretKey,
		},
		RemotePath:      bucket,
		RefreshInterval: testInterval,
		Timeout:         testTimeout,
	}
	session := newSession(t, cfg)

	require.NoError(t, session.Mount(ctx))
	defer func() { _ = session.Unmount(ctx) }()

	assert.Equal(t, payload, framework.ReadFile(t, filepath.Join(local, "seeded.bin")))
}
