//go:build e2e

package framework

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

// FindFreePort asks the kernel for an unused TCP port on localhost.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate port: %w", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// WaitFor polls cond until it returns true or the deadline passes.
func WaitFor(timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(interval)
	}
	return cond()
}

// SkipIfShort skips the test if running with -short flag.
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping in short mode: %s", reason)
	}
}

// GenerateRandomData generates random data of the specified size.
func GenerateRandomData(t *testing.T, size int64) []byte {
	t.Helper()

	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("Failed to generate random data: %v", err)
	}
	return data
}

// WriteRandomFile creates a file with random content and returns its checksum.
// The file is synced after writing so the data reaches the mount engine,
// which matters for async remotes like S3.
func WriteRandomFile(t *testing.T, path string, size int64) string {
	t.Helper()

	data := GenerateRandomData(t, size)
	WriteFile(t, path, data)

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// VerifyFileChecksum verifies that a file has the expected checksum.
func VerifyFileChecksum(t *testing.T, path string, expectedChecksum string) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}

	actualChecksum := hex.EncodeToString(h.Sum(nil))
	if actualChecksum != expectedChecksum {
		t.Errorf("Checksum mismatch: expected %s, got %s", expectedChecksum, actualChecksum)
	}
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile reads and returns the contents of a file.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return data
}

// WriteFile writes data to a file with explicit sync so the write reaches
// the engine before the test asserts on remote-side state.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file %s: %v", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		t.Fatalf("Failed to write file %s: %v", path, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		t.Fatalf("Failed to sync file %s: %v", path, err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close file %s: %v", path, err)
	}
}

// ListDir returns the names of files in a directory.
func ListDir(t *testing.T, path string) []string {
	t.Helper()

	entries, err := os.ReadDir(path)
	if err != nil {
		t.Fatalf("Failed to read directory %s: %v", path, err)
	}

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names
}
