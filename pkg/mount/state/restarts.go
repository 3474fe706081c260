package state

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const fileRestarts = "restarts"

// WriteRestarts records the engine restart count. The supervisor owns
// the counter; the owner only reads it for status reporting.
func (d *Dir) WriteRestarts(n int) error {
	return os.WriteFile(filepath.Join(d.path, fileRestarts), []byte(strconv.Itoa(n)+"\n"), 0o600)
}

// Restarts returns the recorded engine restart count, zero when none
// was recorded yet.
func (d *Dir) Restarts() int {
	raw, err := os.ReadFile(filepath.Join(d.path, fileRestarts))
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return n
}
