package sffs

import (
	"os"
	"testing"

	"github.com/mejjete/sffs/backend"
	"github.com/mejjete/sffs/backend/file"
)

// mustFileBackend wraps an already-open file as a backend.Storage.
func mustFileBackend(f *os.File) backend.Storage {
	return file.New(f, false)
}

// testCreateEmptyFile creates a temp file of the given size and returns it
// opened for read-write, leaving removal to the test's cleanup.
func testCreateEmptyFile(t *testing.T, size int64) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "sffs-*.img")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("could not truncate temp file to %d bytes: %v", size, err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// testFormat formats a fresh volume of size bytes with params p (nil for
// defaults) and returns the mounted Context.
func testFormat(t *testing.T, size int64, p *Params) *Context {
	t.Helper()
	f := testCreateEmptyFile(t, size)
	c, err := Format(file.New(f, false), size, p)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	return c
}

const testVolumeSize = 16 * 1024 * 1024
