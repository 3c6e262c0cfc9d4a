package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRoundTrip(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	payload := []byte("%PDF-1.4 fake invoice bytes")

	f, err := store.Save(12, "invoice.pdf", payload)
	require.NoError(t, err)

	assert.Equal(t, int64(len(payload)), f.Size)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}\.pdf$`), f.Filename)
	assert.Equal(t, filepath.Join("tickets", "12", f.Filename), mustRel(t, store.baseDir, f.Path))

	got, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSaveDistinctNames(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	a, err := store.Save(1, "a.txt", []byte("one"))
	require.NoError(t, err)
	b, err := store.Save(1, "a.txt", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Filename, b.Filename)
}

func TestSaveStripsHostileExtension(t *testing.T) {
	store := NewDiskStore(t.TempDir())
	f, err := store.Save(3, `evil.\..\x`, []byte("x"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), f.Filename)
}

func mustRel(t *testing.T, base, target string) string {
	t.Helper()
	rel, err := filepath.Rel(base, target)
	require.NoError(t, err)
	return rel
}
