// Package storage persists inbound attachment payloads on disk under
// uploads/tickets/<ticket-id>/ with randomized filenames; the original
// filename only survives in the attachment row.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// StoredFile describes where an attachment payload landed.
type StoredFile struct {
	Filename string // randomized on-disk name
	Path     string
	Size     int64
}

// DiskStore writes attachment files beneath a base directory.
type DiskStore struct {
	baseDir string
}

// NewDiskStore returns a store rooted at baseDir.
func NewDiskStore(baseDir string) *DiskStore {
	return &DiskStore{baseDir: baseDir}
}

// Save writes data for the given ticket under a fresh randomized name that
// keeps the original extension.
func (s *DiskStore) Save(ticketID int64, originalName string, data []byte) (StoredFile, error) {
	dir := filepath.Join(s.baseDir, "tickets", strconv.FormatInt(ticketID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("create attachment dir: %w", err)
	}
	name := randomName(originalName)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return StoredFile{}, fmt.Errorf("write attachment %s: %w", originalName, err)
	}
	return StoredFile{Filename: name, Path: path, Size: int64(len(data))}, nil
}

func randomName(originalName string) string {
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	ext := filepath.Ext(originalName)
	// Drop path separators an attacker may have smuggled into the name.
	if strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return name + ext
}
