// Package logging builds the per-run loggers both batch components write
// to: every line goes to the component log file and to stdout, timestamped.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// NewRunLogger returns a logger that tees to stdout and an append-only log
// file, plus a close func for the file handle. The log directory is
// created when missing.
func NewRunLogger(path string) (*log.Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags)
	return logger, f.Close, nil
}
