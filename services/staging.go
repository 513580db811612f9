package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdf-rag-platform/internal/logger"
)

const stagingPattern = "ingest-*.pdf"

// StagingArea holds uploaded PDFs on disk only for the duration of an
// ingestion.
type StagingArea struct {
	dir string
}

func NewStagingArea(dir string) (*StagingArea, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &StagingArea{dir: dir}, nil
}

// Stage writes data to a new file and returns its path and a release func
// that removes it. release is safe to call more than once.
func (s *StagingArea) Stage(data []byte) (string, func(), error) {
	f, err := os.CreateTemp(s.dir, stagingPattern)
	if err != nil {
		return "", nil, fmt.Errorf("create staging file: %w", err)
	}
	path := f.Name()
	release := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove staging file", "path", path, "error", err)
		}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close staging file: %w", err)
	}
	return path, release, nil
}

// Sweep removes staged files older than maxAge and returns how many it removed.
func (s *StagingArea) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "ingest-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to sweep staging file", "name", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *StagingArea) Dir() string {
	return s.dir
}
