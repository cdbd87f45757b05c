package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads blobs by location. Sample locations recorded in the mapping
// store are resolved against a configured root directory.
type Store struct {
	root string
}

// New creates a file store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Read returns the bytes at location. Locations may not escape the root.
func (s *Store) Read(ctx context.Context, location string) ([]byte, error) {
	cleaned := filepath.Clean(location)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return nil, fmt.Errorf("invalid sample location %q", location)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.root, cleaned))
	if err != nil {
		return nil, fmt.Errorf("failed to read sample %q: %w", location, err)
	}
	return data, nil
}
