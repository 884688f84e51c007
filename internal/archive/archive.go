// Package archive persists final run reports as blobs. Implementations cover
// in-memory (tests, default), local filesystem, and Google Cloud Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Store writes immutable report blobs.
type Store interface {
	// PutObject uploads data under the given path and returns a URI for it.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// MemoryStore keeps blobs in a map. Used by tests and the "memory" provider.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// PutObject stores the blob and returns a mem:// URI.
func (s *MemoryStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	s.mu.Lock()
	s.objects[path] = buf.Bytes()
	s.mu.Unlock()
	return "mem://" + path, nil
}

// Object returns a stored blob and whether it exists.
func (s *MemoryStore) Object(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
