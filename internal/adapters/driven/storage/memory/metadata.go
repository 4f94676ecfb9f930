package memory

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/custodia-labs/fieldsync/internal/core/domain"
	"github.com/custodia-labs/fieldsync/internal/core/ports/driven"
)

// Ensure MetadataStore and FileStore implement the interfaces.
var (
	_ driven.MetadataStore = (*MetadataStore)(nil)
	_ driven.FileStore     = (*FileStore)(nil)
)

// MetadataStore is an in-memory implementation of driven.MetadataStore.
type MetadataStore struct {
	mu   sync.RWMutex
	meta map[int64]domain.FileMeta
}

// NewMetadataStore creates an empty metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		meta: make(map[int64]domain.FileMeta),
	}
}

// SetFileMeta stores the cross-reference for a file.
func (s *MetadataStore) SetFileMeta(_ context.Context, fileID int64, meta domain.FileMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[fileID] = meta
	return nil
}

// GetFileMeta returns the cross-reference for a file.
func (s *MetadataStore) GetFileMeta(_ context.Context, fileID int64) (*domain.FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[fileID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &meta, nil
}

// DeleteFileMeta removes the cross-reference for a file.
func (s *MetadataStore) DeleteFileMeta(_ context.Context, fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meta, fileID)
	return nil
}

// FileStore is an in-memory implementation of driven.FileStore.
// Imported binaries land under imported/.
type FileStore struct {
	mu      sync.RWMutex
	nextID  int64
	paths   map[int64]string
	imports []string
}

// NewFileStore creates an empty file store. File IDs start at 1.
func NewFileStore() *FileStore {
	return &FileStore{
		nextID: 1,
		paths:  make(map[int64]string),
	}
}

// Add registers a file at localPath and returns its ID.
func (s *FileStore) Add(localPath string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(localPath)
}

// Move changes a file's path, as replacing its binary does.
func (s *FileStore) Move(fileID int64, localPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[fileID] = localPath
}

// Imports returns the remote paths imported so far.
func (s *FileStore) Imports() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.imports))
	copy(out, s.imports)
	return out
}

// Path returns the file's current path.
func (s *FileStore) Path(_ context.Context, fileID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paths[fileID]
	if !ok {
		return "", fmt.Errorf("file %d: %w", fileID, domain.ErrNotFound)
	}
	return p, nil
}

// Import registers a copy of a CRM-held binary.
func (s *FileStore) Import(_ context.Context, remotePath string) (int64, string, error) {
	if remotePath == "" {
		return 0, "", fmt.Errorf("%w: empty remote path", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = append(s.imports, remotePath)
	local := path.Join("imported", fmt.Sprintf("%d-%s", s.nextID, path.Base(remotePath)))
	id := s.add(local)
	return id, local, nil
}

func (s *FileStore) add(localPath string) int64 {
	id := s.nextID
	s.nextID++
	s.paths[id] = localPath
	return id
}
