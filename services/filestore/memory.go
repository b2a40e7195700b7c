package filestore

import (
	"context"
	"path"
	"sync"

	"github.com/trezcool/schoolstats/core"
)

// MemoryStorage keeps the uploaded files in memory.
type MemoryStorage struct {
	baseURL string

	mu    sync.RWMutex
	files map[string][]byte
}

var _ core.FileStorage = (*MemoryStorage)(nil) // interface compliance check

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{baseURL: baseURL, files: make(map[string][]byte)}
}

func (s *MemoryStorage) Upload(_ context.Context, att *core.Attachment, name, dir string) (core.FileUploaded, error) {
	dir, err := cleanPath(dir)
	if err != nil {
		return core.FileUploaded{}, err
	}
	fileName := name + att.Ext()
	rel := path.Join(dir, fileName)

	s.mu.Lock()
	s.files[rel] = append([]byte(nil), att.Content...)
	s.mu.Unlock()
	return core.FileUploaded{FileName: fileName, URL: s.baseURL + "/" + rel + "?v=" + Version(att.Content), Path: rel}, nil
}

// File returns the content stored at rel.
func (s *MemoryStorage) File(rel string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.files[rel]
	return b, ok
}
