package blobstore

import (
	"context"
	"strings"
	"sync"

	"github.com/lynqchat/golang_services/internal/message_service/domain"
)

// MemoryBaseURL prefixes the URLs handed out by MemoryStore.
const MemoryBaseURL = "memory://blobs/"

type memoryBlob struct {
	contentType string
	data        []byte
}

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = memoryBlob{contentType: contentType, data: append([]byte(nil), data...)}
	return MemoryBaseURL + key, nil
}

func (s *MemoryStore) Delete(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := strings.TrimPrefix(url, MemoryBaseURL)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return domain.ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, url string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[strings.TrimPrefix(url, MemoryBaseURL)]
	return ok, nil
}

// Get returns the stored bytes and content type of url.
func (s *MemoryStore) Get(url string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[strings.TrimPrefix(url, MemoryBaseURL)]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), b.data...), b.contentType, true
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
