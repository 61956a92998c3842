package objectclient

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sairevanth-zz/signalsloop/internal/core"
)

// MemoryStore keeps objects in process. Used when no bucket is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	BaseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}, BaseURL: baseURL}
}

func (m *MemoryStore) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	m.objects[bucket+"/"+key] = b
	m.mu.Unlock()
	return fmt.Sprintf("%s/%s/%s", m.BaseURL, bucket, key), nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	return b, nil
}

var _ core.ObjectClient = (*MemoryStore)(nil)
