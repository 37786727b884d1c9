package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"exforge/internal/common/storage"
)

// MemoryStorage is an in-memory storage.ObjectStorage.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	Removed []string
}

var _ storage.ObjectStorage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Put stores data under bucket/key.
func (s *MemoryStorage) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = append([]byte(nil), data...)
}

// Has reports whether bucket/key exists.
func (s *MemoryStorage) Has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectID(bucket, key)]
	return ok
}

func (s *MemoryStorage) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectID(bucket, objectKey)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, objectKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.Put(bucket, objectKey, data)
	return nil
}

func (s *MemoryStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectID(bucket, objectKey)]
	if !ok {
		return storage.ObjectStat{}, fmt.Errorf("object %s/%s not found", bucket, objectKey)
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (s *MemoryStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan storage.ObjectInfo {
	s.mu.Lock()
	var keys []string
	for id := range s.objects {
		if key, ok := strings.CutPrefix(id, bucket+"/"); ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.Unlock()
	sort.Strings(keys)

	ch := make(chan storage.ObjectInfo, len(keys))
	for _, key := range keys {
		ch <- storage.ObjectInfo{Key: key}
	}
	close(ch)
	return ch
}

func (s *MemoryStorage) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.objects, objectID(bucket, key))
		s.Removed = append(s.Removed, key)
	}
	return nil
}
