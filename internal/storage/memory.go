package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore 是进程内的对象存储实现，语义与 Client 一致，供测试与本地调试使用。
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	now     func() time.Time

	// 以下钩子用于注入故障。
	PutErr    func(key string) error
	GetErr    func(key string) error
	DeleteErr func(key string) error
}

type memoryObject struct {
	body         []byte
	contentType  string
	metadata     map[string]string
	lastModified time.Time
}

// NewMemoryStore 返回空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// SetClock 替换时间来源。
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) PutObject(_ context.Context, objectKey string, body []byte, contentType string, metadata map[string]string) error {
	if m.PutErr != nil {
		if err := m.PutErr(objectKey); err != nil {
			return fmt.Errorf("put object %q: %w", objectKey, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(body))
	copy(copied, body)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	m.objects[objectKey] = memoryObject{
		body:         copied,
		contentType:  contentType,
		metadata:     meta,
		lastModified: m.now(),
	}
	return nil
}

func (m *MemoryStore) GetObject(_ context.Context, objectKey string) ([]byte, error) {
	if m.GetErr != nil {
		if err := m.GetErr(objectKey); err != nil {
			return nil, fmt.Errorf("get object %q: %w", objectKey, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("get object %q: %w", objectKey, ErrObjectNotFound)
	}
	copied := make([]byte, len(obj.body))
	copy(copied, obj.body)
	return copied, nil
}

func (m *MemoryStore) DeleteObject(_ context.Context, objectKey string) error {
	if m.DeleteErr != nil {
		if err := m.DeleteErr(objectKey); err != nil {
			return fmt.Errorf("remove object %q: %w", objectKey, err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, objectKey)
	return nil
}

func (m *MemoryStore) ListObjects(_ context.Context, prefix string, limit int) ([]ObjectMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]ObjectMeta, 0)
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		result = append(result, ObjectMeta{Key: key, Size: int64(len(obj.body)), LastModified: obj.lastModified})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	return deletePrefix(ctx, m, prefix)
}

// Metadata 返回对象的用户元数据，仅用于断言。
func (m *MemoryStore) Metadata(objectKey string) (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objectKey]
	if !ok {
		return nil, false
	}
	return obj.metadata, true
}

// Len 返回对象总数。
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
