package lock

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// MemoryStore 是进程内的锁存储，语义和 RedisStore 一致，供测试使用
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

// SetClock 替换时间源，供测试模拟锁过期
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) live(key string) ([]byte, bool) {
	record, exists := s.records[key]
	if !exists {
		return nil, false
	}
	if !s.now().Before(record.expiresAt) {
		delete(s.records, key)
		return nil, false
	}
	return record.value, true
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.live(key); exists {
		return false, nil
	}
	s.records[key] = memoryRecord{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.live(key)
	if !exists {
		return nil, ErrNoRecord
	}
	return value, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key string, expected []byte, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.live(key)
	if !exists || !bytes.Equal(current, expected) {
		return false, nil
	}
	s.records[key] = memoryRecord{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.live(key)
	if !exists || !bytes.Equal(current, expected) {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}
