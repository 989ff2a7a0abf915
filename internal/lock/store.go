package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNoRecord 表示指定的键上不存在锁记录
var ErrNoRecord = errors.New("锁记录不存在")

// Store 是锁记录的存储抽象
// 实现必须提供条件写入的原语，保证多个进程实例看到一致的锁状态
type Store interface {
	// SetIfAbsent 仅当键不存在时写入记录，返回是否写入成功
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get 读取记录，键不存在或记录已过期时返回 ErrNoRecord
	Get(ctx context.Context, key string) ([]byte, error)
	// CompareAndSwap 仅当当前记录等于 expected 时替换为 value 并重置 ttl，返回是否替换成功
	CompareAndSwap(ctx context.Context, key string, expected []byte, value []byte, ttl time.Duration) (bool, error)
	// CompareAndDelete 仅当当前记录等于 expected 时删除，返回是否删除成功
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
}
