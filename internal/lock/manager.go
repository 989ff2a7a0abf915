// Package lock 实现排班周期上的排他编辑租约
// 锁记录放在共享的快速存储中，通过条件写入保证多个进程实例之间的一致性
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

type Manager struct {
	store      Store
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

func NewManager(store Store, defaultTTL time.Duration, maxTTL time.Duration) *Manager {
	return &Manager{
		store:      store,
		defaultTTL: defaultTTL,
		maxTTL:     maxTTL,
		now:        time.Now,
	}
}

// SetClock 替换时间源，供测试模拟锁过期
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func lockKey(scope domain.Scope) string {
	return fmt.Sprintf("planning_lock:%s", scope.Key())
}

func (m *Manager) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return m.defaultTTL
	}
	if ttl > m.maxTTL {
		return m.maxTTL
	}
	return ttl
}

// Acquire 尝试获取某个排班周期的编辑锁
// 已过期的锁由存储层在下一次读取时惰性清理，这里不需要额外的后台清扫
func (m *Manager) Acquire(ctx context.Context, scope domain.Scope, sessionID string, ttl time.Duration) (*domain.PlanningLock, error) {
	ttl = m.clampTTL(ttl)

	// 锁可能恰好在两次操作之间过期，因此整体重试一次
	for attempt := 0; attempt < 2; attempt++ {
		record := &domain.PlanningLock{
			Scope:      scope,
			SessionID:  sessionID,
			Token:      uuid.NewString(),
			AcquiredAt: m.now(),
			ExpiresAt:  m.now().Add(ttl),
		}
		value, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}

		ok, err := m.store.SetIfAbsent(ctx, lockKey(scope), value, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return record, nil
		}

		current, raw, err := m.current(ctx, scope)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				continue
			}
			return nil, err
		}

		// 同一个会话重复获取视为续期
		if current.SessionID == sessionID {
			return m.renewRecord(ctx, scope, current, raw, ttl)
		}

		return nil, &domain.LockConflictError{
			HeldBy:    current.SessionID,
			ExpiresAt: current.ExpiresAt,
		}
	}

	return nil, &domain.LockConflictError{HeldBy: "", ExpiresAt: m.now()}
}

// Release 释放当前会话持有的锁，释放不属于自己的锁是 NotOwner 的空操作
func (m *Manager) Release(ctx context.Context, scope domain.Scope, sessionID string) error {
	current, raw, err := m.current(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return domain.ErrNotOwner
		}
		return err
	}
	if current.SessionID != sessionID {
		return domain.ErrNotOwner
	}

	deleted, err := m.store.CompareAndDelete(ctx, lockKey(scope), raw)
	if err != nil {
		return err
	}
	if !deleted {
		// 比较失败说明锁在这期间易主了
		return domain.ErrNotOwner
	}
	return nil
}

// Renew 从当前时刻重新延长锁的有效期
func (m *Manager) Renew(ctx context.Context, scope domain.Scope, sessionID string, ttl time.Duration) (*domain.PlanningLock, error) {
	current, raw, err := m.current(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return nil, domain.ErrNotOwner
		}
		return nil, err
	}
	if current.SessionID != sessionID {
		return nil, domain.ErrNotOwner
	}

	return m.renewRecord(ctx, scope, current, raw, m.clampTTL(ttl))
}

// Holds 检查调用方会话是否持有未过期的锁
// 没有任何锁时返回 ErrLockRequired，锁被别的会话持有时返回 ErrNotOwner
func (m *Manager) Holds(ctx context.Context, scope domain.Scope, sessionID string) error {
	current, _, err := m.current(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			return domain.ErrLockRequired
		}
		return err
	}
	if current.SessionID != sessionID {
		return domain.ErrNotOwner
	}
	return nil
}

func (m *Manager) current(ctx context.Context, scope domain.Scope) (*domain.PlanningLock, []byte, error) {
	raw, err := m.store.Get(ctx, lockKey(scope))
	if err != nil {
		return nil, nil, err
	}

	record := &domain.PlanningLock{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, nil, err
	}

	// 存储层不保证过期立即不可见（内存实现会，redis 的 TTL 也会），这里再兜底检查一次
	if record.Expired(m.now()) {
		return nil, nil, ErrNoRecord
	}

	return record, raw, nil
}

func (m *Manager) renewRecord(ctx context.Context, scope domain.Scope, current *domain.PlanningLock, raw []byte, ttl time.Duration) (*domain.PlanningLock, error) {
	renewed := &domain.PlanningLock{
		Scope:      scope,
		SessionID:  current.SessionID,
		Token:      current.Token,
		AcquiredAt: current.AcquiredAt,
		ExpiresAt:  m.now().Add(ttl),
	}
	value, err := json.Marshal(renewed)
	if err != nil {
		return nil, err
	}

	swapped, err := m.store.CompareAndSwap(ctx, lockKey(scope), raw, value, ttl)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, domain.ErrNotOwner
	}
	return renewed, nil
}
