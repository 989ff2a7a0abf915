package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

var testScope = domain.Scope{Year: 2025, Month: 6}

func newTestManager() (*Manager, *MemoryStore, *time.Time) {
	store := NewMemoryStore()
	manager := NewManager(store, 5*time.Minute, time.Hour)

	now := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store.SetClock(clock)
	manager.SetClock(clock)

	return manager, store, &now
}

func TestManager_AcquireIsExclusive(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	acquired, err := manager.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)
	require.Equal(t, "session-a", acquired.SessionID)

	_, err = manager.Acquire(ctx, testScope, "session-b", 0)
	conflictErr := &domain.LockConflictError{}
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "session-a", conflictErr.HeldBy)
}

func TestManager_DifferentScopesDoNotConflict(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	_, err := manager.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	other := domain.Scope{Year: 2025, Month: 7}
	_, err = manager.Acquire(ctx, other, "session-b", 0)
	require.NoError(t, err)

	withDepartment := domain.Scope{Year: 2025, Month: 6, Department: "心内科"}
	_, err = manager.Acquire(ctx, withDepartment, "session-c", 0)
	require.NoError(t, err)
}

func TestManager_ReacquireBySameSessionRenews(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	first, err := manager.Acquire(ctx, testScope, "session-a", time.Minute)
	require.NoError(t, err)

	second, err := manager.Acquire(ctx, testScope, "session-a", 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, first.Token, second.Token)
	require.True(t, second.ExpiresAt.After(first.ExpiresAt))
}

func TestManager_ExpiryAllowsReacquisition(t *testing.T) {
	manager, _, now := newTestManager()
	ctx := context.Background()

	_, err := manager.Acquire(ctx, testScope, "session-a", time.Minute)
	require.NoError(t, err)

	*now = now.Add(2 * time.Minute)

	acquired, err := manager.Acquire(ctx, testScope, "session-b", 0)
	require.NoError(t, err)
	require.Equal(t, "session-b", acquired.SessionID)

	// 原会话的锁已经易主
	require.ErrorIs(t, manager.Holds(ctx, testScope, "session-a"), domain.ErrNotOwner)
}

func TestManager_ReleaseRequiresOwnership(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	_, err := manager.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	require.ErrorIs(t, manager.Release(ctx, testScope, "session-b"), domain.ErrNotOwner)
	require.NoError(t, manager.Release(ctx, testScope, "session-a"))

	// 释放后没有锁可释放
	require.ErrorIs(t, manager.Release(ctx, testScope, "session-a"), domain.ErrNotOwner)
}

func TestManager_RenewRequiresOwnership(t *testing.T) {
	manager, _, now := newTestManager()
	ctx := context.Background()

	first, err := manager.Acquire(ctx, testScope, "session-a", time.Minute)
	require.NoError(t, err)

	_, err = manager.Renew(ctx, testScope, "session-b", time.Minute)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	renewed, err := manager.Renew(ctx, testScope, "session-a", 10*time.Minute)
	require.NoError(t, err)
	require.True(t, renewed.ExpiresAt.After(first.ExpiresAt))

	// 过期之后续期失败
	*now = now.Add(time.Hour)
	_, err = manager.Renew(ctx, testScope, "session-a", time.Minute)
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestManager_Holds(t *testing.T) {
	manager, _, _ := newTestManager()
	ctx := context.Background()

	require.ErrorIs(t, manager.Holds(ctx, testScope, "session-a"), domain.ErrLockRequired)

	_, err := manager.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	require.NoError(t, manager.Holds(ctx, testScope, "session-a"))
	require.ErrorIs(t, manager.Holds(ctx, testScope, "session-b"), domain.ErrNotOwner)
}

func TestManager_TTLClamp(t *testing.T) {
	manager, _, now := newTestManager()
	ctx := context.Background()

	// 0 使用默认值
	acquired, err := manager.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)
	require.Equal(t, now.Add(5*time.Minute), acquired.ExpiresAt)

	// 超过上限时被截断
	renewed, err := manager.Renew(ctx, testScope, "session-a", 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Hour), renewed.ExpiresAt)
}
