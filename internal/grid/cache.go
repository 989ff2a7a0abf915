package grid

import (
	"sync"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

// periodCache 是进程内的读穿缓存
// 任何对某个周期的成功变更都必须先让缓存失效，缓存绝不能比最近一次提交更旧
type periodCache struct {
	mu      sync.RWMutex
	entries map[string]*PeriodView
}

func newPeriodCache() *periodCache {
	return &periodCache{
		entries: make(map[string]*PeriodView),
	}
}

func (c *periodCache) get(scope domain.Scope) (*PeriodView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	view, exists := c.entries[scope.Key()]
	return view, exists
}

func (c *periodCache) set(scope domain.Scope, view *PeriodView) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[scope.Key()] = view
}

func (c *periodCache) invalidate(scope domain.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, scope.Key())
}
