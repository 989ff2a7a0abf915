package domain

import "time"

// PlanningLock 是某个排班周期上的排他编辑租约
// 任意时刻每个周期最多存在一把未过期的锁
type PlanningLock struct {
	Scope      Scope     `json:"scope"`
	SessionID  string    `json:"sessionID"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired 返回该锁在指定时刻是否已经过期
func (l *PlanningLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
