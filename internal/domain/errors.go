package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// 这些错误都是调用方需要分支处理的值，核心内部不会把它们当作异常抛出
var (
	ErrNotFound        = errors.New("记录不存在")
	ErrLockRequired    = errors.New("需要先获取该排班周期的编辑锁")
	ErrNotOwner        = errors.New("当前会话不持有该排班周期的编辑锁")
	ErrAlreadyResolved = errors.New("该换班申请已被处理")
	ErrPeriodArchived  = errors.New("该排班周期已归档")
	ErrCellChanged     = errors.New("排班表已被他人修改，请刷新后重试")
	ErrNotRequester    = errors.New("只有申请人可以取消换班申请")
)

// LockConflictError 表示锁已被其他会话持有
type LockConflictError struct {
	HeldBy    string    `json:"heldBy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("编辑锁已被会话 %s 持有，%s 过期", e.HeldBy, e.ExpiresAt.Format(time.RFC3339))
}

// InvalidTransitionError 表示非法的计划状态转移
type InvalidTransitionError struct {
	Current   PlanStatus   `json:"current"`
	Requested PlanStatus   `json:"requested"`
	Allowed   []PlanStatus `json:"allowed"`
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("不允许从 %s 转移到 %s，允许的目标状态: [%s]", e.Current, e.Requested, strings.Join(allowed, ", "))
}

// Violation 是冲突检测器给出的一条结构化的冲突原因
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	CellKey CellKey       `json:"cellKey"`
	Reason  string        `json:"reason"`
}

type ViolationKind string

const (
	ViolationRoleMismatch     ViolationKind = "role_mismatch"
	ViolationInactiveEmployee ViolationKind = "inactive_employee"
	ViolationAbsenceOverlap   ViolationKind = "absence_overlap"
	ViolationDoubleBooking    ViolationKind = "double_booking"
)

// ValidationError 聚合一次提交中的所有冲突，整体返回给调用方
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("排班冲突检测不通过，共 %d 条冲突", len(e.Violations))
}
