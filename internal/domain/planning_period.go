package domain

import (
	"slices"
	"time"
)

type PlanStatus string

const (
	PlanStatusDraft       PlanStatus = "draft"
	PlanStatusProvisional PlanStatus = "provisional"
	PlanStatusPublished   PlanStatus = "published"
)

// AllowedTransitions 定义了排班周期状态机的全部合法转移
// published 是终态，只有换班流程和归档操作可以改动已发布的计划
var AllowedTransitions = map[PlanStatus][]PlanStatus{
	PlanStatusDraft:       {PlanStatusProvisional},
	PlanStatusProvisional: {PlanStatusPublished, PlanStatusDraft},
	PlanStatusPublished:   {},
}

// CanTransition 返回从 from 到 to 的转移是否合法
func CanTransition(from PlanStatus, to PlanStatus) bool {
	return slices.Contains(AllowedTransitions[from], to)
}

// Editable 返回该状态下是否允许编辑排班格子
func (s PlanStatus) Editable() bool {
	return s == PlanStatusDraft || s == PlanStatusProvisional
}

type PlanningPeriod struct {
	ID        int64      `json:"id"`
	Scope     Scope      `json:"scope"`
	Status    PlanStatus `json:"status"`
	Archived  bool       `json:"archived"`
	CreatedAt time.Time  `json:"createdAt"`
	Version   int32      `json:"-"`
}
