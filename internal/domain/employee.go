package domain

import (
	"slices"
	"time"
)

type Role string

const (
	RoleChiefPhysician     Role = "主任医师"
	RoleAssociateChief     Role = "副主任医师"
	RoleAttendingPhysician Role = "主治医师"
	RoleResidentPhysician  Role = "住院医师"
	RoleHeadNurse          Role = "护士长"
	RoleNurse              Role = "护士"
)

type Employee struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
	Department string    `json:"department"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	Version    int32     `json:"-"`
}

// ServiceLine 对应排班表中的 Area 维度，由参考数据子系统维护，本核心只读
type ServiceLine struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room 对应排班表中的 SubArea 维度
type Room struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ServiceLineID int64     `json:"serviceLineID"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RoleSlot 对应排班表中的岗位维度，RoleFilter 为空表示任意角色都可以排入
type RoleSlot struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RoleFilter []Role `json:"roleFilter"`
}

// Accepts 返回该岗位是否允许排入指定角色
func (s *RoleSlot) Accepts(role Role) bool {
	if len(s.RoleFilter) == 0 {
		return true
	}
	return slices.Contains(s.RoleFilter, role)
}

// ExclusionRule 标记两个 (area, subArea) 在同一天互斥，
// 同一个员工不能同时出现在互斥的两个格子里
type ExclusionRule struct {
	ID       int64  `json:"id"`
	AreaA    string `json:"areaA"`
	SubAreaA string `json:"subAreaA"`
	AreaB    string `json:"areaB"`
	SubAreaB string `json:"subAreaB"`
}
