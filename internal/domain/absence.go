package domain

import "time"

type AbsenceStatus string

const (
	AbsenceStatusPlanned  AbsenceStatus = "planned"
	AbsenceStatusApproved AbsenceStatus = "approved"
	AbsenceStatusRejected AbsenceStatus = "rejected"
)

// Absence 由请假管理子系统维护，本核心读取它做冲突检测，
// 只有审批操作会修改它的状态
type Absence struct {
	ID         int64         `json:"id"`
	EmployeeID int64         `json:"employeeID"`
	StartDate  time.Time     `json:"startDate"`
	EndDate    time.Time     `json:"endDate"`
	Reason     string        `json:"reason"`
	Status     AbsenceStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	Version    int32         `json:"-"`
}

// Blocks 返回该缺勤记录是否使员工在指定日期不可排班
// 已批准和待批准的缺勤都会阻止排班，被驳回的不会
func (a *Absence) Blocks(date time.Time) bool {
	if a.Status == AbsenceStatusRejected {
		return false
	}
	day := date.Truncate(24 * time.Hour)
	return !day.Before(a.StartDate.Truncate(24*time.Hour)) && !day.After(a.EndDate.Truncate(24*time.Hour))
}
