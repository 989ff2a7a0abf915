package domain

import "fmt"

// CellKey 是排班格子的复合键
// Area 对应医疗组/服务线，SubArea 对应病区/房间，Slot 对应岗位，
// Day 在月计划中表示当月第几天，在周计划中表示 ISO 星期几
type CellKey struct {
	Area    string `json:"area"`
	SubArea string `json:"subArea"`
	Slot    string `json:"slot"`
	Day     int32  `json:"day"`
}

func (k CellKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", k.Area, k.SubArea, k.Slot, k.Day)
}

// AssignmentCell 是排班表中的一个格子
// IsClosed 为 true 表示该岗位当天有意不排人，此时 EmployeeID 必须为空
type AssignmentCell struct {
	Key        CellKey `json:"key"`
	EmployeeID *int64  `json:"employeeID"`
	Note       string  `json:"note"`
	IsClosed   bool    `json:"isClosed"`
}

// Assigned 返回该格子是否排了人
func (c *AssignmentCell) Assigned() bool {
	return !c.IsClosed && c.EmployeeID != nil
}

// CellChange 是换班对单个格子的改动
// PrevEmployeeID 记录冲突检测快照里看到的值班人，提交时用它做并发守卫：
// 格子在快照之后被别人改过就放弃整个换班
type CellChange struct {
	Cell           *AssignmentCell
	PrevEmployeeID *int64
}

// CellDiff 汇总一次提交前后格子的变化，随 PeriodMutated 事件发出
type CellDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// Empty 返回该次提交是否没有任何变化
func (d *CellDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffCells 比较新旧两组格子，产生变化摘要
func DiffCells(before []*AssignmentCell, after []*AssignmentCell) CellDiff {
	beforeMap := make(map[CellKey]*AssignmentCell, len(before))
	for _, cell := range before {
		beforeMap[cell.Key] = cell
	}

	diff := CellDiff{
		Added:   make([]string, 0),
		Removed: make([]string, 0),
		Changed: make([]string, 0),
	}

	afterKeys := make(map[CellKey]struct{}, len(after))
	for _, cell := range after {
		afterKeys[cell.Key] = struct{}{}

		old, exists := beforeMap[cell.Key]
		if !exists {
			diff.Added = append(diff.Added, cell.Key.String())
			continue
		}
		if !sameCellValue(old, cell) {
			diff.Changed = append(diff.Changed, cell.Key.String())
		}
	}

	for _, cell := range before {
		if _, exists := afterKeys[cell.Key]; !exists {
			diff.Removed = append(diff.Removed, cell.Key.String())
		}
	}

	return diff
}

func sameCellValue(a *AssignmentCell, b *AssignmentCell) bool {
	if a.IsClosed != b.IsClosed || a.Note != b.Note {
		return false
	}
	if (a.EmployeeID == nil) != (b.EmployeeID == nil) {
		return false
	}
	return a.EmployeeID == nil || *a.EmployeeID == *b.EmployeeID
}
