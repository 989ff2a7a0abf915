// Package conflict 实现排班冲突检测
// 检测器是纯函数，不访问数据库，冲突以数据的形式返回而不是错误
package conflict

import (
	"fmt"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

// Input 是一次检测所需的全部上下文
// Cells 应当是提交之后的完整格子集合，检测器在这个集合内部寻找互斥冲突
type Input struct {
	Scope      domain.Scope
	Cells      []*domain.AssignmentCell
	Employees  map[int64]*domain.Employee
	Slots      map[string]*domain.RoleSlot
	Absences   []*domain.Absence
	Exclusions []*domain.ExclusionRule
}

// Evaluate 按类别顺序检测单个格子：资格 -> 缺勤 -> 互斥排班
// 一旦某个类别出现冲突就停止检测后面的类别，但同一类别内的冲突会全部报告
func Evaluate(in *Input, proposed *domain.AssignmentCell) []domain.Violation {
	if !proposed.Assigned() {
		// 关闭的格子和没排人的格子永远不会产生冲突
		return nil
	}

	if violations := checkEligibility(in, proposed); len(violations) > 0 {
		return violations
	}
	if violations := checkAbsences(in, proposed); len(violations) > 0 {
		return violations
	}
	return checkDoubleBooking(in, proposed)
}

// EvaluateAll 检测集合中的每一个格子，聚合所有冲突
func EvaluateAll(in *Input) []domain.Violation {
	violations := make([]domain.Violation, 0)
	for _, cell := range in.Cells {
		violations = append(violations, Evaluate(in, cell)...)
	}
	return violations
}

func checkEligibility(in *Input, cell *domain.AssignmentCell) []domain.Violation {
	violations := make([]domain.Violation, 0)

	employee, exists := in.Employees[*cell.EmployeeID]
	if !exists || !employee.IsActive {
		violations = append(violations, domain.Violation{
			Kind:    domain.ViolationInactiveEmployee,
			CellKey: cell.Key,
			Reason:  fmt.Sprintf("员工 %d 不存在或已离职", *cell.EmployeeID),
		})
		return violations
	}

	slot, exists := in.Slots[cell.Key.Slot]
	if !exists {
		violations = append(violations, domain.Violation{
			Kind:    domain.ViolationRoleMismatch,
			CellKey: cell.Key,
			Reason:  fmt.Sprintf("岗位 %s 不存在", cell.Key.Slot),
		})
		return violations
	}

	if !slot.Accepts(employee.Role) {
		violations = append(violations, domain.Violation{
			Kind:    domain.ViolationRoleMismatch,
			CellKey: cell.Key,
			Reason:  fmt.Sprintf("员工 %s 的角色 %s 不满足岗位 %s 的要求", employee.FullName, employee.Role, slot.Name),
		})
	}

	return violations
}

func checkAbsences(in *Input, cell *domain.AssignmentCell) []domain.Violation {
	date, err := in.Scope.DateOf(cell.Key.Day)
	if err != nil {
		// day 的合法性在进入检测器之前就已经校验过了
		return nil
	}

	violations := make([]domain.Violation, 0)
	for _, absence := range in.Absences {
		if absence.EmployeeID != *cell.EmployeeID || !absence.Blocks(date) {
			continue
		}
		violations = append(violations, domain.Violation{
			Kind:    domain.ViolationAbsenceOverlap,
			CellKey: cell.Key,
			Reason: fmt.Sprintf("员工 %d 在 %s 有%s的缺勤记录 (%s)",
				*cell.EmployeeID, date.Format("2006-01-02"), absenceStatusLabel(absence.Status), absence.Reason),
		})
	}

	return violations
}

func checkDoubleBooking(in *Input, cell *domain.AssignmentCell) []domain.Violation {
	violations := make([]domain.Violation, 0)

	for _, other := range in.Cells {
		if other.Key == cell.Key || !other.Assigned() {
			continue
		}
		if *other.EmployeeID != *cell.EmployeeID || other.Key.Day != cell.Key.Day {
			continue
		}
		if !mutuallyExclusive(in.Exclusions, cell.Key, other.Key) {
			continue
		}
		violations = append(violations, domain.Violation{
			Kind:    domain.ViolationDoubleBooking,
			CellKey: cell.Key,
			Reason:  fmt.Sprintf("员工 %d 当天已被排入互斥的格子 %s", *cell.EmployeeID, other.Key),
		})
	}

	return violations
}

// mutuallyExclusive 判断两个格子所处的 (area, subArea) 是否互斥
// 同一个 (area, subArea) 自身天然互斥，其余互斥关系由配置的规则给出
func mutuallyExclusive(rules []*domain.ExclusionRule, a domain.CellKey, b domain.CellKey) bool {
	if a.Area == b.Area && a.SubArea == b.SubArea {
		return true
	}
	for _, rule := range rules {
		if rule.AreaA == a.Area && rule.SubAreaA == a.SubArea && rule.AreaB == b.Area && rule.SubAreaB == b.SubArea {
			return true
		}
		if rule.AreaA == b.Area && rule.SubAreaA == b.SubArea && rule.AreaB == a.Area && rule.SubAreaB == a.SubArea {
			return true
		}
	}
	return false
}

func absenceStatusLabel(status domain.AbsenceStatus) string {
	switch status {
	case domain.AbsenceStatusApproved:
		return "已批准"
	case domain.AbsenceStatusPlanned:
		return "待批准"
	default:
		return string(status)
	}
}
