// Package swap 实现换班申请的工作流
// 接受换班是唯一允许改动已发布计划的路径，改动前必须重新通过冲突检测
package swap

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/conflict"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/event"
)

// Repository 是换班工作流需要的持久化操作
type Repository interface {
	GetPeriodByScope(scope domain.Scope) (*domain.PlanningPeriod, error)
	GetCellsByPeriodID(periodID int64) ([]*domain.AssignmentCell, error)
	CreateSwapRequest(req *domain.ShiftSwapRequest) error
	GetSwapRequestByID(id int64) (*domain.ShiftSwapRequest, error)
	GetSwapRequestsByEmployeeID(employeeID int64) ([]*domain.ShiftSwapRequest, error)
	ResolveSwapAccept(req *domain.ShiftSwapRequest, approverID int64, period *domain.PlanningPeriod, changes []*domain.CellChange) error
	ResolveSwapStatus(req *domain.ShiftSwapRequest, status domain.SwapStatus, approverID *int64, notes string) error
	GetAllEmployees() ([]*domain.Employee, error)
	GetAllRoleSlots() ([]*domain.RoleSlot, error)
	GetAllExclusionRules() ([]*domain.ExclusionRule, error)
	GetAbsencesOverlapping(start time.Time, end time.Time) ([]*domain.Absence, error)
}

// Invalidator 在换班提交后使排班表缓存失效
type Invalidator interface {
	InvalidateScope(scope domain.Scope)
}

type Service struct {
	repo   Repository
	grid   Invalidator
	events event.Publisher
}

func NewService(repo Repository, grid Invalidator, events event.Publisher) *Service {
	return &Service{
		repo:   repo,
		grid:   grid,
		events: events,
	}
}

// Result 是一次接受换班的结果：终态的申请和被改动的格子
type Result struct {
	Request *domain.ShiftSwapRequest `json:"request"`
	Cells   []*domain.AssignmentCell `json:"cells"`
}

// Create 发起一个换班申请
// 源格子必须存在且由申请人值班；双边换班时目标格子必须由目标员工值班
func (s *Service) Create(requesterID int64, scope domain.Scope, sourceKey domain.CellKey, targetKey *domain.CellKey, targetEmployeeID int64, notes string) (*domain.ShiftSwapRequest, error) {
	period, cells, err := s.periodCells(scope)
	if err != nil {
		return nil, err
	}
	if period.Archived {
		return nil, domain.ErrPeriodArchived
	}

	source := findCell(cells, sourceKey)
	if source == nil || !source.Assigned() {
		return nil, domain.ErrNotFound
	}
	if *source.EmployeeID != requesterID {
		return nil, fmt.Errorf("只能为自己的班次发起换班申请")
	}

	if targetKey != nil {
		target := findCell(cells, *targetKey)
		if target == nil || !target.Assigned() {
			return nil, domain.ErrNotFound
		}
		if *target.EmployeeID != targetEmployeeID {
			return nil, fmt.Errorf("目标格子的值班人和目标员工不一致")
		}
	}

	req := &domain.ShiftSwapRequest{
		Scope:                scope,
		SourceKey:            sourceKey,
		TargetKey:            targetKey,
		RequestingEmployeeID: requesterID,
		TargetEmployeeID:     targetEmployeeID,
		Status:               domain.SwapStatusPending,
		Notes:                notes,
	}
	if err := s.repo.CreateSwapRequest(req); err != nil {
		return nil, err
	}

	return req, nil
}

func (s *Service) GetByID(id int64) (*domain.ShiftSwapRequest, error) {
	req, err := s.repo.GetSwapRequestByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *Service) ListByEmployee(employeeID int64) ([]*domain.ShiftSwapRequest, error) {
	return s.repo.GetSwapRequestsByEmployeeID(employeeID)
}

// Accept 接受一个换班申请，notes 为审批人的备注，只随事件通知双方
// 重新检测不通过时申请保持 pending，冲突列表返回给调用方，格子不被改动；
// 并发的第二次接受由带 pending 条件的事务拦下，返回 AlreadyResolved。
// 检测用的是读出来的快照，提交事务以快照的周期版本号做条件更新，
// 快照和提交之间周期被任何编辑推进过版本就回滚并返回 ErrCellChanged
func (s *Service) Accept(requestID int64, approverID int64, notes string) (*Result, error) {
	req, err := s.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.SwapStatusPending {
		return nil, domain.ErrAlreadyResolved
	}

	period, cells, err := s.periodCells(req.Scope)
	if err != nil {
		return nil, err
	}
	// 已发布的计划允许换班，已归档的不允许
	if period.Archived {
		return nil, domain.ErrPeriodArchived
	}

	changes, err := swappedCells(req, cells)
	if err != nil {
		return nil, err
	}

	input, err := s.detectorInput(req.Scope, cells)
	if err != nil {
		return nil, err
	}

	violations := make([]domain.Violation, 0)
	for _, change := range changes {
		violations = append(violations, conflict.Evaluate(input, change.Cell)...)
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	if err := s.repo.ResolveSwapAccept(req, approverID, period, changes); err != nil {
		return nil, err
	}

	changed := make([]*domain.AssignmentCell, 0, len(changes))
	for _, change := range changes {
		changed = append(changed, change.Cell)
	}

	s.grid.InvalidateScope(req.Scope)
	s.events.Publish(domain.EventSwapAccepted, domain.SwapResolvedData{
		RequestID:            req.ID,
		Scope:                req.Scope,
		RequestingEmployeeID: req.RequestingEmployeeID,
		TargetEmployeeID:     req.TargetEmployeeID,
		ApproverID:           approverID,
		Notes:                notes,
		SourceKey:            req.SourceKey,
	})

	return &Result{Request: req, Cells: changed}, nil
}

// Reject 驳回一个换班申请，不改动任何格子
func (s *Service) Reject(requestID int64, approverID int64, notes string) (*domain.ShiftSwapRequest, error) {
	req, err := s.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.SwapStatusPending {
		return nil, domain.ErrAlreadyResolved
	}

	if err := s.repo.ResolveSwapStatus(req, domain.SwapStatusRejected, &approverID, notes); err != nil {
		return nil, err
	}

	s.events.Publish(domain.EventSwapRejected, domain.SwapResolvedData{
		RequestID:            req.ID,
		Scope:                req.Scope,
		RequestingEmployeeID: req.RequestingEmployeeID,
		TargetEmployeeID:     req.TargetEmployeeID,
		ApproverID:           approverID,
		Notes:                notes,
		SourceKey:            req.SourceKey,
	})

	return req, nil
}

// Cancel 由申请人撤回自己的申请，只在 pending 状态下允许
func (s *Service) Cancel(requestID int64, requesterID int64) (*domain.ShiftSwapRequest, error) {
	req, err := s.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if req.RequestingEmployeeID != requesterID {
		return nil, domain.ErrNotRequester
	}
	if req.Status != domain.SwapStatusPending {
		return nil, domain.ErrAlreadyResolved
	}

	if err := s.repo.ResolveSwapStatus(req, domain.SwapStatusCancelled, nil, req.Notes); err != nil {
		return nil, err
	}

	return req, nil
}

func (s *Service) periodCells(scope domain.Scope) (*domain.PlanningPeriod, []*domain.AssignmentCell, error) {
	period, err := s.repo.GetPeriodByScope(scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}

	cells, err := s.repo.GetCellsByPeriodID(period.ID)
	if err != nil {
		return nil, nil, err
	}

	return period, cells, nil
}

// swappedCells 构造换班之后的格子，并把换班结果写进传入的集合，
// 使冲突检测在换班后的最终状态上进行。
// 每个改动带上换班前的值班人，提交事务用它守卫并发修改
func swappedCells(req *domain.ShiftSwapRequest, cells []*domain.AssignmentCell) ([]*domain.CellChange, error) {
	source := findCell(cells, req.SourceKey)
	if source == nil || !source.Assigned() {
		return nil, domain.ErrNotFound
	}
	prevSource := source.EmployeeID

	if !req.TwoSided() {
		// 单边替班：目标员工接下源格子
		targetEmployeeID := req.TargetEmployeeID
		source.EmployeeID = &targetEmployeeID
		return []*domain.CellChange{{Cell: source, PrevEmployeeID: prevSource}}, nil
	}

	target := findCell(cells, *req.TargetKey)
	if target == nil || !target.Assigned() {
		return nil, domain.ErrNotFound
	}
	prevTarget := target.EmployeeID

	source.EmployeeID, target.EmployeeID = target.EmployeeID, source.EmployeeID
	return []*domain.CellChange{
		{Cell: source, PrevEmployeeID: prevSource},
		{Cell: target, PrevEmployeeID: prevTarget},
	}, nil
}

func findCell(cells []*domain.AssignmentCell, key domain.CellKey) *domain.AssignmentCell {
	for _, cell := range cells {
		if cell.Key == key {
			return cell
		}
	}
	return nil
}

func (s *Service) detectorInput(scope domain.Scope, cells []*domain.AssignmentCell) (*conflict.Input, error) {
	employees, err := s.repo.GetAllEmployees()
	if err != nil {
		return nil, err
	}
	employeesMap := make(map[int64]*domain.Employee, len(employees))
	for _, employee := range employees {
		employeesMap[employee.ID] = employee
	}

	slots, err := s.repo.GetAllRoleSlots()
	if err != nil {
		return nil, err
	}
	slotsMap := make(map[string]*domain.RoleSlot, len(slots))
	for _, slot := range slots {
		slotsMap[slot.Name] = slot
	}

	rules, err := s.repo.GetAllExclusionRules()
	if err != nil {
		return nil, err
	}

	start, end := scope.Range()
	absences, err := s.repo.GetAbsencesOverlapping(start, end)
	if err != nil {
		return nil, err
	}

	return &conflict.Input{
		Scope:      scope,
		Cells:      cells,
		Employees:  employeesMap,
		Slots:      slotsMap,
		Absences:   absences,
		Exclusions: rules,
	}, nil
}
