// Package grid 实现排班表的读取、整体替换、单格更新和计划状态转移
// 所有变更都要求调用方持有该周期的编辑锁，并在周期级的临界区内完成
package grid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/conflict"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/event"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/lock"
)

// Repository 是排班表服务需要的持久化操作
type Repository interface {
	GetPeriodByScope(scope domain.Scope) (*domain.PlanningPeriod, error)
	CreatePeriod(period *domain.PlanningPeriod) error
	UpdatePeriodStatus(period *domain.PlanningPeriod, status domain.PlanStatus) error
	ArchivePeriod(period *domain.PlanningPeriod) error
	GetCellsByPeriodID(periodID int64) ([]*domain.AssignmentCell, error)
	ReplaceCells(periodID int64, cells []*domain.AssignmentCell) error
	UpsertCell(periodID int64, cell *domain.AssignmentCell) error
	GetAllEmployees() ([]*domain.Employee, error)
	GetAllRoleSlots() ([]*domain.RoleSlot, error)
	GetAllExclusionRules() ([]*domain.ExclusionRule, error)
	GetAbsencesOverlapping(start time.Time, end time.Time) ([]*domain.Absence, error)
}

// PeriodView 是一个周期及其全部格子的只读视图
type PeriodView struct {
	Period *domain.PlanningPeriod   `json:"period"`
	Cells  []*domain.AssignmentCell `json:"cells"`
}

type Service struct {
	repo   Repository
	locks  *lock.Manager
	events event.Publisher
	cache  *periodCache

	// 周期级的临界区：所有权检查和变更之间不允许有别的会话插进来
	mu       sync.Mutex
	scopeMus map[string]*sync.Mutex
}

func NewService(repo Repository, locks *lock.Manager, events event.Publisher) *Service {
	return &Service{
		repo:     repo,
		locks:    locks,
		events:   events,
		cache:    newPeriodCache(),
		scopeMus: make(map[string]*sync.Mutex),
	}
}

// scopeMu 返回某个周期的进程内互斥锁，不同周期的操作完全并行
func (s *Service) scopeMu(scope domain.Scope) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, exists := s.scopeMus[scope.Key()]
	if !exists {
		mu = &sync.Mutex{}
		s.scopeMus[scope.Key()] = mu
	}
	return mu
}

// InvalidateScope 使某个周期的缓存失效，换班流程提交后也会调用
func (s *Service) InvalidateScope(scope domain.Scope) {
	s.cache.invalidate(scope)
}

// GetPeriod 读取一个周期和它的全部格子，不需要锁
func (s *Service) GetPeriod(scope domain.Scope) (*PeriodView, error) {
	if view, exists := s.cache.get(scope); exists {
		return view, nil
	}

	view, err := s.loadView(scope)
	if err != nil {
		return nil, err
	}

	s.cache.set(scope, view)
	return view, nil
}

func (s *Service) loadView(scope domain.Scope) (*PeriodView, error) {
	period, err := s.repo.GetPeriodByScope(scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	cells, err := s.repo.GetCellsByPeriodID(period.ID)
	if err != nil {
		return nil, err
	}

	return &PeriodView{Period: period, Cells: cells}, nil
}

// ReplaceAll 原子地替换一个周期的完整格子集合
// 任何一个格子检测不通过都会使整次提交失败，数据库中的格子保持原样
func (s *Service) ReplaceAll(ctx context.Context, scope domain.Scope, sessionID string, cells []*domain.AssignmentCell) (*PeriodView, error) {
	if err := validateCellSet(scope, cells); err != nil {
		return nil, err
	}

	mu := s.scopeMu(scope)
	mu.Lock()
	defer mu.Unlock()

	if err := s.locks.Holds(ctx, scope, sessionID); err != nil {
		return nil, err
	}

	period, err := s.editablePeriod(scope)
	if err != nil {
		return nil, err
	}

	before, err := s.repo.GetCellsByPeriodID(period.ID)
	if err != nil {
		return nil, err
	}

	input, err := s.detectorInput(scope, cells)
	if err != nil {
		return nil, err
	}
	if violations := conflict.EvaluateAll(input); len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	if err := s.repo.ReplaceCells(period.ID, cells); err != nil {
		return nil, err
	}

	s.cache.invalidate(scope)

	// 提交前后没有任何变化就不发事件
	if diff := domain.DiffCells(before, cells); !diff.Empty() {
		s.events.Publish(domain.EventPeriodMutated, domain.PeriodMutatedData{
			Scope:     scope,
			SessionID: sessionID,
			Diff:      diff,
		})
	}

	return &PeriodView{Period: period, Cells: cells}, nil
}

// UpsertCell 更新单个格子，校验方式和整体替换一致
func (s *Service) UpsertCell(ctx context.Context, scope domain.Scope, sessionID string, cell *domain.AssignmentCell) (*PeriodView, error) {
	if err := validateCell(scope, cell); err != nil {
		return nil, err
	}

	mu := s.scopeMu(scope)
	mu.Lock()
	defer mu.Unlock()

	if err := s.locks.Holds(ctx, scope, sessionID); err != nil {
		return nil, err
	}

	period, err := s.editablePeriod(scope)
	if err != nil {
		return nil, err
	}

	before, err := s.repo.GetCellsByPeriodID(period.ID)
	if err != nil {
		return nil, err
	}

	// 组装更新之后的格子集合，让检测器在最终状态上工作
	after := make([]*domain.AssignmentCell, 0, len(before)+1)
	for _, existing := range before {
		if existing.Key == cell.Key {
			continue
		}
		after = append(after, existing)
	}
	after = append(after, cell)

	input, err := s.detectorInput(scope, after)
	if err != nil {
		return nil, err
	}
	if violations := conflict.Evaluate(input, cell); len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	if err := s.repo.UpsertCell(period.ID, cell); err != nil {
		return nil, err
	}

	s.cache.invalidate(scope)

	if diff := domain.DiffCells(before, after); !diff.Empty() {
		s.events.Publish(domain.EventPeriodMutated, domain.PeriodMutatedData{
			Scope:     scope,
			SessionID: sessionID,
			Diff:      diff,
		})
	}

	return &PeriodView{Period: period, Cells: after}, nil
}

// Transition 提交一次计划状态转移
func (s *Service) Transition(ctx context.Context, scope domain.Scope, sessionID string, target domain.PlanStatus, actorID int64) (*domain.PlanningPeriod, error) {
	mu := s.scopeMu(scope)
	mu.Lock()
	defer mu.Unlock()

	if err := s.locks.Holds(ctx, scope, sessionID); err != nil {
		return nil, err
	}

	period, err := s.repo.GetPeriodByScope(scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if period.Archived {
		return nil, domain.ErrPeriodArchived
	}

	if !domain.CanTransition(period.Status, target) {
		return nil, &domain.InvalidTransitionError{
			Current:   period.Status,
			Requested: target,
			Allowed:   domain.AllowedTransitions[period.Status],
		}
	}

	if err := s.repo.UpdatePeriodStatus(period, target); err != nil {
		return nil, err
	}

	s.cache.invalidate(scope)

	if target == domain.PlanStatusPublished {
		s.events.Publish(domain.EventPlanPublished, domain.PlanPublishedData{
			Scope:      scope,
			EmployeeID: actorID,
		})
	}

	return period, nil
}

// Archive 软归档一个周期，状态保持不变
func (s *Service) Archive(ctx context.Context, scope domain.Scope, sessionID string) (*domain.PlanningPeriod, error) {
	mu := s.scopeMu(scope)
	mu.Lock()
	defer mu.Unlock()

	if err := s.locks.Holds(ctx, scope, sessionID); err != nil {
		return nil, err
	}

	period, err := s.repo.GetPeriodByScope(scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := s.repo.ArchivePeriod(period); err != nil {
		return nil, err
	}

	s.cache.invalidate(scope)
	return period, nil
}

// editablePeriod 返回可编辑状态下的周期，首次编辑时自动创建草稿周期
func (s *Service) editablePeriod(scope domain.Scope) (*domain.PlanningPeriod, error) {
	period, err := s.repo.GetPeriodByScope(scope)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		period = &domain.PlanningPeriod{
			Scope:  scope,
			Status: domain.PlanStatusDraft,
		}
		if err := s.repo.CreatePeriod(period); err != nil {
			return nil, err
		}
		return period, nil
	}

	if period.Archived {
		return nil, domain.ErrPeriodArchived
	}
	if !period.Status.Editable() {
		return nil, &domain.InvalidTransitionError{
			Current:   period.Status,
			Requested: period.Status,
			Allowed:   domain.AllowedTransitions[period.Status],
		}
	}

	return period, nil
}

// detectorInput 为冲突检测器准备上下文
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

// validateCellSet 校验提交格式上的约束，这些不是排班冲突而是非法输入
func validateCellSet(scope domain.Scope, cells []*domain.AssignmentCell) error {
	seen := make(map[domain.CellKey]struct{}, len(cells))
	for _, cell := range cells {
		if _, exists := seen[cell.Key]; exists {
			return fmt.Errorf("提交中存在重复的格子 %s", cell.Key)
		}
		seen[cell.Key] = struct{}{}

		if err := validateCell(scope, cell); err != nil {
			return err
		}
	}
	return nil
}

func validateCell(scope domain.Scope, cell *domain.AssignmentCell) error {
	if cell.IsClosed && cell.EmployeeID != nil {
		return fmt.Errorf("格子 %s 已关闭，不能同时排人", cell.Key)
	}
	if _, err := scope.DateOf(cell.Key.Day); err != nil {
		return fmt.Errorf("格子 %s: %w", cell.Key, err)
	}
	return nil
}
