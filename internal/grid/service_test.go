package grid

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/lock"
)

// fakeRepository 把所有状态放在内存里，行为和数据库实现保持一致
type fakeRepository struct {
	periods    map[string]*domain.PlanningPeriod
	cells      map[int64][]*domain.AssignmentCell
	employees  []*domain.Employee
	slots      []*domain.RoleSlot
	rules      []*domain.ExclusionRule
	absences   []*domain.Absence
	nextPeriod int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		periods: make(map[string]*domain.PlanningPeriod),
		cells:   make(map[int64][]*domain.AssignmentCell),
		employees: []*domain.Employee{
			{ID: 10, FullName: "王伟", Role: domain.RoleAttendingPhysician, IsActive: true},
			{ID: 11, FullName: "李芳", Role: domain.RoleResidentPhysician, IsActive: true},
			{ID: 42, FullName: "张强", Role: domain.RoleNurse, IsActive: true},
		},
		slots: []*domain.RoleSlot{
			{ID: 1, Name: "白班"},
			{ID: 2, Name: "夜班"},
		},
	}
}

func (f *fakeRepository) GetPeriodByScope(scope domain.Scope) (*domain.PlanningPeriod, error) {
	period, exists := f.periods[scope.Key()]
	if !exists {
		return nil, sql.ErrNoRows
	}
	copied := *period
	return &copied, nil
}

func (f *fakeRepository) CreatePeriod(period *domain.PlanningPeriod) error {
	f.nextPeriod++
	period.ID = f.nextPeriod
	period.CreatedAt = time.Now()
	copied := *period
	f.periods[period.Scope.Key()] = &copied
	return nil
}

func (f *fakeRepository) UpdatePeriodStatus(period *domain.PlanningPeriod, status domain.PlanStatus) error {
	stored, exists := f.periods[period.Scope.Key()]
	if !exists || stored.Status != period.Status || stored.Version != period.Version {
		return domain.ErrNotFound
	}
	stored.Status = status
	stored.Version++
	period.Status = status
	period.Version = stored.Version
	return nil
}

func (f *fakeRepository) ArchivePeriod(period *domain.PlanningPeriod) error {
	stored, exists := f.periods[period.Scope.Key()]
	if !exists {
		return domain.ErrNotFound
	}
	stored.Archived = true
	period.Archived = true
	return nil
}

func (f *fakeRepository) GetCellsByPeriodID(periodID int64) ([]*domain.AssignmentCell, error) {
	cells := make([]*domain.AssignmentCell, 0, len(f.cells[periodID]))
	for _, cell := range f.cells[periodID] {
		copied := *cell
		cells = append(cells, &copied)
	}
	return cells, nil
}

func (f *fakeRepository) ReplaceCells(periodID int64, cells []*domain.AssignmentCell) error {
	f.cells[periodID] = cells
	return nil
}

func (f *fakeRepository) UpsertCell(periodID int64, cell *domain.AssignmentCell) error {
	kept := make([]*domain.AssignmentCell, 0, len(f.cells[periodID])+1)
	for _, existing := range f.cells[periodID] {
		if existing.Key == cell.Key {
			continue
		}
		kept = append(kept, existing)
	}
	f.cells[periodID] = append(kept, cell)
	return nil
}

func (f *fakeRepository) GetAllEmployees() ([]*domain.Employee, error) {
	return f.employees, nil
}

func (f *fakeRepository) GetAllRoleSlots() ([]*domain.RoleSlot, error) {
	return f.slots, nil
}

func (f *fakeRepository) GetAllExclusionRules() ([]*domain.ExclusionRule, error) {
	return f.rules, nil
}

func (f *fakeRepository) GetAbsencesOverlapping(start time.Time, end time.Time) ([]*domain.Absence, error) {
	matched := []*domain.Absence{}
	for _, absence := range f.absences {
		if !absence.StartDate.After(end) && !absence.EndDate.Before(start) {
			matched = append(matched, absence)
		}
	}
	return matched, nil
}

// fakePublisher 记录发出的事件
type fakePublisher struct {
	types []string
	data  []any
}

func (f *fakePublisher) Publish(eventType string, data any) {
	f.types = append(f.types, eventType)
	f.data = append(f.data, data)
}

var testScope = domain.Scope{Year: 2025, Month: 6}

func newTestService() (*Service, *fakeRepository, *fakePublisher, *lock.Manager) {
	repo := newFakeRepository()
	events := &fakePublisher{}
	locks := lock.NewManager(lock.NewMemoryStore(), 5*time.Minute, time.Hour)
	service := NewService(repo, locks, events)
	return service, repo, events, locks
}

func ptr(id int64) *int64 {
	return &id
}

func cellAt(day int32, slot string, employeeID int64) *domain.AssignmentCell {
	return &domain.AssignmentCell{
		Key:        domain.CellKey{Area: "病区", SubArea: "一病区", Slot: slot, Day: day},
		EmployeeID: ptr(employeeID),
	}
}

func TestService_ReplaceAllRequiresLock(t *testing.T) {
	service, _, _, _ := newTestService()

	_, err := service.ReplaceAll(context.Background(), testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.ErrorIs(t, err, domain.ErrLockRequired)
}

func TestService_ReplaceAllRejectsForeignLock(t *testing.T) {
	service, _, _, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-b", 0)
	require.NoError(t, err)

	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.ErrorIs(t, err, domain.ErrNotOwner)
}

func TestService_ReplaceAllCreatesDraftPeriod(t *testing.T) {
	service, repo, events, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	view, err := service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{
		cellAt(1, "白班", 10),
		cellAt(1, "夜班", 11),
	})
	require.NoError(t, err)
	require.Equal(t, domain.PlanStatusDraft, view.Period.Status)
	require.Len(t, view.Cells, 2)

	stored, err := repo.GetCellsByPeriodID(view.Period.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	require.Equal(t, []string{domain.EventPeriodMutated}, events.types)
	mutated := events.data[0].(domain.PeriodMutatedData)
	require.Len(t, mutated.Diff.Added, 2)
}

func TestService_NoEventWhenNothingChanges(t *testing.T) {
	service, _, events, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)
	require.Len(t, events.types, 1)

	// 原样重提：写入照常执行，但不发 PeriodMutated
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)
	require.Len(t, events.types, 1)

	_, err = service.UpsertCell(ctx, testScope, "session-a", cellAt(1, "白班", 10))
	require.NoError(t, err)
	require.Len(t, events.types, 1)
}

func TestService_ReplaceAllIsAllOrNothing(t *testing.T) {
	service, repo, _, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	view, err := service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	// 第二个格子把员工 10 排成了双重排班，整次提交必须失败
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{
		cellAt(2, "白班", 11),
		cellAt(2, "夜班", 11),
	})
	validationErr := &domain.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 2)

	// 数据库中的格子保持原样
	stored, err := repo.GetCellsByPeriodID(view.Period.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, view.Cells[0].Key, stored[0].Key)
}

func TestService_ReplaceAllRejectsMalformedInput(t *testing.T) {
	service, _, _, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	// 重复的格子
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{
		cellAt(1, "白班", 10),
		cellAt(1, "白班", 11),
	})
	require.Error(t, err)

	// 关闭的格子排了人
	closed := cellAt(1, "白班", 10)
	closed.IsClosed = true
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{closed})
	require.Error(t, err)

	// 月份里不存在的日子
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(31, "白班", 10)})
	require.Error(t, err)
}

func TestService_UpsertCell(t *testing.T) {
	service, _, events, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	view, err := service.UpsertCell(ctx, testScope, "session-a", cellAt(1, "白班", 11))
	require.NoError(t, err)
	require.Len(t, view.Cells, 1)
	require.Equal(t, int64(11), *view.Cells[0].EmployeeID)

	mutated := events.data[len(events.data)-1].(domain.PeriodMutatedData)
	require.Len(t, mutated.Diff.Changed, 1)
}

func TestService_UpsertCellRejectsConflict(t *testing.T) {
	service, _, _, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)

	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	_, err = service.UpsertCell(ctx, testScope, "session-a", cellAt(1, "夜班", 10))
	validationErr := &domain.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, domain.ViolationDoubleBooking, validationErr.Violations[0].Kind)
}

func TestService_TransitionFollowsStateMachine(t *testing.T) {
	service, _, events, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	// draft 不能直接 published
	_, err = service.Transition(ctx, testScope, "session-a", domain.PlanStatusPublished, 99)
	transitionErr := &domain.InvalidTransitionError{}
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, domain.PlanStatusDraft, transitionErr.Current)

	period, err := service.Transition(ctx, testScope, "session-a", domain.PlanStatusProvisional, 99)
	require.NoError(t, err)
	require.Equal(t, domain.PlanStatusProvisional, period.Status)

	period, err = service.Transition(ctx, testScope, "session-a", domain.PlanStatusPublished, 99)
	require.NoError(t, err)
	require.Equal(t, domain.PlanStatusPublished, period.Status)
	require.Equal(t, domain.EventPlanPublished, events.types[len(events.types)-1])

	// published 是终态
	_, err = service.Transition(ctx, testScope, "session-a", domain.PlanStatusDraft, 99)
	require.ErrorAs(t, err, &transitionErr)
}

func TestService_PublishedPeriodNotEditable(t *testing.T) {
	service, _, _, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	_, err = service.Transition(ctx, testScope, "session-a", domain.PlanStatusProvisional, 99)
	require.NoError(t, err)
	_, err = service.Transition(ctx, testScope, "session-a", domain.PlanStatusPublished, 99)
	require.NoError(t, err)

	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(2, "白班", 10)})
	transitionErr := &domain.InvalidTransitionError{}
	require.ErrorAs(t, err, &transitionErr)
}

func TestService_ArchiveBlocksEverything(t *testing.T) {
	service, _, _, locks := newTestService()
	ctx := context.Background()

	_, err := locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)
	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	period, err := service.Archive(ctx, testScope, "session-a")
	require.NoError(t, err)
	require.True(t, period.Archived)

	_, err = service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(2, "白班", 10)})
	require.ErrorIs(t, err, domain.ErrPeriodArchived)

	_, err = service.Transition(ctx, testScope, "session-a", domain.PlanStatusProvisional, 99)
	require.ErrorIs(t, err, domain.ErrPeriodArchived)
}

func TestService_GetPeriodUsesCache(t *testing.T) {
	service, repo, _, locks := newTestService()
	ctx := context.Background()

	_, err := service.GetPeriod(testScope)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = locks.Acquire(ctx, testScope, "session-a", 0)
	require.NoError(t, err)
	view, err := service.ReplaceAll(ctx, testScope, "session-a", []*domain.AssignmentCell{cellAt(1, "白班", 10)})
	require.NoError(t, err)

	first, err := service.GetPeriod(testScope)
	require.NoError(t, err)
	require.Len(t, first.Cells, 1)

	// 绕过服务直接改底层数据，缓存命中时看不到这次改动
	repo.cells[view.Period.ID] = nil
	cached, err := service.GetPeriod(testScope)
	require.NoError(t, err)
	require.Len(t, cached.Cells, 1)

	// 失效之后重新加载
	service.InvalidateScope(testScope)
	fresh, err := service.GetPeriod(testScope)
	require.NoError(t, err)
	require.Empty(t, fresh.Cells)
}
