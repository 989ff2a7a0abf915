package swap

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

var testScope = domain.Scope{Year: 2025, Month: 6}

// fakeRepository 模拟数据库实现，接受换班时同样以 pending 条件做原子转移
// beforeResolve 在接受事务开始前执行，用来模拟快照之后并发提交的编辑
type fakeRepository struct {
	period        *domain.PlanningPeriod
	cells         []*domain.AssignmentCell
	requests      map[int64]*domain.ShiftSwapRequest
	nextReqID     int64
	employees     []*domain.Employee
	slots         []*domain.RoleSlot
	beforeResolve func()
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		period: &domain.PlanningPeriod{
			ID:     1,
			Scope:  testScope,
			Status: domain.PlanStatusPublished,
		},
		requests: make(map[int64]*domain.ShiftSwapRequest),
		employees: []*domain.Employee{
			{ID: 10, FullName: "王伟", Role: domain.RoleAttendingPhysician, IsActive: true},
			{ID: 11, FullName: "李芳", Role: domain.RoleAttendingPhysician, IsActive: true},
			{ID: 12, FullName: "张强", Role: domain.RoleNurse, IsActive: true},
		},
		slots: []*domain.RoleSlot{
			{ID: 1, Name: "白班"},
			{ID: 2, Name: "主刀", RoleFilter: []domain.Role{domain.RoleChiefPhysician}},
		},
	}
}

func (f *fakeRepository) GetPeriodByScope(scope domain.Scope) (*domain.PlanningPeriod, error) {
	if f.period == nil || f.period.Scope.Key() != scope.Key() {
		return nil, sql.ErrNoRows
	}
	copied := *f.period
	return &copied, nil
}

func (f *fakeRepository) GetCellsByPeriodID(periodID int64) ([]*domain.AssignmentCell, error) {
	cells := make([]*domain.AssignmentCell, 0, len(f.cells))
	for _, cell := range f.cells {
		copied := *cell
		cells = append(cells, &copied)
	}
	return cells, nil
}

func (f *fakeRepository) CreateSwapRequest(req *domain.ShiftSwapRequest) error {
	f.nextReqID++
	req.ID = f.nextReqID
	req.CreatedAt = time.Now()
	copied := *req
	f.requests[req.ID] = &copied
	return nil
}

func (f *fakeRepository) GetSwapRequestByID(id int64) (*domain.ShiftSwapRequest, error) {
	req, exists := f.requests[id]
	if !exists {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRepository) GetSwapRequestsByEmployeeID(employeeID int64) ([]*domain.ShiftSwapRequest, error) {
	matched := []*domain.ShiftSwapRequest{}
	for _, req := range f.requests {
		if req.RequestingEmployeeID == employeeID || req.TargetEmployeeID == employeeID {
			copied := *req
			matched = append(matched, &copied)
		}
	}
	return matched, nil
}

func (f *fakeRepository) ResolveSwapAccept(req *domain.ShiftSwapRequest, approverID int64, period *domain.PlanningPeriod, changes []*domain.CellChange) error {
	if f.beforeResolve != nil {
		f.beforeResolve()
	}

	stored, exists := f.requests[req.ID]
	if !exists || stored.Status != domain.SwapStatusPending {
		return domain.ErrAlreadyResolved
	}

	// 版本条件更新，对齐真实事务里的周期版本守卫
	if f.period == nil || f.period.ID != period.ID || f.period.Version != period.Version {
		return domain.ErrCellChanged
	}

	// 先检查所有守卫再应用改动，对齐事务的全有或全无
	matched := make([]*domain.AssignmentCell, 0, len(changes))
	for _, change := range changes {
		existing := findCell(f.cells, change.Cell.Key)
		if existing == nil || !employeeEqual(existing.EmployeeID, change.PrevEmployeeID) {
			return domain.ErrCellChanged
		}
		matched = append(matched, existing)
	}
	for i, change := range changes {
		matched[i].EmployeeID = change.Cell.EmployeeID
	}
	f.period.Version++

	now := time.Now()
	stored.Status = domain.SwapStatusAccepted
	stored.ApproverID = &approverID
	stored.ResolvedAt = &now
	req.Status = domain.SwapStatusAccepted
	req.ApproverID = &approverID
	req.ResolvedAt = &now
	return nil
}

func (f *fakeRepository) ResolveSwapStatus(req *domain.ShiftSwapRequest, status domain.SwapStatus, approverID *int64, notes string) error {
	stored, exists := f.requests[req.ID]
	if !exists || stored.Status != domain.SwapStatusPending {
		return domain.ErrAlreadyResolved
	}

	now := time.Now()
	stored.Status = status
	stored.ApproverID = approverID
	stored.Notes = notes
	stored.ResolvedAt = &now
	req.Status = status
	req.ApproverID = approverID
	req.Notes = notes
	req.ResolvedAt = &now
	return nil
}

func (f *fakeRepository) GetAllEmployees() ([]*domain.Employee, error) {
	return f.employees, nil
}

func (f *fakeRepository) GetAllRoleSlots() ([]*domain.RoleSlot, error) {
	return f.slots, nil
}

func (f *fakeRepository) GetAllExclusionRules() ([]*domain.ExclusionRule, error) {
	return nil, nil
}

func (f *fakeRepository) GetAbsencesOverlapping(start time.Time, end time.Time) ([]*domain.Absence, error) {
	return nil, nil
}

type fakeInvalidator struct {
	scopes []string
}

func (f *fakeInvalidator) InvalidateScope(scope domain.Scope) {
	f.scopes = append(f.scopes, scope.Key())
}

type fakePublisher struct {
	types []string
}

func (f *fakePublisher) Publish(eventType string, data any) {
	f.types = append(f.types, eventType)
}

func ptr(id int64) *int64 {
	return &id
}

func employeeEqual(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func keyAt(subArea string, day int32) domain.CellKey {
	return domain.CellKey{Area: "病区", SubArea: subArea, Slot: "白班", Day: day}
}

func newTestService() (*Service, *fakeRepository, *fakeInvalidator, *fakePublisher) {
	repo := newFakeRepository()
	// 员工 10 周一值班，员工 11 周二值班
	repo.cells = []*domain.AssignmentCell{
		{Key: keyAt("一病区", 2), EmployeeID: ptr(10)},
		{Key: keyAt("一病区", 3), EmployeeID: ptr(11)},
	}

	invalidator := &fakeInvalidator{}
	events := &fakePublisher{}
	return NewService(repo, invalidator, events), repo, invalidator, events
}

func TestService_CreateValidatesOwnership(t *testing.T) {
	service, _, _, _ := newTestService()

	// 源格子不是申请人的班
	_, err := service.Create(11, testScope, keyAt("一病区", 2), nil, 12, "")
	require.Error(t, err)

	// 源格子不存在
	_, err = service.Create(10, testScope, keyAt("一病区", 20), nil, 12, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// 双边换班时目标格子的值班人必须是目标员工
	targetKey := keyAt("一病区", 3)
	_, err = service.Create(10, testScope, keyAt("一病区", 2), &targetKey, 12, "")
	require.Error(t, err)

	req, err := service.Create(10, testScope, keyAt("一病区", 2), &targetKey, 11, "周一有事")
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusPending, req.Status)
	require.True(t, req.TwoSided())
}

func TestService_AcceptTwoSidedSwap(t *testing.T) {
	service, repo, invalidator, events := newTestService()

	targetKey := keyAt("一病区", 3)
	req, err := service.Create(10, testScope, keyAt("一病区", 2), &targetKey, 11, "")
	require.NoError(t, err)

	result, err := service.Accept(req.ID, 99, "")
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusAccepted, result.Request.Status)
	require.Len(t, result.Cells, 2)

	// 两个格子的值班人互换
	cells, err := repo.GetCellsByPeriodID(1)
	require.NoError(t, err)
	for _, cell := range cells {
		switch cell.Key.Day {
		case 2:
			require.Equal(t, int64(11), *cell.EmployeeID)
		case 3:
			require.Equal(t, int64(10), *cell.EmployeeID)
		}
	}

	require.Equal(t, []string{testScope.Key()}, invalidator.scopes)
	require.Equal(t, []string{domain.EventSwapAccepted}, events.types)
}

func TestService_AcceptOneSidedSwap(t *testing.T) {
	service, repo, _, _ := newTestService()

	req, err := service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.NoError(t, err)
	require.False(t, req.TwoSided())

	result, err := service.Accept(req.ID, 99, "")
	require.NoError(t, err)
	require.Len(t, result.Cells, 1)

	cells, err := repo.GetCellsByPeriodID(1)
	require.NoError(t, err)
	for _, cell := range cells {
		if cell.Key.Day == 2 {
			require.Equal(t, int64(12), *cell.EmployeeID)
		}
	}
}

func TestService_AcceptIsIdempotent(t *testing.T) {
	service, _, _, _ := newTestService()

	targetKey := keyAt("一病区", 3)
	req, err := service.Create(10, testScope, keyAt("一病区", 2), &targetKey, 11, "")
	require.NoError(t, err)

	_, err = service.Accept(req.ID, 99, "")
	require.NoError(t, err)

	// 第二次接受同一个申请
	_, err = service.Accept(req.ID, 99, "")
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// 接受之后再驳回或撤回同样失败
	_, err = service.Reject(req.ID, 99, "")
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	_, err = service.Cancel(req.ID, 10)
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestService_AcceptKeepsPendingOnConflict(t *testing.T) {
	service, repo, _, events := newTestService()

	// 换班后员工 12 会接到 day 2 的白班，但他当天已有同一地点的夜班
	repo.cells = append(repo.cells, &domain.AssignmentCell{
		Key:        domain.CellKey{Area: "病区", SubArea: "一病区", Slot: "夜班", Day: 2},
		EmployeeID: ptr(12),
	})
	repo.slots = append(repo.slots, &domain.RoleSlot{ID: 3, Name: "夜班"})

	req, err := service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.NoError(t, err)

	_, err = service.Accept(req.ID, 99, "")
	validationErr := &domain.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, domain.ViolationDoubleBooking, validationErr.Violations[0].Kind)

	// 申请保持 pending，格子没有被改动
	stored, err := service.GetByID(req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusPending, stored.Status)

	cells, err := repo.GetCellsByPeriodID(1)
	require.NoError(t, err)
	for _, cell := range cells {
		if cell.Key == keyAt("一病区", 2) {
			require.Equal(t, int64(10), *cell.EmployeeID)
		}
	}
	require.Empty(t, events.types)
}

func TestService_AcceptFailsWhenGridEditedAfterValidation(t *testing.T) {
	service, repo, invalidator, events := newTestService()
	repo.slots = append(repo.slots, &domain.RoleSlot{ID: 3, Name: "夜班"})

	req, err := service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.NoError(t, err)

	// 检测快照之后、提交之前，编辑者给员工 12 排上了同一天的夜班
	// 这次编辑不触碰被换的格子，但提交了快照没见过的状态
	repo.beforeResolve = func() {
		repo.cells = append(repo.cells, &domain.AssignmentCell{
			Key:        domain.CellKey{Area: "病区", SubArea: "一病区", Slot: "夜班", Day: 2},
			EmployeeID: ptr(12),
		})
		repo.period.Version++
	}

	_, err = service.Accept(req.ID, 99, "")
	require.ErrorIs(t, err, domain.ErrCellChanged)

	// 申请保持 pending，换班没有落库，不会出现员工 12 的双重排班
	stored, err := service.GetByID(req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusPending, stored.Status)

	cells, err := repo.GetCellsByPeriodID(1)
	require.NoError(t, err)
	for _, cell := range cells {
		if cell.Key == keyAt("一病区", 2) {
			require.Equal(t, int64(10), *cell.EmployeeID)
		}
	}
	require.Empty(t, invalidator.scopes)
	require.Empty(t, events.types)

	// 编辑落定之后重试，这次检测能看到夜班格子，换班被冲突拦下
	repo.beforeResolve = nil
	_, err = service.Accept(req.ID, 99, "")
	validationErr := &domain.ValidationError{}
	require.ErrorAs(t, err, &validationErr)
}

func TestService_AcceptFailsWhenSwappedCellReassigned(t *testing.T) {
	service, repo, _, events := newTestService()

	targetKey := keyAt("一病区", 3)
	req, err := service.Create(10, testScope, keyAt("一病区", 2), &targetKey, 11, "")
	require.NoError(t, err)

	// 源格子本身在快照之后被改派给了别人
	repo.beforeResolve = func() {
		source := findCell(repo.cells, keyAt("一病区", 2))
		source.EmployeeID = ptr(12)
		repo.period.Version++
	}

	_, err = service.Accept(req.ID, 99, "")
	require.ErrorIs(t, err, domain.ErrCellChanged)

	stored, err := service.GetByID(req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusPending, stored.Status)

	// 并发编辑的结果保留，目标格子也没有被单方面改动
	cells, err := repo.GetCellsByPeriodID(1)
	require.NoError(t, err)
	for _, cell := range cells {
		switch cell.Key.Day {
		case 2:
			require.Equal(t, int64(12), *cell.EmployeeID)
		case 3:
			require.Equal(t, int64(11), *cell.EmployeeID)
		}
	}
	require.Empty(t, events.types)
}

func TestService_RejectDoesNotTouchCells(t *testing.T) {
	service, repo, _, events := newTestService()

	req, err := service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.NoError(t, err)

	resolved, err := service.Reject(req.ID, 99, "人手不够")
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusRejected, resolved.Status)
	require.Equal(t, "人手不够", resolved.Notes)

	cells, err := repo.GetCellsByPeriodID(1)
	require.NoError(t, err)
	for _, cell := range cells {
		if cell.Key == keyAt("一病区", 2) {
			require.Equal(t, int64(10), *cell.EmployeeID)
		}
	}
	require.Equal(t, []string{domain.EventSwapRejected}, events.types)
}

func TestService_CancelOnlyByRequester(t *testing.T) {
	service, _, _, _ := newTestService()

	req, err := service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.NoError(t, err)

	_, err = service.Cancel(req.ID, 11)
	require.ErrorIs(t, err, domain.ErrNotRequester)

	resolved, err := service.Cancel(req.ID, 10)
	require.NoError(t, err)
	require.Equal(t, domain.SwapStatusCancelled, resolved.Status)
}

func TestService_ArchivedPeriodBlocksSwaps(t *testing.T) {
	service, repo, _, _ := newTestService()

	req, err := service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.NoError(t, err)

	repo.period.Archived = true

	_, err = service.Accept(req.ID, 99, "")
	require.ErrorIs(t, err, domain.ErrPeriodArchived)

	_, err = service.Create(10, testScope, keyAt("一病区", 2), nil, 12, "")
	require.ErrorIs(t, err, domain.ErrPeriodArchived)
}
