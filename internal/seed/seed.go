// Package seed 往数据库里填充演示数据，只在开发环境使用
package seed

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/config"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/repository"
	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/utils"
)

type Seeder struct {
	cfg  *config.Config
	repo *repository.Repository
}

func NewSeeder(cfg *config.Config, repo *repository.Repository) *Seeder {
	return &Seeder{cfg: cfg, repo: repo}
}

var departments = []string{"心内科", "呼吸科", "消化科", "神经内科", "急诊科"}

// Employees 插入 n 个随机员工，返回成功插入的数量
func (s *Seeder) Employees(n int) (int, error) {
	cnt := 0
	for i := 0; i < n; i++ {
		department := departments[rand.Intn(len(departments))]
		employee := utils.GenerateRandomEmployee(department, s.cfg.Seed.EmailDomain)
		if err := s.repo.CreateEmployee(employee); err != nil {
			var pgErr *pgconn.PgError
			switch {
			case errors.As(err, &pgErr) && pgErr.ConstraintName == "employees_username_key":
				// 随机用户名撞车了，重新生成一个
				i--
				continue
			default:
				return cnt, err
			}
		}
		cnt++
	}
	return cnt, nil
}

// ReferenceData 插入一套固定的业务线、诊室、岗位和互斥规则
func (s *Seeder) ReferenceData() error {
	lines := map[string][]string{
		"门诊":  {"诊室一", "诊室二", "诊室三"},
		"病区":  {"一病区", "二病区"},
		"急诊":  {"抢救室", "留观室"},
		"手术室": {"一号手术间", "二号手术间"},
	}

	for lineName, roomNames := range lines {
		serviceLine := &domain.ServiceLine{Name: lineName}
		if err := s.repo.CreateServiceLine(serviceLine); err != nil {
			return err
		}
		for _, roomName := range roomNames {
			room := &domain.Room{Name: roomName, ServiceLineID: serviceLine.ID}
			if err := s.repo.CreateRoom(room); err != nil {
				return err
			}
		}
	}

	slots := []*domain.RoleSlot{
		{Name: "白班", RoleFilter: nil},
		{Name: "夜班", RoleFilter: nil},
		{Name: "主刀", RoleFilter: []domain.Role{domain.RoleChiefPhysician, domain.RoleAssociateChief}},
		{Name: "一助", RoleFilter: []domain.Role{domain.RoleAttendingPhysician, domain.RoleResidentPhysician}},
		{Name: "责任护士", RoleFilter: []domain.Role{domain.RoleHeadNurse, domain.RoleNurse}},
	}
	for _, slot := range slots {
		if err := s.repo.CreateRoleSlot(slot); err != nil {
			return err
		}
	}

	rules := []*domain.ExclusionRule{
		{AreaA: "门诊", SubAreaA: "诊室一", AreaB: "急诊", SubAreaB: "抢救室"},
		{AreaA: "病区", SubAreaA: "一病区", AreaB: "手术室", SubAreaB: "一号手术间"},
	}
	for _, rule := range rules {
		if err := s.repo.CreateExclusionRule(rule); err != nil {
			return err
		}
	}

	return nil
}

// DemoPeriod 创建一个草稿周期并随机填充部分格子
// 格子按岗位的角色限制挑选员工，避免生成一眼就冲突的数据
func (s *Seeder) DemoPeriod(scope domain.Scope) error {
	period := &domain.PlanningPeriod{
		Scope:  scope,
		Status: domain.PlanStatusDraft,
	}
	if err := s.repo.CreatePeriod(period); err != nil {
		return err
	}

	employees, err := s.repo.GetAllEmployees()
	if err != nil {
		return err
	}
	serviceLines, err := s.repo.GetAllServiceLines()
	if err != nil {
		return err
	}
	rooms, err := s.repo.GetAllRooms()
	if err != nil {
		return err
	}
	slots, err := s.repo.GetAllRoleSlots()
	if err != nil {
		return err
	}
	if len(employees) == 0 || len(serviceLines) == 0 || len(slots) == 0 {
		return fmt.Errorf("请先插入员工和参考数据")
	}

	lineNames := make(map[int64]string, len(serviceLines))
	for _, line := range serviceLines {
		lineNames[line.ID] = line.Name
	}

	start, end := scope.Range()
	dayCount := int32(end.Sub(start).Hours()/24) + 1

	cells := []*domain.AssignmentCell{}
	for day := int32(1); day <= dayCount; day++ {
		// 每个员工一天只排一个格子，避免生成一眼就双重排班的数据
		used := map[int64]bool{}
		for _, room := range rooms {
			for _, slot := range slots {
				// 留一部分格子空着，更接近排班中途的真实状态
				if rand.Intn(3) == 0 {
					continue
				}

				employee := pickEmployee(employees, slot, used)
				if employee == nil {
					continue
				}
				used[employee.ID] = true

				cells = append(cells, &domain.AssignmentCell{
					Key: domain.CellKey{
						Area:    lineNames[room.ServiceLineID],
						SubArea: room.Name,
						Slot:    slot.Name,
						Day:     day,
					},
					EmployeeID: &employee.ID,
				})
			}
		}
	}

	return s.repo.ReplaceCells(period.ID, cells)
}

func pickEmployee(employees []*domain.Employee, slot *domain.RoleSlot, used map[int64]bool) *domain.Employee {
	candidates := []*domain.Employee{}
	for _, employee := range employees {
		if employee.IsActive && !used[employee.ID] && slot.Accepts(employee.Role) {
			candidates = append(candidates, employee)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rand.Intn(len(candidates))]
}
