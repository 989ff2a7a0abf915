package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (r *Repository) GetAllEmployees() ([]*domain.Employee, error) {
	query := `
		SELECT id, username, full_name, email, role, department, is_active, created_at, version
		FROM employees
		ORDER BY id
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := []*domain.Employee{}
	for rows.Next() {
		var employee domain.Employee
		dst := []any{
			&employee.ID,
			&employee.Username,
			&employee.FullName,
			&employee.Email,
			&employee.Role,
			&employee.Department,
			&employee.IsActive,
			&employee.CreatedAt,
			&employee.Version,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		employees = append(employees, &employee)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

func (r *Repository) GetEmployeeByID(id int64) (*domain.Employee, error) {
	query := `
		SELECT username, full_name, email, role, department, is_active, created_at, version
		FROM employees
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	employee := &domain.Employee{
		ID: id,
	}

	dst := []any{
		&employee.Username,
		&employee.FullName,
		&employee.Email,
		&employee.Role,
		&employee.Department,
		&employee.IsActive,
		&employee.CreatedAt,
		&employee.Version,
	}

	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	return employee, nil
}

func (r *Repository) CreateEmployee(employee *domain.Employee) error {
	query := `
		INSERT INTO employees (username, full_name, email, role, department, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{
		employee.Username,
		employee.FullName,
		employee.Email,
		employee.Role,
		employee.Department,
		employee.IsActive,
	}
	dst := []any{&employee.ID, &employee.CreatedAt, &employee.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(dst...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetAllServiceLines() ([]*domain.ServiceLine, error) {
	query := `SELECT id, name, created_at FROM service_lines ORDER BY id`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []*domain.ServiceLine{}
	for rows.Next() {
		var line domain.ServiceLine
		if err := rows.Scan(&line.ID, &line.Name, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, &line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

func (r *Repository) GetAllRooms() ([]*domain.Room, error) {
	query := `SELECT id, name, service_line_id, created_at FROM rooms ORDER BY id`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []*domain.Room{}
	for rows.Next() {
		var room domain.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.ServiceLineID, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, &room)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rooms, nil
}

func (r *Repository) GetAllRoleSlots() ([]*domain.RoleSlot, error) {
	query := `
		SELECT rs.id, rs.name, rsr.role
		FROM role_slots rs
		LEFT JOIN role_slot_roles rsr ON rs.id = rsr.slot_id
		ORDER BY rs.id
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slotsMap := make(map[int64]*domain.RoleSlot)
	order := []int64{}

	for rows.Next() {
		var row struct {
			id   int64
			name string
			role sql.NullString
		}
		if err := rows.Scan(&row.id, &row.name, &row.role); err != nil {
			return nil, err
		}

		slot, exists := slotsMap[row.id]
		if !exists {
			slot = &domain.RoleSlot{
				ID:         row.id,
				Name:       row.name,
				RoleFilter: make([]domain.Role, 0),
			}
			slotsMap[row.id] = slot
			order = append(order, row.id)
		}

		// role 为空表示该岗位不限制角色
		if !row.role.Valid {
			continue
		}
		slot.RoleFilter = append(slot.RoleFilter, domain.Role(row.role.String))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	slots := make([]*domain.RoleSlot, 0, len(order))
	for _, id := range order {
		slots = append(slots, slotsMap[id])
	}

	return slots, nil
}

func (r *Repository) GetAllExclusionRules() ([]*domain.ExclusionRule, error) {
	query := `SELECT id, area_a, sub_area_a, area_b, sub_area_b FROM exclusion_rules ORDER BY id`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []*domain.ExclusionRule{}
	for rows.Next() {
		var rule domain.ExclusionRule
		if err := rows.Scan(&rule.ID, &rule.AreaA, &rule.SubAreaA, &rule.AreaB, &rule.SubAreaB); err != nil {
			return nil, err
		}
		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rules, nil
}
