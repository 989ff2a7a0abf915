package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

// 参考数据平时由外部系统维护，这里的写入方法只给 seed 工具用

func (r *Repository) CreateServiceLine(serviceLine *domain.ServiceLine) error {
	query := `
		INSERT INTO service_lines (name)
		VALUES ($1)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	dst := []any{&serviceLine.ID, &serviceLine.CreatedAt}
	if err := r.dbpool.QueryRowContext(ctx, query, serviceLine.Name).Scan(dst...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) CreateRoom(room *domain.Room) error {
	query := `
		INSERT INTO rooms (name, service_line_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	dst := []any{&room.ID, &room.CreatedAt}
	if err := r.dbpool.QueryRowContext(ctx, query, room.Name, room.ServiceLineID).Scan(dst...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) CreateRoleSlot(slot *domain.RoleSlot) error {
	tx, err := r.dbpool.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	insertSlotQuery := `
		INSERT INTO role_slots (name)
		VALUES ($1)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, insertSlotQuery, slot.Name).Scan(&slot.ID); err != nil {
		return err
	}

	insertRoleQuery := `
		INSERT INTO role_slot_roles (slot_id, role)
		VALUES ($1, $2)
	`
	for _, role := range slot.RoleFilter {
		if _, err := tx.ExecContext(ctx, insertRoleQuery, slot.ID, role); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) CreateExclusionRule(rule *domain.ExclusionRule) error {
	query := `
		INSERT INTO exclusion_rules (area_a, sub_area_a, area_b, sub_area_b)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{rule.AreaA, rule.SubAreaA, rule.AreaB, rule.SubAreaB}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(&rule.ID); err != nil {
		return err
	}

	return nil
}
