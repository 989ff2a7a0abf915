package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (r *Repository) GetCellsByPeriodID(periodID int64) ([]*domain.AssignmentCell, error) {
	query := `
		SELECT area, sub_area, slot, day, employee_id, note, is_closed
		FROM assignment_cells
		WHERE period_id = $1
		ORDER BY area, sub_area, slot, day
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cells := []*domain.AssignmentCell{}
	for rows.Next() {
		var cell domain.AssignmentCell
		dst := []any{
			&cell.Key.Area,
			&cell.Key.SubArea,
			&cell.Key.Slot,
			&cell.Key.Day,
			&cell.EmployeeID,
			&cell.Note,
			&cell.IsClosed,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		cells = append(cells, &cell)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cells, nil
}

// ReplaceCells 整体替换一个周期的格子集合
// 先删后插在同一个事务里完成，崩溃不会留下半套格子。
// 事务同时推进周期版本号，换班接受靠版本号发现被并发编辑过的周期
func (r *Repository) ReplaceCells(periodID int64, cells []*domain.AssignmentCell) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `DELETE FROM assignment_cells WHERE period_id = $1`
	if _, err := tx.ExecContext(ctx, query, periodID); err != nil {
		return err
	}

	for _, cell := range cells {
		query := `
			INSERT INTO assignment_cells (period_id, area, sub_area, slot, day, employee_id, note, is_closed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		params := []any{
			periodID,
			cell.Key.Area,
			cell.Key.SubArea,
			cell.Key.Slot,
			cell.Key.Day,
			cell.EmployeeID,
			cell.Note,
			cell.IsClosed,
		}
		if _, err := tx.ExecContext(ctx, query, params...); err != nil {
			return err
		}
	}

	if err := bumpPeriodVersion(ctx, tx, periodID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// UpsertCell 更新或插入单个格子，同样在事务里推进周期版本号
func (r *Repository) UpsertCell(periodID int64, cell *domain.AssignmentCell) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		DELETE FROM assignment_cells
		WHERE period_id = $1 AND area = $2 AND sub_area = $3 AND slot = $4 AND day = $5
	`
	keyParams := []any{periodID, cell.Key.Area, cell.Key.SubArea, cell.Key.Slot, cell.Key.Day}
	if _, err := tx.ExecContext(ctx, query, keyParams...); err != nil {
		return err
	}

	query = `
		INSERT INTO assignment_cells (period_id, area, sub_area, slot, day, employee_id, note, is_closed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	params := []any{
		periodID,
		cell.Key.Area,
		cell.Key.SubArea,
		cell.Key.Slot,
		cell.Key.Day,
		cell.EmployeeID,
		cell.Note,
		cell.IsClosed,
	}
	if _, err := tx.ExecContext(ctx, query, params...); err != nil {
		return err
	}

	if err := bumpPeriodVersion(ctx, tx, periodID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

func bumpPeriodVersion(ctx context.Context, tx *sql.Tx, periodID int64) error {
	query := `UPDATE planning_periods SET version = version + 1 WHERE id = $1`
	_, err := tx.ExecContext(ctx, query, periodID)
	return err
}
