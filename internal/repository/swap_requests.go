package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (r *Repository) CreateSwapRequest(req *domain.ShiftSwapRequest) error {
	query := `
		INSERT INTO swap_requests (
			period_id,
			source_area, source_sub_area, source_slot, source_day,
			target_area, target_sub_area, target_slot, target_day,
			requesting_employee_id, target_employee_id, status, notes
		)
		SELECT p.id, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		FROM planning_periods p
		WHERE p.year = $1 AND p.month = $2 AND p.week = $3 AND p.department = $4
		RETURNING id, created_at, version
	`

	var targetArea, targetSubArea, targetSlot any
	var targetDay any
	if req.TargetKey != nil {
		targetArea = req.TargetKey.Area
		targetSubArea = req.TargetKey.SubArea
		targetSlot = req.TargetKey.Slot
		targetDay = req.TargetKey.Day
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{
		req.Scope.Year, req.Scope.Month, req.Scope.Week, req.Scope.Department,
		req.SourceKey.Area, req.SourceKey.SubArea, req.SourceKey.Slot, req.SourceKey.Day,
		targetArea, targetSubArea, targetSlot, targetDay,
		req.RequestingEmployeeID, req.TargetEmployeeID, req.Status, req.Notes,
	}
	dst := []any{&req.ID, &req.CreatedAt, &req.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(dst...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// 周期不存在时 SELECT 不产生行
			return domain.ErrNotFound
		}
		return err
	}

	return nil
}

func (r *Repository) GetSwapRequestByID(id int64) (*domain.ShiftSwapRequest, error) {
	query := `
		SELECT
			p.year, p.month, p.week, p.department,
			sr.source_area, sr.source_sub_area, sr.source_slot, sr.source_day,
			sr.target_area, sr.target_sub_area, sr.target_slot, sr.target_day,
			sr.requesting_employee_id, sr.target_employee_id, sr.status,
			sr.approver_id, sr.notes, sr.created_at, sr.resolved_at, sr.version
		FROM swap_requests sr
		JOIN planning_periods p ON sr.period_id = p.id
		WHERE sr.id = $1
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	req := &domain.ShiftSwapRequest{
		ID: id,
	}

	var targetArea, targetSubArea, targetSlot sql.NullString
	var targetDay sql.NullInt32

	dst := []any{
		&req.Scope.Year, &req.Scope.Month, &req.Scope.Week, &req.Scope.Department,
		&req.SourceKey.Area, &req.SourceKey.SubArea, &req.SourceKey.Slot, &req.SourceKey.Day,
		&targetArea, &targetSubArea, &targetSlot, &targetDay,
		&req.RequestingEmployeeID, &req.TargetEmployeeID, &req.Status,
		&req.ApproverID, &req.Notes, &req.CreatedAt, &req.ResolvedAt, &req.Version,
	}

	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	if targetArea.Valid {
		req.TargetKey = &domain.CellKey{
			Area:    targetArea.String,
			SubArea: targetSubArea.String,
			Slot:    targetSlot.String,
			Day:     targetDay.Int32,
		}
	}

	return req, nil
}

func (r *Repository) GetSwapRequestsByEmployeeID(employeeID int64) ([]*domain.ShiftSwapRequest, error) {
	query := `
		SELECT
			sr.id,
			p.year, p.month, p.week, p.department,
			sr.source_area, sr.source_sub_area, sr.source_slot, sr.source_day,
			sr.target_area, sr.target_sub_area, sr.target_slot, sr.target_day,
			sr.requesting_employee_id, sr.target_employee_id, sr.status,
			sr.approver_id, sr.notes, sr.created_at, sr.resolved_at, sr.version
		FROM swap_requests sr
		JOIN planning_periods p ON sr.period_id = p.id
		WHERE sr.requesting_employee_id = $1 OR sr.target_employee_id = $1
		ORDER BY sr.created_at DESC
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []*domain.ShiftSwapRequest{}
	for rows.Next() {
		var req domain.ShiftSwapRequest
		var targetArea, targetSubArea, targetSlot sql.NullString
		var targetDay sql.NullInt32

		dst := []any{
			&req.ID,
			&req.Scope.Year, &req.Scope.Month, &req.Scope.Week, &req.Scope.Department,
			&req.SourceKey.Area, &req.SourceKey.SubArea, &req.SourceKey.Slot, &req.SourceKey.Day,
			&targetArea, &targetSubArea, &targetSlot, &targetDay,
			&req.RequestingEmployeeID, &req.TargetEmployeeID, &req.Status,
			&req.ApproverID, &req.Notes, &req.CreatedAt, &req.ResolvedAt, &req.Version,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		if targetArea.Valid {
			req.TargetKey = &domain.CellKey{
				Area:    targetArea.String,
				SubArea: targetSubArea.String,
				Slot:    targetSlot.String,
				Day:     targetDay.Int32,
			}
		}

		requests = append(requests, &req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return requests, nil
}

// ResolveSwapAccept 在一个事务里完成换班申请的接受
// 状态转移本身就是原子守卫：带 pending 条件的 UPDATE 没有命中行时说明申请已被处理，
// 此时整个事务回滚，格子不会被改动。
// period 是冲突检测用的快照，事务先以它的版本号做条件更新：
// 快照之后周期被任何一次编辑推进过版本，这里就命中 0 行，
// 整个事务回滚并返回 ErrCellChanged，申请保持 pending。
// 每个格子的 UPDATE 再以快照里的值班人兜底一层
func (r *Repository) ResolveSwapAccept(req *domain.ShiftSwapRequest, approverID int64, period *domain.PlanningPeriod, changes []*domain.CellChange) error {
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
		UPDATE swap_requests
		SET status = $1, approver_id = $2, resolved_at = NOW(), version = version + 1
		WHERE id = $3 AND status = $4
		RETURNING version, resolved_at
	`
	params := []any{domain.SwapStatusAccepted, approverID, req.ID, domain.SwapStatusPending}
	if err := tx.QueryRowContext(ctx, query, params...).Scan(&req.Version, &req.ResolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAlreadyResolved
		}
		return err
	}

	query = `
		UPDATE planning_periods
		SET version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := tx.ExecContext(ctx, query, period.ID, period.Version)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrCellChanged
	}

	for _, change := range changes {
		cell := change.Cell
		query := `
			UPDATE assignment_cells
			SET employee_id = $1
			WHERE period_id = $2 AND area = $3 AND sub_area = $4 AND slot = $5 AND day = $6
				AND employee_id IS NOT DISTINCT FROM $7
		`
		params := []any{cell.EmployeeID, period.ID, cell.Key.Area, cell.Key.SubArea, cell.Key.Slot, cell.Key.Day, change.PrevEmployeeID}
		result, err := tx.ExecContext(ctx, query, params...)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrCellChanged
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	req.Status = domain.SwapStatusAccepted
	req.ApproverID = &approverID
	return nil
}

// ResolveSwapStatus 提交 rejected / cancelled 这类不改动格子的终态转移
func (r *Repository) ResolveSwapStatus(req *domain.ShiftSwapRequest, status domain.SwapStatus, approverID *int64, notes string) error {
	query := `
		UPDATE swap_requests
		SET status = $1, approver_id = $2, notes = $3, resolved_at = NOW(), version = version + 1
		WHERE id = $4 AND status = $5
		RETURNING version, resolved_at
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{status, approverID, notes, req.ID, domain.SwapStatusPending}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(&req.Version, &req.ResolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAlreadyResolved
		}
		return err
	}

	req.Status = status
	req.ApproverID = approverID
	req.Notes = notes
	return nil
}
