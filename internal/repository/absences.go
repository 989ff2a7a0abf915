package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (r *Repository) GetAbsenceByID(id int64) (*domain.Absence, error) {
	query := `
		SELECT employee_id, start_date, end_date, reason, status, created_at, version
		FROM absences
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	absence := &domain.Absence{
		ID: id,
	}

	dst := []any{
		&absence.EmployeeID,
		&absence.StartDate,
		&absence.EndDate,
		&absence.Reason,
		&absence.Status,
		&absence.CreatedAt,
		&absence.Version,
	}

	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	return absence, nil
}

// GetAbsencesOverlapping 查出和指定日期区间有交集的缺勤记录，供冲突检测使用
func (r *Repository) GetAbsencesOverlapping(start time.Time, end time.Time) ([]*domain.Absence, error) {
	query := `
		SELECT id, employee_id, start_date, end_date, reason, status, created_at, version
		FROM absences
		WHERE start_date <= $2 AND end_date >= $1
		ORDER BY start_date
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	absences := []*domain.Absence{}
	for rows.Next() {
		var absence domain.Absence
		dst := []any{
			&absence.ID,
			&absence.EmployeeID,
			&absence.StartDate,
			&absence.EndDate,
			&absence.Reason,
			&absence.Status,
			&absence.CreatedAt,
			&absence.Version,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		absences = append(absences, &absence)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return absences, nil
}

// UpdateAbsenceStatus 提交审批结果，本核心对缺勤记录只有这一种写操作
func (r *Repository) UpdateAbsenceStatus(absence *domain.Absence, status domain.AbsenceStatus) error {
	query := `
		UPDATE absences
		SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3 AND version = $4
		RETURNING version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{status, absence.ID, absence.Status, absence.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(&absence.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}

	absence.Status = status
	return nil
}
