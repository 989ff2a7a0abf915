package repository

import (
	"context"
	"errors"
	"time"

	"database/sql"

	"github.com/sysu-ecnc-dev/duty-roster/backend/internal/domain"
)

func (r *Repository) GetPeriodByScope(scope domain.Scope) (*domain.PlanningPeriod, error) {
	query := `
		SELECT id, status, archived, created_at, version
		FROM planning_periods
		WHERE year = $1 AND month = $2 AND week = $3 AND department = $4
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	period := &domain.PlanningPeriod{
		Scope: scope,
	}

	dst := []any{
		&period.ID,
		&period.Status,
		&period.Archived,
		&period.CreatedAt,
		&period.Version,
	}

	if err := r.dbpool.QueryRowContext(ctx, query, scope.Year, scope.Month, scope.Week, scope.Department).Scan(dst...); err != nil {
		return nil, err
	}

	return period, nil
}

func (r *Repository) CreatePeriod(period *domain.PlanningPeriod) error {
	query := `
		INSERT INTO planning_periods (year, month, week, department, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, archived, created_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{
		period.Scope.Year,
		period.Scope.Month,
		period.Scope.Week,
		period.Scope.Department,
		period.Status,
	}
	dst := []any{&period.ID, &period.Archived, &period.CreatedAt, &period.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(dst...); err != nil {
		return err
	}

	return nil
}

// UpdatePeriodStatus 以条件更新的方式提交状态转移
// WHERE 中同时带上旧状态和版本号，并发的转移只会有一个成功
func (r *Repository) UpdatePeriodStatus(period *domain.PlanningPeriod, status domain.PlanStatus) error {
	query := `
		UPDATE planning_periods
		SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3 AND version = $4
		RETURNING version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	params := []any{status, period.ID, period.Status, period.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, params...).Scan(&period.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// 状态在这期间被别的会话改掉了
			return domain.ErrNotFound
		}
		return err
	}

	period.Status = status
	return nil
}

// ArchivePeriod 软归档一个排班周期，已发布的周期不会被物理删除
func (r *Repository) ArchivePeriod(period *domain.PlanningPeriod) error {
	query := `
		UPDATE planning_periods
		SET archived = TRUE, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if err := r.dbpool.QueryRowContext(ctx, query, period.ID, period.Version).Scan(&period.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}

	period.Archived = true
	return nil
}
