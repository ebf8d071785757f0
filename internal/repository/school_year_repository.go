package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// SchoolYearRepository persists academic years.
type SchoolYearRepository struct {
	db *sqlx.DB
}

// NewSchoolYearRepository constructs the repository.
func NewSchoolYearRepository(db *sqlx.DB) *SchoolYearRepository {
	return &SchoolYearRepository{db: db}
}

func (r *SchoolYearRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByYear returns the school year for a numeric year. sql.ErrNoRows is returned unwrapped.
func (r *SchoolYearRepository) FindByYear(ctx context.Context, exec sqlx.ExtContext, year int) (*models.SchoolYear, error) {
	const query = `SELECT id, year, start_date, end_date, created_at FROM school_years WHERE year = $1`
	var sy models.SchoolYear
	if err := sqlx.GetContext(ctx, r.exec(exec), &sy, query, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find school year: %w", err)
	}
	return &sy, nil
}

// Ensure creates the year when absent and returns the stored row. created is false when the row already existed.
func (r *SchoolYearRepository) Ensure(ctx context.Context, exec sqlx.ExtContext, year int) (*models.SchoolYear, bool, error) {
	target := r.exec(exec)
	const insert = `INSERT INTO school_years (id, year, start_date, end_date, created_at)
	VALUES ($1, $2, NULL, NULL, $3)
	ON CONFLICT (year) DO NOTHING`
	res, err := target.ExecContext(ctx, insert, uuid.NewString(), year, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("ensure school year: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("ensure school year rows affected: %w", err)
	}
	sy, err := r.FindByYear(ctx, target, year)
	if err != nil {
		return nil, false, fmt.Errorf("load ensured school year: %w", err)
	}
	return sy, affected > 0, nil
}
