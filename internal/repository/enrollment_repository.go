package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments (matrículas).
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListForYear returns every enrollment of the school in the given year, any status,
// ordered by student, enrollment date and id.
func (r *EnrollmentRepository) ListForYear(ctx context.Context, exec sqlx.ExtContext, schoolYearID, schoolID string) ([]models.EnrollmentSnapshot, error) {
	const query = `SELECT e.id, e.student_id, e.class_section_id, e.school_year_id, e.status, e.enrolled_at, e.updated_at,
       s.full_name AS student_name
	FROM enrollments e
	JOIN class_sections cs ON cs.id = e.class_section_id
	JOIN students s ON s.id = e.student_id
	WHERE e.school_year_id = $1 AND cs.school_id = $2
	ORDER BY e.student_id, e.enrolled_at, e.id`
	var rows []models.EnrollmentSnapshot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, schoolYearID, schoolID); err != nil {
		return nil, fmt.Errorf("list enrollments for year: %w", err)
	}
	return rows, nil
}

// CountActive counts active enrollments of the school in the given year.
func (r *EnrollmentRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, schoolYearID, schoolID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments e
	JOIN class_sections cs ON cs.id = e.class_section_id
	WHERE e.school_year_id = $1 AND cs.school_id = $2 AND e.status = $3`
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, schoolYearID, schoolID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return total, nil
}

// CloseActive moves every active enrollment of (year, school) to Concluded in a single statement.
func (r *EnrollmentRepository) CloseActive(ctx context.Context, exec sqlx.ExtContext, schoolYearID, schoolID string, at time.Time) (int, error) {
	const query = `UPDATE enrollments e SET status = $1, updated_at = $2
	FROM class_sections cs
	WHERE cs.id = e.class_section_id AND e.school_year_id = $3 AND cs.school_id = $4 AND e.status = $5`
	res, err := r.exec(exec).ExecContext(ctx, query, models.EnrollmentStatusConcluded, at, schoolYearID, schoolID, models.EnrollmentStatusActive)
	if err != nil {
		return 0, fmt.Errorf("close active enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close active enrollments rows affected: %w", err)
	}
	return int(affected), nil
}

// Create inserts a new enrollment, defaulting id, status and timestamps.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, class_section_id, school_year_id, status, enrolled_at, updated_at)
	VALUES (:id, :student_id, :class_section_id, :school_year_id, :status, :enrolled_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}
