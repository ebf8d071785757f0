package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// GradeRepository reads the grade ledger. It never writes.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

func (r *GradeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListYearScores returns the latest score per (student, subject, term) for students enrolled at the school in the year.
func (r *GradeRepository) ListYearScores(ctx context.Context, exec sqlx.ExtContext, schoolYearID, schoolID string) ([]models.GradeRecord, error) {
	const query = `SELECT DISTINCT ON (g.student_id, g.subject_id, g.term)
       g.student_id, g.subject_id, g.school_year_id, g.term, g.score
	FROM grades g
	WHERE g.school_year_id = $1
	  AND g.student_id IN (
	    SELECT e.student_id FROM enrollments e
	    JOIN class_sections cs ON cs.id = e.class_section_id
	    WHERE e.school_year_id = $1 AND cs.school_id = $2
	  )
	ORDER BY g.student_id, g.subject_id, g.term, g.updated_at DESC`
	var records []models.GradeRecord
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, schoolYearID, schoolID); err != nil {
		return nil, fmt.Errorf("list year scores: %w", err)
	}
	return records, nil
}

// ListMissing returns (section, student, subject) tuples without a score for the term,
// restricted to active enrollments in sections of the given teaching cycle.
func (r *GradeRepository) ListMissing(ctx context.Context, term models.Term, cycle models.TeachingCycle, schoolYearID, schoolID string) ([]models.MissingGrade, error) {
	const query = `SELECT gl.name AS grade_level_name, cs.id AS section_id, cs.name AS section_name, cs.shift,
       st.id AS student_id, st.full_name AS student_name, sub.id AS subject_id, sub.name AS subject_name,
       (SELECT COUNT(*) FROM enrollments e2
         WHERE e2.class_section_id = cs.id AND e2.school_year_id = $3 AND e2.status = $5) AS class_size
	FROM enrollments e
	JOIN class_sections cs ON cs.id = e.class_section_id
	JOIN grade_levels gl ON gl.id = cs.grade_level_id
	JOIN students st ON st.id = e.student_id
	JOIN grade_level_subjects gls ON gls.grade_level_id = gl.id
	JOIN subjects sub ON sub.id = gls.subject_id
	WHERE e.school_year_id = $3 AND cs.school_id = $4 AND e.status = $5 AND gl.cycle = $2
	  AND NOT EXISTS (
	    SELECT 1 FROM grades g
	    WHERE g.student_id = e.student_id AND g.subject_id = sub.id
	      AND g.school_year_id = e.school_year_id AND g.term = $1
	  )
	ORDER BY gl.ordinal, cs.name, st.full_name, sub.name`
	var missing []models.MissingGrade
	if err := r.db.SelectContext(ctx, &missing, query, term, cycle, schoolYearID, schoolID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list missing grades: %w", err)
	}
	return missing, nil
}
