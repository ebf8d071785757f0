package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// ClassRepository reads class sections and their grade levels.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListSectionsBySchool returns every section of a school joined with its grade level.
func (r *ClassRepository) ListSectionsBySchool(ctx context.Context, exec sqlx.ExtContext, schoolID string) ([]models.ClassSectionDetail, error) {
	const query = `SELECT cs.id, cs.name, cs.shift, cs.grade_level_id, cs.school_id, cs.capacity,
       gl.name AS grade_level_name, gl.ordinal AS grade_level_ordinal, gl.cycle AS grade_level_cycle,
       gl.terminal AS grade_level_terminal
	FROM class_sections cs
	JOIN grade_levels gl ON gl.id = cs.grade_level_id
	WHERE cs.school_id = $1
	ORDER BY gl.ordinal, cs.name, cs.id`
	var sections []models.ClassSectionDetail
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sections, query, schoolID); err != nil {
		return nil, fmt.Errorf("list class sections: %w", err)
	}
	return sections, nil
}
