package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// TransitionAuditRepository appends and lists transition audit rows.
type TransitionAuditRepository struct {
	db *sqlx.DB
}

// NewTransitionAuditRepository constructs the repository.
func NewTransitionAuditRepository(db *sqlx.DB) *TransitionAuditRepository {
	return &TransitionAuditRepository{db: db}
}

// Create appends an audit row. Rows are never updated.
func (r *TransitionAuditRepository) Create(ctx context.Context, audit *models.TransitionAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	if len(audit.Detail) == 0 {
		audit.Detail = types.JSONText(`{}`)
	}
	const query = `INSERT INTO transition_audits
	(id, origin_year, destination_year, school_id, operator_id, matriculas_encerradas, matriculas_criadas,
	 alunos_promovidos, alunos_retidos, alunos_concluintes, status, detail, created_at)
	VALUES (:id, :origin_year, :destination_year, :school_id, :operator_id, :matriculas_encerradas, :matriculas_criadas,
	 :alunos_promovidos, :alunos_retidos, :alunos_concluintes, :status, :detail, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("create transition audit: %w", err)
	}
	return nil
}

// List returns audits newest first together with the total count.
func (r *TransitionAuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.TransitionAudit, int, error) {
	var conditions []string
	var args []interface{}
	if filter.SchoolID != "" {
		args = append(args, filter.SchoolID)
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)))
	}
	if filter.OriginYear > 0 {
		args = append(args, filter.OriginYear)
		conditions = append(conditions, fmt.Sprintf("origin_year = $%d", len(args)))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, origin_year, destination_year, school_id, operator_id, matriculas_encerradas,
       matriculas_criadas, alunos_promovidos, alunos_retidos, alunos_concluintes, status, detail, created_at
	FROM transition_audits%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, size, offset)
	var audits []models.TransitionAudit
	if err := r.db.SelectContext(ctx, &audits, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list transition audits: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM transition_audits"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count transition audits: %w", err)
	}
	return audits, total, nil
}
