package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditStatus is the outcome recorded for a transition attempt.
type AuditStatus string

const (
	AuditStatusSuccess  AuditStatus = "sucesso"
	AuditStatusError    AuditStatus = "erro"
	AuditStatusRollback AuditStatus = "rollback"
)

// TransitionAudit is an append-only record of one transition attempt.
type TransitionAudit struct {
	ID                 string         `db:"id" json:"id"`
	OriginYear         int            `db:"origin_year" json:"origin_year"`
	DestinationYear    int            `db:"destination_year" json:"destination_year"`
	SchoolID           string         `db:"school_id" json:"school_id"`
	OperatorID         string         `db:"operator_id" json:"operator_id"`
	ClosedEnrollments  int            `db:"matriculas_encerradas" json:"matriculas_encerradas"`
	CreatedEnrollments int            `db:"matriculas_criadas" json:"matriculas_criadas"`
	Promoted           int            `db:"alunos_promovidos" json:"alunos_promovidos"`
	Retained           int            `db:"alunos_retidos" json:"alunos_retidos"`
	Graduates          int            `db:"alunos_concluintes" json:"alunos_concluintes"`
	Status             AuditStatus    `db:"status" json:"status"`
	Detail             types.JSONText `db:"detail" json:"detail,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	SchoolID   string
	OriginYear int
	Page       int
	PageSize   int
}

// Pagination is the paging block of list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// Pagination describes the page the filter selected out of total audits.
func (f AuditFilter) Pagination(total int) *Pagination {
	return &Pagination{Page: f.Page, PageSize: f.PageSize, TotalCount: total}
}
