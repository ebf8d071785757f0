package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

func TestTransitionAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTransitionAuditRepository(db)

	mock.ExpectExec("INSERT INTO transition_audits").WillReturnResult(sqlmock.NewResult(1, 1))

	audit := &models.TransitionAudit{OriginYear: 2025, DestinationYear: 2026, SchoolID: "school-1", Status: models.AuditStatusSuccess}
	require.NoError(t, repo.Create(context.Background(), audit))
	assert.NotEmpty(t, audit.ID)
	assert.JSONEq(t, `{}`, string(audit.Detail))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionAuditRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTransitionAuditRepository(db)

	rows := sqlmock.NewRows([]string{"id", "origin_year", "destination_year", "school_id", "operator_id", "matriculas_encerradas",
		"matriculas_criadas", "alunos_promovidos", "alunos_retidos", "alunos_concluintes", "status", "detail", "created_at"}).
		AddRow("aud-1", 2025, 2026, "school-1", "op-1", 3, 2, 1, 1, 1, "sucesso", []byte(`{"alunos_excluir":0}`), time.Now())
	mock.ExpectQuery("FROM transition_audits WHERE school_id = \\$1 AND origin_year = \\$2 ORDER BY created_at DESC LIMIT 20 OFFSET 0").
		WithArgs("school-1", 2025).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transition_audits WHERE school_id = \\$1 AND origin_year = \\$2").
		WithArgs("school-1", 2025).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	audits, total, err := repo.List(context.Background(), models.AuditFilter{SchoolID: "school-1", OriginYear: 2025})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, audits, 1)
	assert.Equal(t, models.AuditStatusSuccess, audits[0].Status)
	assert.Equal(t, 3, audits[0].ClosedEnrollments)
	assert.NoError(t, mock.ExpectationsWereMet())
}
