package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

func TestGradeRepositoryListYearScores(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "subject_id", "school_year_id", "term", "score"}).
		AddRow("stu-1", "mat", "sy-2025", 1, 70.0).
		AddRow("stu-1", "mat", "sy-2025", 2, 80.5)
	mock.ExpectQuery("SELECT DISTINCT ON \\(g.student_id, g.subject_id, g.term\\)").
		WithArgs("sy-2025", "school-1").
		WillReturnRows(rows)

	records, err := repo.ListYearScores(context.Background(), nil, "sy-2025", "school-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.TermSecond, records[1].Term)
	assert.InDelta(t, 80.5, records[1].Score, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"grade_level_name", "section_id", "section_name", "shift", "student_id", "student_name",
		"subject_id", "subject_name", "class_size"}).
		AddRow("6º Ano", "sec-6a", "6º A", "MATUTINO", "stu-1", "Ana", "mat", "Matemática", 2)
	mock.ExpectQuery("AND NOT EXISTS").
		WithArgs(int64(3), string(models.CycleFinalYears), "sy-2025", "school-1", string(models.EnrollmentStatusActive)).
		WillReturnRows(rows)

	missing, err := repo.ListMissing(context.Background(), models.TermThird, models.CycleFinalYears, "sy-2025", "school-1")
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "Matemática", missing[0].SubjectName)
	assert.Equal(t, 2, missing[0].ClassSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListMissingWrapsError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery("AND NOT EXISTS").WillReturnError(errors.New("connection reset"))

	_, err := repo.ListMissing(context.Background(), models.TermFirst, models.CycleEarlyYears, "sy-2025", "school-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list missing grades")
}
