package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

func TestEnrollmentRepositoryListForYear(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "class_section_id", "school_year_id", "status", "enrolled_at", "updated_at", "student_name"}).
		AddRow("enr-1", "stu-1", "sec-6a", "sy-2025", string(models.EnrollmentStatusActive), now, now, "Ana").
		AddRow("enr-2", "stu-2", "sec-6a", "sy-2025", string(models.EnrollmentStatusTransferred), now, now, "Bruno")
	mock.ExpectQuery("FROM enrollments e\\s+JOIN class_sections cs ON cs.id = e.class_section_id").
		WithArgs("sy-2025", "school-1").
		WillReturnRows(rows)

	list, err := repo.ListForYear(context.Background(), nil, "sy-2025", "school-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ana", list[0].StudentName)
	assert.Equal(t, models.EnrollmentStatusTransferred, list[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCloseActiveIsSchoolScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments e SET status = \\$1, updated_at = \\$2\\s+FROM class_sections cs\\s+WHERE cs.id = e.class_section_id AND e.school_year_id = \\$3 AND cs.school_id = \\$4 AND e.status = \\$5").
		WithArgs(string(models.EnrollmentStatusConcluded), sqlmock.AnyArg(), "sy-2025", "school-1", string(models.EnrollmentStatusActive)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	closed, err := repo.CloseActive(context.Background(), nil, "sy-2025", "school-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollments e").
		WithArgs("sy-2025", "school-1", string(models.EnrollmentStatusActive)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	total, err := repo.CountActive(context.Background(), nil, "sy-2025", "school-1")
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{StudentID: "stu-1", ClassSectionID: "sec-7a", SchoolYearID: "sy-2026"}
	require.NoError(t, repo.Create(context.Background(), nil, enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.False(t, enrollment.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateWrapsError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(errors.New("fk violation"))

	err := repo.Create(context.Background(), nil, &models.Enrollment{StudentID: "stu-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create enrollment")
}
