package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

type missingKey struct {
	term  models.Term
	cycle models.TeachingCycle
}

type fakeMissingGrades struct {
	rows  map[missingKey][]models.MissingGrade
	errs  map[missingKey]error
	calls int
}

func (f *fakeMissingGrades) ListMissing(ctx context.Context, term models.Term, cycle models.TeachingCycle, schoolYearID, schoolID string) ([]models.MissingGrade, error) {
	f.calls++
	key := missingKey{term, cycle}
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.rows[key], nil
}

type fakeYears struct {
	years map[int]models.SchoolYear
	err   error
}

func (f fakeYears) FindByYear(ctx context.Context, exec sqlx.ExtContext, year int) (*models.SchoolYear, error) {
	if f.err != nil {
		return nil, f.err
	}
	y, ok := f.years[year]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &y, nil
}

func missing(sectionID, studentID, studentName, subjectID string, classSize int) models.MissingGrade {
	return models.MissingGrade{
		GradeLevelName: "6º Ano",
		SectionID:      sectionID,
		SectionName:    "6" + sectionID,
		Shift:          models.ShiftMorning,
		StudentID:      studentID,
		StudentName:    studentName,
		SubjectID:      subjectID,
		SubjectName:    map[string]string{"mat": "Matemática", "por": "Português"}[subjectID],
		ClassSize:      classSize,
	}
}

var years2025 = fakeYears{years: map[int]models.SchoolYear{2025: {ID: "sy-2025", Year: 2025}}}

func TestPendingGradesValidateClean(t *testing.T) {
	grades := &fakeMissingGrades{}
	svc := NewPendingGradesService(grades, years2025, nil)

	report, err := svc.Validate(context.Background(), 2025, "escola-s")
	require.NoError(t, err)
	assert.False(t, report.HasPendencies())
	assert.Equal(t, 8, grades.calls)
}

func TestPendingGradesValidateGroupsBySection(t *testing.T) {
	grades := &fakeMissingGrades{rows: map[missingKey][]models.MissingGrade{
		{models.TermFourth, models.CycleFinalYears}: {
			missing("A", "s1", "Ana", "mat", 3),
			missing("A", "s1", "Ana", "por", 3),
			missing("A", "s2", "Bruno", "por", 3),
			missing("A", "s3", "Carla", "por", 3),
		},
		{models.TermSecond, models.CycleFinalYears}: {
			missing("B", "s9", "Zeca", "mat", 20),
		},
	}}
	svc := NewPendingGradesService(grades, years2025, nil)

	report, err := svc.Validate(context.Background(), 2025, "escola-s")
	require.NoError(t, err)
	require.True(t, report.HasPendencies())
	require.Len(t, report.Sections, 2)

	first := report.Sections[0]
	assert.Equal(t, models.TermSecond, first.Term)
	assert.Equal(t, []string{"Matemática"}, first.Students["s9"].SubjectsMissing)

	whole := report.Sections[1]
	assert.Equal(t, models.TermFourth, whole.Term)
	assert.Equal(t, "6º Ano - 6A (MATUTINO)", whole.Key.String())
	assert.Equal(t, []string{"Português"}, whole.SubjectsWithoutScores)
	require.Len(t, whole.Students, 1)
	assert.Equal(t, "Ana", whole.Students["s1"].Name)
	assert.Equal(t, []string{"Matemática"}, whole.Students["s1"].SubjectsMissing)

	summary := report.Summary()
	assert.Equal(t, 2, summary.Sections)
	assert.Equal(t, 2, summary.Students)
	assert.Equal(t, 1, summary.SubjectsWithoutScores)
}

func TestPendingGradesValidateFailsClosed(t *testing.T) {
	grades := &fakeMissingGrades{errs: map[missingKey]error{
		{models.TermThird, models.CycleEarlyYears}: errors.New("statement timeout"),
	}}
	svc := NewPendingGradesService(grades, years2025, nil)

	report, err := svc.Validate(context.Background(), 2025, "escola-s")
	require.NoError(t, err)
	assert.True(t, report.HasPendencies())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, models.TermThird, report.Errors[0].Term)
	assert.Equal(t, 8, grades.calls)

	broken := NewPendingGradesService(grades, fakeYears{err: errors.New("connection reset")}, nil)
	report, err = broken.Validate(context.Background(), 2025, "escola-s")
	require.NoError(t, err)
	assert.True(t, report.HasPendencies())
}

func TestPendingGradesValidateInputErrors(t *testing.T) {
	svc := NewPendingGradesService(&fakeMissingGrades{}, years2025, nil)

	_, err := svc.Validate(context.Background(), 0, "escola-s")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Validate(context.Background(), 2019, "escola-s")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
