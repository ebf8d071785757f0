package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// TransitionTx is the unit of work used by one transition run. Every method runs inside the same database transaction.
type TransitionTx interface {
	FindSchoolYear(ctx context.Context, year int) (*models.SchoolYear, error)
	EnsureSchoolYear(ctx context.Context, year int) (*models.SchoolYear, bool, error)
	ListEnrollments(ctx context.Context, schoolYearID, schoolID string) ([]models.EnrollmentSnapshot, error)
	CountActiveEnrollments(ctx context.Context, schoolYearID, schoolID string) (int, error)
	CloseActiveEnrollments(ctx context.Context, schoolYearID, schoolID string, at time.Time) (int, error)
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	ListSections(ctx context.Context, schoolID string) ([]models.ClassSectionDetail, error)
	ListYearScores(ctx context.Context, schoolYearID, schoolID string) ([]models.GradeRecord, error)
	Commit() error
	Rollback() error
}

// TransitionStore opens transition units of work over the shared repositories.
type TransitionStore struct {
	db          *sqlx.DB
	years       *SchoolYearRepository
	enrollments *EnrollmentRepository
	classes     *ClassRepository
	grades      *GradeRepository
}

// NewTransitionStore wires the store.
func NewTransitionStore(db *sqlx.DB, years *SchoolYearRepository, enrollments *EnrollmentRepository, classes *ClassRepository, grades *GradeRepository) *TransitionStore {
	return &TransitionStore{db: db, years: years, enrollments: enrollments, classes: classes, grades: grades}
}

// Begin starts a transaction.
func (s *TransitionStore) Begin(ctx context.Context) (TransitionTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition transaction: %w", err)
	}
	return &sqlTransitionTx{tx: tx, store: s}, nil
}

type sqlTransitionTx struct {
	tx    *sqlx.Tx
	store *TransitionStore
}

func (t *sqlTransitionTx) FindSchoolYear(ctx context.Context, year int) (*models.SchoolYear, error) {
	return t.store.years.FindByYear(ctx, t.tx, year)
}

func (t *sqlTransitionTx) EnsureSchoolYear(ctx context.Context, year int) (*models.SchoolYear, bool, error) {
	return t.store.years.Ensure(ctx, t.tx, year)
}

func (t *sqlTransitionTx) ListEnrollments(ctx context.Context, schoolYearID, schoolID string) ([]models.EnrollmentSnapshot, error) {
	return t.store.enrollments.ListForYear(ctx, t.tx, schoolYearID, schoolID)
}

func (t *sqlTransitionTx) CountActiveEnrollments(ctx context.Context, schoolYearID, schoolID string) (int, error) {
	return t.store.enrollments.CountActive(ctx, t.tx, schoolYearID, schoolID)
}

func (t *sqlTransitionTx) CloseActiveEnrollments(ctx context.Context, schoolYearID, schoolID string, at time.Time) (int, error) {
	return t.store.enrollments.CloseActive(ctx, t.tx, schoolYearID, schoolID, at)
}

func (t *sqlTransitionTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	return t.store.enrollments.Create(ctx, t.tx, enrollment)
}

func (t *sqlTransitionTx) ListSections(ctx context.Context, schoolID string) ([]models.ClassSectionDetail, error) {
	return t.store.classes.ListSectionsBySchool(ctx, t.tx, schoolID)
}

func (t *sqlTransitionTx) ListYearScores(ctx context.Context, schoolYearID, schoolID string) ([]models.GradeRecord, error) {
	return t.store.grades.ListYearScores(ctx, t.tx, schoolYearID, schoolID)
}

func (t *sqlTransitionTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transition transaction: %w", err)
	}
	return nil
}

func (t *sqlTransitionTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transition transaction: %w", err)
	}
	return nil
}
