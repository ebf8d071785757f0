package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	"github.com/noah-isme/ano-letivo-api/internal/repository"
)

type fakeSchoolState struct {
	years       []models.SchoolYear
	enrollments []models.EnrollmentSnapshot
	sections    []models.ClassSectionDetail
	grades      []models.GradeRecord
}

func (s fakeSchoolState) clone() fakeSchoolState {
	out := fakeSchoolState{
		years:       append([]models.SchoolYear(nil), s.years...),
		enrollments: append([]models.EnrollmentSnapshot(nil), s.enrollments...),
		sections:    append([]models.ClassSectionDetail(nil), s.sections...),
		grades:      append([]models.GradeRecord(nil), s.grades...),
	}
	return out
}

func (s fakeSchoolState) year(year int) (*models.SchoolYear, bool) {
	for _, y := range s.years {
		if y.Year == year {
			y := y
			return &y, true
		}
	}
	return nil, false
}

func (s fakeSchoolState) sectionSchool(sectionID string) string {
	for _, section := range s.sections {
		if section.ID == sectionID {
			return section.SchoolID
		}
	}
	return ""
}

// fakeTransitionStore is an in-memory unit of work: Begin copies the committed state and Commit swaps it back.
type fakeTransitionStore struct {
	mu        sync.Mutex
	committed fakeSchoolState
	begins    int
	nextID    int

	failOn      string
	failAfter   int
	failCounter int
}

func newFakeTransitionStore(state fakeSchoolState) *fakeTransitionStore {
	return &fakeTransitionStore{committed: state}
}

func (s *fakeTransitionStore) Begin(ctx context.Context) (repository.TransitionTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	if s.failOn == "begin" {
		return nil, errors.New("connection refused")
	}
	return &fakeTransitionTx{store: s, state: s.committed.clone()}, nil
}

func (s *fakeTransitionStore) FindByYear(ctx context.Context, exec sqlx.ExtContext, year int) (*models.SchoolYear, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if y, ok := s.committed.year(year); ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

func (s *fakeTransitionStore) CountActive(ctx context.Context, exec sqlx.ExtContext, schoolYearID, schoolID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(schoolYearID, schoolID, true), nil
}

func (s *fakeTransitionStore) countLocked(schoolYearID, schoolID string, activeOnly bool) int {
	total := 0
	for _, e := range s.committed.enrollments {
		if e.SchoolYearID != schoolYearID || s.committed.sectionSchool(e.ClassSectionID) != schoolID {
			continue
		}
		if activeOnly && e.Status != models.EnrollmentStatusActive {
			continue
		}
		total++
	}
	return total
}

func (s *fakeTransitionStore) activeIn(schoolYearID, schoolID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(schoolYearID, schoolID, true)
}

func (s *fakeTransitionStore) allIn(schoolYearID, schoolID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(schoolYearID, schoolID, false)
}

func (s *fakeTransitionStore) yearCount(year int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, y := range s.committed.years {
		if y.Year == year {
			total++
		}
	}
	return total
}

func (s *fakeTransitionStore) enrollmentsFor(studentID, schoolYearID string) []models.EnrollmentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EnrollmentSnapshot
	for _, e := range s.committed.enrollments {
		if e.StudentID == studentID && e.SchoolYearID == schoolYearID {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeTransitionStore) shouldFail(step string) bool {
	if s.failOn != step {
		return false
	}
	s.failCounter++
	return s.failCounter > s.failAfter
}

type fakeTransitionTx struct {
	store *fakeTransitionStore
	state fakeSchoolState
	done  bool
}

func (t *fakeTransitionTx) FindSchoolYear(ctx context.Context, year int) (*models.SchoolYear, error) {
	if y, ok := t.state.year(year); ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

func (t *fakeTransitionTx) EnsureSchoolYear(ctx context.Context, year int) (*models.SchoolYear, bool, error) {
	if t.store.shouldFail("ensure") {
		return nil, false, errors.New("ensure failed")
	}
	if y, ok := t.state.year(year); ok {
		return y, false, nil
	}
	y := models.SchoolYear{ID: fmt.Sprintf("sy-%d", year), Year: year, CreatedAt: time.Now()}
	t.state.years = append(t.state.years, y)
	return &y, true, nil
}

func (t *fakeTransitionTx) ListEnrollments(ctx context.Context, schoolYearID, schoolID string) ([]models.EnrollmentSnapshot, error) {
	var out []models.EnrollmentSnapshot
	for _, e := range t.state.enrollments {
		if e.SchoolYearID == schoolYearID && t.state.sectionSchool(e.ClassSectionID) == schoolID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *fakeTransitionTx) CountActiveEnrollments(ctx context.Context, schoolYearID, schoolID string) (int, error) {
	total := 0
	for _, e := range t.state.enrollments {
		if e.SchoolYearID == schoolYearID && e.Status == models.EnrollmentStatusActive && t.state.sectionSchool(e.ClassSectionID) == schoolID {
			total++
		}
	}
	return total, nil
}

func (t *fakeTransitionTx) CloseActiveEnrollments(ctx context.Context, schoolYearID, schoolID string, at time.Time) (int, error) {
	if t.store.shouldFail("close") {
		return 0, errors.New("close failed")
	}
	closed := 0
	for i, e := range t.state.enrollments {
		if e.SchoolYearID == schoolYearID && e.Status == models.EnrollmentStatusActive && t.state.sectionSchool(e.ClassSectionID) == schoolID {
			t.state.enrollments[i].Status = models.EnrollmentStatusConcluded
			t.state.enrollments[i].UpdatedAt = at
			closed++
		}
	}
	return closed, nil
}

func (t *fakeTransitionTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if t.store.shouldFail("create") {
		return errors.New("insert failed")
	}
	t.store.mu.Lock()
	t.store.nextID++
	enrollment.ID = fmt.Sprintf("new-%03d", t.store.nextID)
	t.store.mu.Unlock()
	t.state.enrollments = append(t.state.enrollments, models.EnrollmentSnapshot{Enrollment: *enrollment})
	return nil
}

func (t *fakeTransitionTx) ListSections(ctx context.Context, schoolID string) ([]models.ClassSectionDetail, error) {
	var out []models.ClassSectionDetail
	for _, s := range t.state.sections {
		if s.SchoolID == schoolID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *fakeTransitionTx) ListYearScores(ctx context.Context, schoolYearID, schoolID string) ([]models.GradeRecord, error) {
	if t.store.shouldFail("scores") {
		return nil, errors.New("scores failed")
	}
	var out []models.GradeRecord
	for _, g := range t.state.grades {
		if g.SchoolYearID == schoolYearID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (t *fakeTransitionTx) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	if t.store.shouldFail("commit") {
		return errors.New("commit failed")
	}
	t.done = true
	t.store.mu.Lock()
	t.store.committed = t.state
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTransitionTx) Rollback() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	if t.store.shouldFail("rollback") {
		return errors.New("connection reset")
	}
	return nil
}

type fakePendingValidator struct {
	report *models.PendingGradesReport
	err    error
	calls  int
}

func (f *fakePendingValidator) Validate(ctx context.Context, year int, schoolID string) (*models.PendingGradesReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &models.PendingGradesReport{Year: year, SchoolID: schoolID}, nil
}

type fakeAuditWriter struct {
	audits []models.TransitionAudit
	err    error
}

func (f *fakeAuditWriter) Create(ctx context.Context, audit *models.TransitionAudit) error {
	if f.err != nil {
		return f.err
	}
	f.audits = append(f.audits, *audit)
	return nil
}

type fakeReauth struct {
	password string
	calls    int
}

func (f *fakeReauth) Reauthenticate(ctx context.Context, operatorID, secret string) error {
	f.calls++
	if secret != f.password {
		return errReauthForTest
	}
	return nil
}

type fakeBackup struct {
	err   error
	calls int
}

func (f *fakeBackup) Ensure(ctx context.Context, override bool) (*BackupResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &BackupResult{File: "backup_test.sql", Reused: true}, nil
}

type fakeReports struct {
	results []models.TransitionResult
	err     error
}

func (f *fakeReports) Generate(ctx context.Context, result *models.TransitionResult) (*ReportArtifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.results = append(f.results, *result)
	return &ReportArtifact{RelativePath: "transicoes/x.pdf", Token: "token"}, nil
}
