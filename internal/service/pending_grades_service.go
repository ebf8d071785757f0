package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/ano-letivo-api/internal/models"
	appErrors "github.com/noah-isme/ano-letivo-api/pkg/errors"
)

type missingGradeReader interface {
	ListMissing(ctx context.Context, term models.Term, cycle models.TeachingCycle, schoolYearID, schoolID string) ([]models.MissingGrade, error)
}

type schoolYearReader interface {
	FindByYear(ctx context.Context, exec sqlx.ExtContext, year int) (*models.SchoolYear, error)
}

// PendingGradesService scans the grade ledger for missing term scores.
type PendingGradesService struct {
	grades missingGradeReader
	years  schoolYearReader
	logger *zap.Logger
}

// NewPendingGradesService constructs the validator.
func NewPendingGradesService(grades missingGradeReader, years schoolYearReader, logger *zap.Logger) *PendingGradesService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PendingGradesService{grades: grades, years: years, logger: logger}
}

// Validate checks all four terms for both teaching cycles. A failed lookup is recorded as a
// blocking error entry so the report never claims completeness it could not verify.
func (s *PendingGradesService) Validate(ctx context.Context, year int, schoolID string) (*models.PendingGradesReport, error) {
	if year <= 0 || schoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year and schoolId are required")
	}
	report := &models.PendingGradesReport{Year: year, SchoolID: schoolID}

	schoolYear, err := s.years.FindByYear(ctx, nil, year)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("school year %d not found", year))
		}
		s.logger.Error("pending grades lookup failed", zap.Int("year", year), zap.String("school_id", schoolID), zap.Error(err))
		report.Errors = append(report.Errors, models.PendingError{Message: fmt.Sprintf("load school year: %v", err)})
		return report, nil
	}

	for _, term := range models.AllTerms {
		for _, cycle := range models.AllCycles {
			missing, err := s.grades.ListMissing(ctx, term, cycle, schoolYear.ID, schoolID)
			if err != nil {
				s.logger.Error("pending grades lookup failed",
					zap.Int("year", year), zap.String("school_id", schoolID),
					zap.Int("term", int(term)), zap.String("cycle", string(cycle)), zap.Error(err))
				report.Errors = append(report.Errors, models.PendingError{Term: term, Cycle: cycle, Message: err.Error()})
				continue
			}
			report.Sections = append(report.Sections, groupMissing(term, cycle, missing)...)
		}
	}
	report.Sort()

	if report.HasPendencies() {
		summary := report.Summary()
		s.logger.Info("pending grades found",
			zap.Int("year", year), zap.String("school_id", schoolID),
			zap.Int("sections", summary.Sections), zap.Int("students", summary.Students), zap.Int("errors", summary.Errors))
	}
	return report, nil
}

// groupMissing folds missing tuples into per-section entries. A subject missing for every student
// of a section is reported once as having no scores at all instead of per student.
func groupMissing(term models.Term, cycle models.TeachingCycle, missing []models.MissingGrade) []models.PendingSection {
	type sectionAcc struct {
		section      models.PendingSection
		classSize    int
		bySubject    map[string]map[string]struct{}
		subjectNames map[string]string
		studentNames map[string]string
		subjectOrder []string
		studentOrder []string
	}
	accs := make(map[string]*sectionAcc)
	order := make([]string, 0)
	for _, m := range missing {
		acc, ok := accs[m.SectionID]
		if !ok {
			acc = &sectionAcc{
				section: models.PendingSection{
					Key:      models.PendingSectionKey{GradeLevel: m.GradeLevelName, Section: m.SectionName, Shift: m.Shift},
					Term:     term,
					Cycle:    cycle,
					Students: make(map[string]*models.PendingStudent),
				},
				classSize:    m.ClassSize,
				bySubject:    make(map[string]map[string]struct{}),
				subjectNames: make(map[string]string),
				studentNames: make(map[string]string),
			}
			accs[m.SectionID] = acc
			order = append(order, m.SectionID)
		}
		if _, seen := acc.bySubject[m.SubjectID]; !seen {
			acc.bySubject[m.SubjectID] = make(map[string]struct{})
			acc.subjectNames[m.SubjectID] = m.SubjectName
			acc.subjectOrder = append(acc.subjectOrder, m.SubjectID)
		}
		acc.bySubject[m.SubjectID][m.StudentID] = struct{}{}
		if _, seen := acc.studentNames[m.StudentID]; !seen {
			acc.studentNames[m.StudentID] = m.StudentName
			acc.studentOrder = append(acc.studentOrder, m.StudentID)
		}
	}

	sections := make([]models.PendingSection, 0, len(order))
	for _, sectionID := range order {
		acc := accs[sectionID]
		wholeClass := make(map[string]bool)
		for _, subjectID := range acc.subjectOrder {
			if acc.classSize > 0 && len(acc.bySubject[subjectID]) >= acc.classSize {
				wholeClass[subjectID] = true
				acc.section.SubjectsWithoutScores = append(acc.section.SubjectsWithoutScores, acc.subjectNames[subjectID])
			}
		}
		for _, studentID := range acc.studentOrder {
			var subjects []string
			for _, subjectID := range acc.subjectOrder {
				if wholeClass[subjectID] {
					continue
				}
				if _, ok := acc.bySubject[subjectID][studentID]; ok {
					subjects = append(subjects, acc.subjectNames[subjectID])
				}
			}
			if len(subjects) > 0 {
				acc.section.Students[studentID] = &models.PendingStudent{Name: acc.studentNames[studentID], SubjectsMissing: subjects}
			}
		}
		sections = append(sections, acc.section)
	}
	return sections
}
