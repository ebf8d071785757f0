package models

import (
	"fmt"
	"sort"
)

// PendingSectionKey identifies a class section in the pending-grades report.
type PendingSectionKey struct {
	GradeLevel string `json:"serie"`
	Section    string `json:"turma"`
	Shift      Shift  `json:"turno"`
}

// String renders the key as "grade - section (shift)".
func (k PendingSectionKey) String() string {
	return fmt.Sprintf("%s - %s (%s)", k.GradeLevel, k.Section, k.Shift)
}

// PendingStudent lists subjects without a score for a student.
type PendingStudent struct {
	Name            string   `json:"nome"`
	SubjectsMissing []string `json:"disciplinas_sem_nota"`
}

// PendingSection aggregates the pendencies of one class section for one term.
type PendingSection struct {
	Key                   PendingSectionKey          `json:"chave"`
	Term                  Term                       `json:"bimestre"`
	Cycle                 TeachingCycle              `json:"nivel"`
	Students              map[string]*PendingStudent `json:"alunos"`
	SubjectsWithoutScores []string                   `json:"disciplinas_sem_lancamento"`
}

// PendingError records a lookup that could not be completed and therefore blocks the transition.
type PendingError struct {
	Term    Term          `json:"bimestre"`
	Cycle   TeachingCycle `json:"nivel"`
	Message string        `json:"erro"`
}

// PendingGradesReport is the validator output. Empty means no pendencies.
type PendingGradesReport struct {
	Year     int              `json:"ano_letivo"`
	SchoolID string           `json:"escola_id"`
	Sections []PendingSection `json:"pendencias"`
	Errors   []PendingError   `json:"erros,omitempty"`
}

// HasPendencies reports whether anything blocks the transition, including failed lookups.
func (r *PendingGradesReport) HasPendencies() bool {
	return r != nil && (len(r.Sections) > 0 || len(r.Errors) > 0)
}

// Summary counts pendencies for user-facing messages.
func (r *PendingGradesReport) Summary() PendingSummary {
	var s PendingSummary
	if r == nil {
		return s
	}
	s.Sections = len(r.Sections)
	s.Errors = len(r.Errors)
	students := make(map[string]struct{})
	for _, section := range r.Sections {
		for id, st := range section.Students {
			students[id] = struct{}{}
			s.MissingScores += len(st.SubjectsMissing)
		}
		s.SubjectsWithoutScores += len(section.SubjectsWithoutScores)
	}
	s.Students = len(students)
	return s
}

// Sort orders sections by term, then key, so output is deterministic.
func (r *PendingGradesReport) Sort() {
	sort.SliceStable(r.Sections, func(i, j int) bool {
		a, b := r.Sections[i], r.Sections[j]
		if a.Term != b.Term {
			return a.Term < b.Term
		}
		return a.Key.String() < b.Key.String()
	})
}

// PendingSummary condenses a report for dialogs and log lines.
type PendingSummary struct {
	Sections              int `json:"turmas"`
	Students              int `json:"alunos"`
	MissingScores         int `json:"notas_faltantes"`
	SubjectsWithoutScores int `json:"disciplinas_sem_lancamento"`
	Errors                int `json:"erros"`
}
