package models

import (
	"fmt"
	"time"
)

// TransitionState is a step of one transition run.
type TransitionState string

const (
	StateNotStarted         TransitionState = "NOT_STARTED"
	StateYearCreated        TransitionState = "YEAR_CREATED"
	StateEnrollmentsClosed  TransitionState = "ENROLLMENTS_CLOSED"
	StateStudentsClassified TransitionState = "STUDENTS_CLASSIFIED"
	StateEnrollmentsCreated TransitionState = "ENROLLMENTS_CREATED"
	StateAuditRecorded      TransitionState = "AUDIT_RECORDED"
	StateDone               TransitionState = "DONE"
	StateErrorRolledBack    TransitionState = "ERROR_ROLLED_BACK"
)

var transitionEdges = map[TransitionState][]TransitionState{
	StateNotStarted:         {StateYearCreated},
	StateYearCreated:        {StateEnrollmentsClosed},
	StateEnrollmentsClosed:  {StateStudentsClassified},
	StateStudentsClassified: {StateEnrollmentsCreated},
	StateEnrollmentsCreated: {StateAuditRecorded},
	StateAuditRecorded:      {StateDone},
}

// CanTransitionTo reports whether next is a legal successor. ErrorRolledBack is reachable from any non-final state.
func (s TransitionState) CanTransitionTo(next TransitionState) bool {
	if s == StateDone || s == StateErrorRolledBack {
		return false
	}
	if next == StateErrorRolledBack {
		return true
	}
	for _, allowed := range transitionEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the run cannot move further.
func (s TransitionState) Terminal() bool {
	return s == StateDone || s == StateErrorRolledBack
}

// StateMachine tracks the state of a single run and rejects illegal edges.
type StateMachine struct {
	current TransitionState
	history []TransitionState
}

// NewStateMachine starts in NotStarted.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateNotStarted, history: []TransitionState{StateNotStarted}}
}

// Current returns the active state.
func (m *StateMachine) Current() TransitionState {
	return m.current
}

// History returns every state visited, in order.
func (m *StateMachine) History() []TransitionState {
	out := make([]TransitionState, len(m.history))
	copy(out, m.history)
	return out
}

// Advance moves to next or returns an error for an illegal edge.
func (m *StateMachine) Advance(next TransitionState) error {
	if !m.current.CanTransitionTo(next) {
		return fmt.Errorf("illegal transition state change %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}

// StudentOutcome is the classification of one student.
type StudentOutcome string

const (
	OutcomePromoted StudentOutcome = "PROMOVIDO"
	OutcomeRetained StudentOutcome = "RETIDO"
	OutcomeGraduate StudentOutcome = "CONCLUINTE"
	OutcomeExcluded StudentOutcome = "EXCLUIDO"
)

// ReEnrolls reports whether the outcome produces a destination-year enrollment.
func (o StudentOutcome) ReEnrolls() bool {
	return o == OutcomePromoted || o == OutcomeRetained
}

// TransitionRequest carries the inputs of one run.
type TransitionRequest struct {
	RunID          string `json:"-"`
	OriginYear     int    `json:"originYear" validate:"required,min=1900,max=9998"`
	SchoolID       string `json:"schoolId" validate:"required"`
	OperatorID     string `json:"-" validate:"required"`
	DryRun         bool   `json:"dryRun"`
	Password       string `json:"password,omitempty"`
	BackupOverride bool   `json:"backupOverride"`
}

// DestinationYear is always the origin year plus one.
func (r TransitionRequest) DestinationYear() int {
	return r.OriginYear + 1
}

// TransitionCounters are the numbers produced by a run.
type TransitionCounters struct {
	ClosedEnrollments    int `json:"matriculas_encerradas"`
	CreatedEnrollments   int `json:"matriculas_criadas"`
	Promoted             int `json:"alunos_promovidos"`
	Retained             int `json:"alunos_retidos"`
	Graduates            int `json:"alunos_concluintes"`
	Excluded             int `json:"alunos_excluir"`
	DuplicateEnrollments int `json:"matriculas_duplicadas"`
	WithoutProgression   int `json:"alunos_sem_progressao"`
}

// StudentPlacement is the decision taken for one student.
type StudentPlacement struct {
	StudentID            string         `json:"student_id"`
	StudentName          string         `json:"student_name,omitempty"`
	OriginEnrollmentID   string         `json:"origin_enrollment_id"`
	OriginSectionID      string         `json:"origin_section_id"`
	DestinationSectionID string         `json:"destination_section_id,omitempty"`
	Outcome              StudentOutcome `json:"outcome"`
	Average              float64        `json:"average"`
	HasGrades            bool           `json:"has_grades"`
	NoProgression        bool           `json:"no_progression,omitempty"`
}

// TransitionResult is returned to the caller and handed to the report generator.
type TransitionResult struct {
	RunID           string             `json:"run_id"`
	OriginYear      int                `json:"origin_year"`
	DestinationYear int                `json:"destination_year"`
	SchoolID        string             `json:"school_id"`
	OperatorID      string             `json:"operator_id"`
	DryRun          bool               `json:"dry_run"`
	Counters        TransitionCounters `json:"counters"`
	Status          AuditStatus        `json:"status"`
	State           TransitionState    `json:"state"`
	States          []TransitionState  `json:"states,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	DurationSeconds float64            `json:"duracao_segundos"`
	Placements      []StudentPlacement `json:"placements,omitempty"`
	Error           string             `json:"error,omitempty"`
	ReportPath      string             `json:"report_path,omitempty"`
	ReportToken     string             `json:"report_token,omitempty"`
}

// ReportPayload is the counters object handed to the report generator.
func (r TransitionResult) ReportPayload() map[string]interface{} {
	return map[string]interface{}{
		"matriculas_encerradas": r.Counters.ClosedEnrollments,
		"matriculas_criadas":    r.Counters.CreatedEnrollments,
		"alunos_promovidos":     r.Counters.Promoted,
		"alunos_retidos":        r.Counters.Retained,
		"alunos_concluintes":    r.Counters.Graduates,
		"status":                string(r.Status),
		"duracao_segundos":      r.DurationSeconds,
	}
}

// ProgressEvent is emitted as a run moves through its states.
type ProgressEvent struct {
	RunID   string          `json:"run_id"`
	State   TransitionState `json:"state"`
	Message string          `json:"message"`
	At      time.Time       `json:"at"`
}

// ProgressFunc consumes progress events. Implementations must not block for long.
type ProgressFunc func(ProgressEvent)

// PreconditionReport summarises whether a run may start.
type PreconditionReport struct {
	OriginYear        int                  `json:"origin_year"`
	SchoolID          string               `json:"school_id"`
	CalendarEnded     bool                 `json:"calendar_ended"`
	CalendarEnd       time.Time            `json:"calendar_end"`
	PendingGrades     *PendingGradesReport `json:"pending_grades,omitempty"`
	PendingSummary    PendingSummary       `json:"pending_summary"`
	ActiveEnrollments int                  `json:"active_enrollments"`
	Ready             bool                 `json:"ready"`
}
