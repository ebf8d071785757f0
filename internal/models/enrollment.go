package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment (matrícula).
type EnrollmentStatus string

// Enrollment statuses. Transitions only move forward from Active.
const (
	EnrollmentStatusActive      EnrollmentStatus = "ATIVO"
	EnrollmentStatusConcluded   EnrollmentStatus = "CONCLUIDO"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERIDO"
	EnrollmentStatusCancelled   EnrollmentStatus = "CANCELADO"
	EnrollmentStatusDropped     EnrollmentStatus = "EVADIDO"
)

// Valid reports whether the status belongs to the closed set.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusConcluded, EnrollmentStatusTransferred,
		EnrollmentStatusCancelled, EnrollmentStatusDropped:
		return true
	default:
		return false
	}
}

// Excludes reports whether a student whose latest enrollment has this status leaves the network.
func (s EnrollmentStatus) Excludes() bool {
	switch s {
	case EnrollmentStatusTransferred, EnrollmentStatusCancelled, EnrollmentStatusDropped:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces forward-only status changes.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	return s == EnrollmentStatusActive && next != EnrollmentStatusActive && next.Valid()
}

// Enrollment binds one student to one class section within one school year.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassSectionID string           `db:"class_section_id" json:"class_section_id"`
	SchoolYearID   string           `db:"school_year_id" json:"school_year_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt     time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentSnapshot is an origin-year enrollment as read at the start of a transition.
type EnrollmentSnapshot struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
}
