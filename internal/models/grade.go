package models

// Term is one of the four bimestres of a school year.
type Term int

const (
	TermFirst  Term = 1
	TermSecond Term = 2
	TermThird  Term = 3
	TermFourth Term = 4
)

// AllTerms lists every term in calendar order.
var AllTerms = []Term{TermFirst, TermSecond, TermThird, TermFourth}

// Valid reports whether the term is within 1..4.
func (t Term) Valid() bool {
	return t >= TermFirst && t <= TermFourth
}

// GradeRecord is one score for (student, subject, year, term) on a 0-100 scale.
type GradeRecord struct {
	StudentID    string  `db:"student_id" json:"student_id"`
	SubjectID    string  `db:"subject_id" json:"subject_id"`
	SchoolYearID string  `db:"school_year_id" json:"school_year_id"`
	Term         Term    `db:"term" json:"term"`
	Score        float64 `db:"score" json:"score"`
}

// StudentAverage is the final average derived from a student's grade records.
type StudentAverage struct {
	StudentID    string             `json:"student_id"`
	Average      float64            `json:"average"`
	HasRecords   bool               `json:"has_records"`
	SubjectFinal map[string]float64 `json:"subject_final,omitempty"`
}

// MissingGrade is a (section, student, subject) tuple lacking a score for one term.
type MissingGrade struct {
	GradeLevelName string `db:"grade_level_name"`
	SectionID      string `db:"section_id"`
	SectionName    string `db:"section_name"`
	Shift          Shift  `db:"shift"`
	StudentID      string `db:"student_id"`
	StudentName    string `db:"student_name"`
	SubjectID      string `db:"subject_id"`
	SubjectName    string `db:"subject_name"`
	ClassSize      int    `db:"class_size"`
}
