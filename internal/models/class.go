package models

// Shift is the period of the day a class section meets.
type Shift string

const (
	ShiftMorning   Shift = "MATUTINO"
	ShiftAfternoon Shift = "VESPERTINO"
	ShiftEvening   Shift = "NOTURNO"
	ShiftFullDay   Shift = "INTEGRAL"
)

// TeachingCycle splits the fundamental grades into early and final years.
type TeachingCycle string

const (
	CycleEarlyYears TeachingCycle = "ANOS_INICIAIS"
	CycleFinalYears TeachingCycle = "ANOS_FINAIS"
)

// AllCycles lists the cycles scanned by the pending-grades validator.
var AllCycles = []TeachingCycle{CycleEarlyYears, CycleFinalYears}

// GradeLevel is an ordered academic grade (série/ano). Ordinal defines progression order.
type GradeLevel struct {
	ID       string        `db:"id" json:"id"`
	Name     string        `db:"name" json:"name"`
	Ordinal  int           `db:"ordinal" json:"ordinal"`
	Cycle    TeachingCycle `db:"cycle" json:"cycle"`
	Terminal bool          `db:"terminal" json:"terminal"`
}

// ClassSection is a turma belonging to one school and one grade level.
type ClassSection struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Shift        Shift  `db:"shift" json:"shift"`
	GradeLevelID string `db:"grade_level_id" json:"grade_level_id"`
	SchoolID     string `db:"school_id" json:"school_id"`
	Capacity     int    `db:"capacity" json:"capacity"`
}

// ClassSectionDetail joins the grade level fields needed for progression.
type ClassSectionDetail struct {
	ClassSection
	GradeLevelName     string        `db:"grade_level_name" json:"grade_level_name"`
	GradeLevelOrdinal  int           `db:"grade_level_ordinal" json:"grade_level_ordinal"`
	GradeLevelCycle    TeachingCycle `db:"grade_level_cycle" json:"grade_level_cycle"`
	GradeLevelTerminal bool          `db:"grade_level_terminal" json:"grade_level_terminal"`
}
