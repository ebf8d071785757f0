package models

import "time"

// SchoolYear is one academic year (ano letivo) for the whole network.
type SchoolYear struct {
	ID        string     `db:"id" json:"id"`
	Year      int        `db:"year" json:"year"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// EffectiveEnd returns the configured end date or December 31 of the year when unset.
func (y SchoolYear) EffectiveEnd(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if y.EndDate != nil && !y.EndDate.IsZero() {
		d := y.EndDate.In(loc)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(y.Year, time.December, 31, 0, 0, 0, 0, loc)
}

// CalendarEnded reports whether now is strictly after the last calendar day of the year.
func (y SchoolYear) CalendarEnded(now time.Time, loc *time.Location) bool {
	end := y.EffectiveEnd(loc)
	return !now.In(end.Location()).Before(end.AddDate(0, 0, 1))
}
