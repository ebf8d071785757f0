package service

import (
	"math"
	"sort"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// DefaultPassingGrade is the minimum final average for promotion on a 0-100 scale.
const DefaultPassingGrade = 60.0

// ClassificationInput is everything Classify needs. Enrollments are all origin-year enrollments
// of the school, in any status, read before closing.
type ClassificationInput struct {
	Enrollments  []models.EnrollmentSnapshot
	Scores       []models.GradeRecord
	Progression  *ProgressionMap
	PassingGrade float64
}

// Classification is the outcome for every student holding an active origin-year enrollment.
type Classification struct {
	Placements []models.StudentPlacement
	Duplicates []models.EnrollmentSnapshot
	Counters   models.TransitionCounters
}

// Reenrollments returns the placements that produce a destination-year enrollment.
func (c Classification) Reenrollments() []models.StudentPlacement {
	out := make([]models.StudentPlacement, 0, len(c.Placements))
	for _, p := range c.Placements {
		if p.Outcome.ReEnrolls() {
			out = append(out, p)
		}
	}
	return out
}

// FinalAverages computes per-student final averages. A subject's final score is the sum of its
// term scores divided by four, so a missing term counts as zero. The student average is the mean
// over subjects, left unrounded so the passing-grade comparison sees the exact value.
func FinalAverages(scores []models.GradeRecord) map[string]models.StudentAverage {
	type subjectTerms map[models.Term]float64
	perStudent := make(map[string]map[string]subjectTerms)
	for _, record := range scores {
		if !record.Term.Valid() {
			continue
		}
		subjects, ok := perStudent[record.StudentID]
		if !ok {
			subjects = make(map[string]subjectTerms)
			perStudent[record.StudentID] = subjects
		}
		terms, ok := subjects[record.SubjectID]
		if !ok {
			terms = make(subjectTerms)
			subjects[record.SubjectID] = terms
		}
		terms[record.Term] = record.Score
	}

	averages := make(map[string]models.StudentAverage, len(perStudent))
	for studentID, subjects := range perStudent {
		finals := make(map[string]float64, len(subjects))
		var total float64
		for subjectID, terms := range subjects {
			var sum float64
			for _, term := range models.AllTerms {
				sum += terms[term]
			}
			final := sum / float64(len(models.AllTerms))
			finals[subjectID] = final
			total += final
		}
		avg := 0.0
		if len(finals) > 0 {
			avg = total / float64(len(finals))
		}
		averages[studentID] = models.StudentAverage{
			StudentID:    studentID,
			Average:      avg,
			HasRecords:   len(finals) > 0,
			SubjectFinal: finals,
		}
	}
	return averages
}

// Classify decides promotion, retention, graduation or exclusion for every student with an
// active origin-year enrollment. Only the lowest active enrollment id of a student is classified;
// further active enrollments are reported as duplicates.
func Classify(in ClassificationInput) Classification {
	passing := in.PassingGrade
	if passing <= 0 {
		passing = DefaultPassingGrade
	}
	progression := in.Progression
	if progression == nil {
		progression = NewProgressionMap(nil)
	}
	averages := FinalAverages(in.Scores)

	type studentEnrollments struct {
		active []models.EnrollmentSnapshot
		latest models.EnrollmentSnapshot
	}
	byStudent := make(map[string]*studentEnrollments)
	order := make([]string, 0)
	for _, e := range in.Enrollments {
		entry, ok := byStudent[e.StudentID]
		if !ok {
			entry = &studentEnrollments{latest: e}
			byStudent[e.StudentID] = entry
			order = append(order, e.StudentID)
		} else if e.EnrolledAt.After(entry.latest.EnrolledAt) ||
			(e.EnrolledAt.Equal(entry.latest.EnrolledAt) && e.ID > entry.latest.ID) {
			entry.latest = e
		}
		if e.Status == models.EnrollmentStatusActive {
			entry.active = append(entry.active, e)
		}
	}

	var result Classification
	for _, studentID := range order {
		entry := byStudent[studentID]
		if len(entry.active) == 0 {
			continue
		}
		sort.Slice(entry.active, func(i, j int) bool { return entry.active[i].ID < entry.active[j].ID })
		primary := entry.active[0]
		if len(entry.active) > 1 {
			result.Duplicates = append(result.Duplicates, entry.active[1:]...)
			result.Counters.DuplicateEnrollments += len(entry.active) - 1
		}

		avg := averages[studentID]
		placement := models.StudentPlacement{
			StudentID:          studentID,
			StudentName:        primary.StudentName,
			OriginEnrollmentID: primary.ID,
			OriginSectionID:    primary.ClassSectionID,
			Average:            math.Round(avg.Average*100) / 100,
			HasGrades:          avg.HasRecords,
		}

		retained := !avg.HasRecords || avg.Average < passing
		switch {
		case entry.latest.Status.Excludes():
			placement.Outcome = models.OutcomeExcluded
			result.Counters.Excluded++
		case retained:
			placement.Outcome = models.OutcomeRetained
			placement.DestinationSectionID = primary.ClassSectionID
			result.Counters.Retained++
		case progression.IsTerminal(primary.ClassSectionID):
			placement.Outcome = models.OutcomeGraduate
			result.Counters.Graduates++
		default:
			if next, ok := progression.Next(primary.ClassSectionID); ok {
				placement.Outcome = models.OutcomePromoted
				placement.DestinationSectionID = next
				result.Counters.Promoted++
			} else {
				placement.Outcome = models.OutcomeRetained
				placement.DestinationSectionID = primary.ClassSectionID
				placement.NoProgression = true
				result.Counters.Retained++
				result.Counters.WithoutProgression++
			}
		}
		result.Placements = append(result.Placements, placement)
	}

	sort.SliceStable(result.Placements, func(i, j int) bool {
		a, b := result.Placements[i], result.Placements[j]
		if a.StudentName != b.StudentName {
			return a.StudentName < b.StudentName
		}
		return a.StudentID < b.StudentID
	})
	return result
}
