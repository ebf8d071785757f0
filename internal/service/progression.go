package service

import (
	"sort"

	"github.com/noah-isme/ano-letivo-api/internal/models"
)

// ProgressionMap resolves the next-year section for a promoted student. It is built once per run
// from the school's section list and never queries again.
type ProgressionMap struct {
	sections map[string]models.ClassSectionDetail
	next     map[string]string
}

// NewProgressionMap precomputes the successor of every section. The successor grade level is the
// one whose ordinal is exactly one above the current level. Among its sections the choice prefers
// the same shift, then the lowest name, then the lowest id.
func NewProgressionMap(sections []models.ClassSectionDetail) *ProgressionMap {
	m := &ProgressionMap{
		sections: make(map[string]models.ClassSectionDetail, len(sections)),
		next:     make(map[string]string, len(sections)),
	}
	byOrdinal := make(map[int][]models.ClassSectionDetail)
	for _, section := range sections {
		m.sections[section.ID] = section
		byOrdinal[section.GradeLevelOrdinal] = append(byOrdinal[section.GradeLevelOrdinal], section)
	}
	for ordinal := range byOrdinal {
		candidates := byOrdinal[ordinal]
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Name != candidates[j].Name {
				return candidates[i].Name < candidates[j].Name
			}
			return candidates[i].ID < candidates[j].ID
		})
	}

	for _, section := range sections {
		if section.GradeLevelTerminal {
			continue
		}
		candidates := byOrdinal[section.GradeLevelOrdinal+1]
		if len(candidates) == 0 {
			continue
		}
		chosen := candidates[0]
		for _, candidate := range candidates {
			if candidate.Shift == section.Shift {
				chosen = candidate
				break
			}
		}
		m.next[section.ID] = chosen.ID
	}
	return m
}

// Next returns the successor section. The boolean is false for terminal levels and for sections
// with no resolvable successor.
func (m *ProgressionMap) Next(sectionID string) (string, bool) {
	id, ok := m.next[sectionID]
	return id, ok
}

// IsTerminal reports whether the section belongs to a terminal grade level.
func (m *ProgressionMap) IsTerminal(sectionID string) bool {
	section, ok := m.sections[sectionID]
	return ok && section.GradeLevelTerminal
}

// Section returns the section details when known.
func (m *ProgressionMap) Section(sectionID string) (models.ClassSectionDetail, bool) {
	section, ok := m.sections[sectionID]
	return section, ok
}
