package evolution

import (
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// SkillEvolution compares one skill between the earliest and the latest
// record that assessed any skill.
type SkillEvolution struct {
	Code          string         `json:"code"`
	Description   string         `json:"description"`
	EarliestLevel progress.Level `json:"earliestLevel"`
	LatestLevel   progress.Level `json:"latestLevel"`
	Delta         int            `json:"delta"`
	Trend         Trend          `json:"trend"`
}

// SkillPoint is a skill's level in one period; Level is nil when the period
// did not assess the skill.
type SkillPoint struct {
	PeriodType   progress.PeriodType `json:"periodType"`
	PeriodNumber int                 `json:"periodNumber"`
	SchoolYear   int                 `json:"schoolYear"`
	Level        *progress.Level     `json:"level"`
}

// SkillHistory is the chronological level history of one skill code, with
// one point per record in the series.
type SkillHistory struct {
	Code        string       `json:"code"`
	Description string       `json:"description"`
	Points      []SkillPoint `json:"points"`
}

// SkillEvolutions returns the skills present in both the earliest and the
// latest non-empty record, in the latest record's order.
func SkillEvolutions(records []progress.PeriodicRecord) []SkillEvolution {
	var nonEmpty []progress.PeriodicRecord
	for _, rec := range sortedCopy(records) {
		if len(rec.Skills) > 0 {
			nonEmpty = append(nonEmpty, rec)
		}
	}
	if len(nonEmpty) < 2 {
		return nil
	}

	earliest := indexSkills(nonEmpty[0].Skills)
	latest := nonEmpty[len(nonEmpty)-1]

	var out []SkillEvolution
	seen := make(map[string]bool)
	for _, s := range latest.Skills {
		code := progress.NormalizeCode(s.Code)
		if seen[code] {
			continue
		}
		seen[code] = true

		first, ok := earliest[code]
		if !ok {
			continue
		}
		delta := int(s.CurrentLevel) - int(first.CurrentLevel)
		out = append(out, SkillEvolution{
			Code:          s.Code,
			Description:   s.Description,
			EarliestLevel: first.CurrentLevel,
			LatestLevel:   s.CurrentLevel,
			Delta:         delta,
			Trend:         Classify(float64(delta), SkillThreshold),
		})
	}
	return out
}

// Histories returns the per-skill level history across all records, ordered
// by first appearance.
func Histories(records []progress.PeriodicRecord) []SkillHistory {
	sorted := sortedCopy(records)

	var out []SkillHistory
	pos := make(map[string]int)
	for _, rec := range sorted {
		for _, s := range rec.Skills {
			code := progress.NormalizeCode(s.Code)
			if _, ok := pos[code]; ok {
				continue
			}
			pos[code] = len(out)
			out = append(out, SkillHistory{Code: s.Code, Description: s.Description})
		}
	}

	for _, rec := range sorted {
		idx := indexSkills(rec.Skills)
		for i := range out {
			point := SkillPoint{
				PeriodType:   rec.PeriodType,
				PeriodNumber: rec.PeriodNumber,
				SchoolYear:   rec.SchoolYear,
			}
			if s, ok := idx[progress.NormalizeCode(out[i].Code)]; ok {
				point.Level = progress.LevelPtr(s.CurrentLevel)
			}
			out[i].Points = append(out[i].Points, point)
		}
	}
	return out
}

// indexSkills maps normalized codes to their first assessment.
func indexSkills(skills []progress.SkillAssessment) map[string]progress.SkillAssessment {
	idx := make(map[string]progress.SkillAssessment, len(skills))
	for _, s := range skills {
		code := progress.NormalizeCode(s.Code)
		if _, ok := idx[code]; !ok {
			idx[code] = s
		}
	}
	return idx
}
