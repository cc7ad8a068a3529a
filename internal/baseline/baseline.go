// Package baseline reconciles a student's diagnostic result with the
// curriculum skill list to derive the starting ("previous") level of each
// skill before any periodic re-assessment.
package baseline

import (
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

const (
	// masteredFloor is the lowest baseline a mastered skill can report.
	masteredFloor progress.Level = 3
	// developingCeiling is the highest baseline a developing skill can report.
	developingCeiling progress.Level = 1
)

// SkillBaseline is the reconciled starting level of one curriculum skill.
// PreviousLevel is nil when neither a categorized code nor a global level
// is available.
type SkillBaseline struct {
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	PreviousLevel *progress.Level `json:"previousLevel"`
}

// Reconcile derives a baseline for every curriculum skill, preserving catalog
// order. A nil diagnostic yields all-nil baselines.
func Reconcile(diag *progress.DiagnosticResult, skills []curriculum.Skill) []SkillBaseline {
	out := make([]SkillBaseline, 0, len(skills))
	for _, s := range skills {
		out = append(out, SkillBaseline{
			Code:          s.Code,
			Description:   s.Description,
			PreviousLevel: Level(diag, s.Code),
		})
	}
	return out
}

// Level returns the reconciled baseline of a single curriculum code:
//
//  1. mastered in the diagnostic: max(global, 3), global defaulting to 3
//  2. developing in the diagnostic: min(global, 1), global defaulting to 1
//  3. otherwise the global level, when present
//  4. otherwise nil
//
// Codes are matched by prefix in either direction after normalization.
func Level(diag *progress.DiagnosticResult, code string) *progress.Level {
	if diag == nil {
		return nil
	}

	switch {
	case progress.MatchAny(code, diag.MasteredCodes):
		level := masteredFloor
		if diag.GlobalLevel != nil {
			level = max(*diag.GlobalLevel, masteredFloor)
		}
		return progress.LevelPtr(clamp(level))
	case progress.MatchAny(code, diag.DevelopingCodes):
		level := developingCeiling
		if diag.GlobalLevel != nil {
			level = min(*diag.GlobalLevel, developingCeiling)
		}
		return progress.LevelPtr(clamp(level))
	case diag.GlobalLevel != nil:
		return progress.LevelPtr(clamp(*diag.GlobalLevel))
	default:
		return nil
	}
}

// AssessedSkills lists the distinct skills assessed across records, in order
// of first appearance, for reconciling a history without the catalog.
func AssessedSkills(records []progress.PeriodicRecord) []curriculum.Skill {
	seen := make(map[string]bool)
	var out []curriculum.Skill
	for _, rec := range records {
		for _, s := range rec.Skills {
			code := progress.NormalizeCode(s.Code)
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			out = append(out, curriculum.Skill{Code: s.Code, Description: s.Description})
		}
	}
	return out
}

// ByCode indexes baselines by normalized code.
func ByCode(baselines []SkillBaseline) map[string]*progress.Level {
	out := make(map[string]*progress.Level, len(baselines))
	for _, b := range baselines {
		out[progress.NormalizeCode(b.Code)] = b.PreviousLevel
	}
	return out
}

func clamp(l progress.Level) progress.Level {
	return min(max(l, progress.MinLevel), progress.MaxLevel)
}
