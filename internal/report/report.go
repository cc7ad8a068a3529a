// Package report synthesizes the structured progress report of a
// (student, discipline) pair. An AI narrative is preferred; any failure on
// that path yields a deterministic report computed from the numbers alone.
package report

import (
	"fmt"

	"github.com/p-n-ai/pai-progress/internal/baseline"
	"github.com/p-n-ai/pai-progress/internal/evolution"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Source tells how a report was produced.
type Source string

const (
	SourceAI       Source = "ai"
	SourceComputed Source = "computed"
)

// Report is the structured report returned to the presentation layer.
type Report struct {
	Title                  string          `json:"title"`
	PeriodAnalyzed         string          `json:"periodAnalyzed"`
	Summary                string          `json:"summary"`
	OverallTrend           evolution.Trend `json:"overallTrend"`
	Highlights             []string        `json:"highlights"`
	SkillsImproving        []string        `json:"skillsImproving"`
	SkillsNeedingAttention []string        `json:"skillsNeedingAttention"`
	SuggestedActions       []string        `json:"suggestedActions"`
	NoteForPlan            string          `json:"noteForPlan"`
	Source                 Source          `json:"source"`
}

// Input is everything the synthesizer knows about one (student, discipline)
// pair: baseline, evolution and alerts. Records are expected in
// chronological order.
type Input struct {
	StudentID  string                     `json:"studentId"`
	Discipline string                     `json:"discipline"`
	Baselines  []baseline.SkillBaseline   `json:"baselines"`
	Records    []progress.PeriodicRecord  `json:"records"`
	Series     evolution.Series           `json:"series"`
	Skills     []evolution.SkillEvolution `json:"skills"`
	Alerts     []evolution.Alert          `json:"alerts"`
}

// NewInput derives the series, skill evolutions and alerts from records.
// Baselines are left to the caller, which owns the diagnostic source.
func NewInput(studentID, discipline string, records []progress.PeriodicRecord) Input {
	sorted := make([]progress.PeriodicRecord, len(records))
	copy(sorted, records)
	progress.SortRecords(sorted)

	return Input{
		StudentID:  studentID,
		Discipline: discipline,
		Records:    sorted,
		Series:     evolution.Aggregate(sorted),
		Skills:     evolution.SkillEvolutions(sorted),
		Alerts:     evolution.DetectRegressions(sorted),
	}
}

// periodRange describes the first and last period of the series, e.g.
// "bimonthly 1/2025 to bimonthly 3/2025".
func periodRange(points []evolution.PeriodPoint) string {
	if len(points) == 0 {
		return ""
	}
	first, last := points[0], points[len(points)-1]
	from := fmt.Sprintf("%s %d/%d", first.PeriodType, first.PeriodNumber, first.SchoolYear)
	if len(points) == 1 {
		return from
	}
	return fmt.Sprintf("%s to %s %d/%d", from, last.PeriodType, last.PeriodNumber, last.SchoolYear)
}

func (r *Report) normalize() {
	if r.Highlights == nil {
		r.Highlights = []string{}
	}
	if r.SkillsImproving == nil {
		r.SkillsImproving = []string{}
	}
	if r.SkillsNeedingAttention == nil {
		r.SkillsNeedingAttention = []string{}
	}
	if r.SuggestedActions == nil {
		r.SuggestedActions = []string{}
	}
}
