package report

import (
	"fmt"

	"github.com/p-n-ai/pai-progress/internal/evolution"
)

const computedNote = "Computed summary: the narrative report was unavailable, so this report was derived from the recorded levels only."

// Fallback computes a report from the numeric series alone. It is
// deterministic and always structurally valid.
func Fallback(in Input) Report {
	points := in.Series.Points
	if len(points) == 0 {
		points = evolution.Aggregate(in.Records).Points
	}

	trend := evolution.Stable
	delta, ok := evolution.SeriesDelta(points)
	if ok {
		trend = evolution.Classify(delta, evolution.OverallThreshold)
	}

	r := Report{
		Title:          fmt.Sprintf("Progress report: %s", in.Discipline),
		PeriodAnalyzed: periodRange(points),
		OverallTrend:   trend,
		NoteForPlan:    computedNote,
		Source:         SourceComputed,
	}

	averages := evolution.Series{Points: points}.Averages()
	if ok {
		first, last := averages[0], averages[len(averages)-1]
		r.Summary = fmt.Sprintf("The average level went from %.1f to %.1f over %d assessed periods (%s).",
			first, last, len(averages), trend)
		r.Highlights = []string{fmt.Sprintf("Overall change of %+.1f levels between the first and the last period.", delta)}
	} else {
		r.Summary = "There is not enough assessed data yet to measure progress."
		r.Highlights = []string{"Fewer than two periods have assessed skills, so no change can be computed yet."}
	}

	seen := make(map[string]bool)
	for _, s := range in.Skills {
		switch s.Trend {
		case evolution.Improving:
			r.SkillsImproving = append(r.SkillsImproving, skillLabel(s.Code, s.Description))
		case evolution.Regressing:
			r.SkillsNeedingAttention = append(r.SkillsNeedingAttention, skillLabel(s.Code, s.Description))
			seen[s.Code] = true
		}
	}
	for _, a := range in.Alerts {
		if seen[a.Code] {
			continue
		}
		seen[a.Code] = true
		r.SkillsNeedingAttention = append(r.SkillsNeedingAttention, skillLabel(a.Code, a.Description))
	}

	switch trend {
	case evolution.Regressing:
		r.SuggestedActions = []string{"Review the skills with declining levels and plan targeted reinforcement activities."}
	default:
		r.SuggestedActions = []string{"Keep monitoring the skill levels each period and reinforce the skills needing attention."}
	}

	r.normalize()
	return r
}

func skillLabel(code, description string) string {
	if description == "" {
		return code
	}
	return code + " - " + description
}
