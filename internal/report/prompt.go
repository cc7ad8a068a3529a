package report

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-progress/internal/ai"
)

const systemPrompt = `You are an experienced teacher writing a progress report about one student in one discipline.
Mastery levels go from 0 (not started) to 4 (mastered).

Reply with a single JSON object and nothing else, using exactly these fields:
{
  "title": string,
  "periodAnalyzed": string,
  "summary": string,
  "overallTrend": "improving" | "stable" | "regressing",
  "highlights": [string],
  "skillsImproving": [string],
  "skillsNeedingAttention": [string],
  "suggestedActions": [string],
  "noteForPlan": string
}

Base every statement on the period data you are given. Keep the summary under four sentences.`

// BuildPrompt renders the chat messages for the narrative call: the
// diagnostic starting levels, then one line per period with its average,
// per-skill levels and the teacher's note.
func BuildPrompt(in Input) []ai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Student: %s\nDiscipline: %s\n", in.StudentID, in.Discipline)
	if pr := periodRange(in.Series.Points); pr != "" {
		fmt.Fprintf(&b, "Periods: %s\n", pr)
	}

	var starting []string
	for _, bl := range in.Baselines {
		if bl.PreviousLevel != nil {
			starting = append(starting, fmt.Sprintf("%s=%d", bl.Code, *bl.PreviousLevel))
		}
	}
	if len(starting) > 0 {
		fmt.Fprintf(&b, "Starting levels from the diagnostic: %s\n", strings.Join(starting, ", "))
	}

	b.WriteString("\nPeriod summaries:\n")
	for i, rec := range in.Records {
		fmt.Fprintf(&b, "- %s %d/%d: average ", rec.PeriodType, rec.PeriodNumber, rec.SchoolYear)
		if i < len(in.Series.Points) && in.Series.Points[i].AverageLevel != nil {
			fmt.Fprintf(&b, "%.1f", *in.Series.Points[i].AverageLevel)
		} else {
			b.WriteString("n/a")
		}

		levels := make([]string, 0, len(rec.Skills))
		for _, s := range rec.Skills {
			levels = append(levels, fmt.Sprintf("%s=%d", s.Code, s.CurrentLevel))
		}
		if len(levels) > 0 {
			fmt.Fprintf(&b, "; skills: %s", strings.Join(levels, ", "))
		}
		if note := strings.TrimSpace(rec.GeneralNote); note != "" {
			fmt.Fprintf(&b, "; note: %s", note)
		}
		b.WriteString("\n")
	}

	if in.Series.Delta != nil {
		fmt.Fprintf(&b, "\nComputed overall trend: %s (delta %+.1f)\n", in.Series.Trend, *in.Series.Delta)
	}

	if len(in.Alerts) > 0 {
		b.WriteString("\nRegressions between consecutive periods:\n")
		for _, a := range in.Alerts {
			fmt.Fprintf(&b, "- %s (%s): %d -> %d between periods %d and %d\n",
				a.Code, a.Description, a.FromLevel, a.ToLevel, a.FromPeriod, a.ToPeriod)
		}
	}

	return []ai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}
