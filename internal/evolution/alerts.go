package evolution

import (
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Alert flags a strict drop in one skill's level between two chronologically
// adjacent periods that both assessed it.
type Alert struct {
	Code        string              `json:"code"`
	Description string              `json:"description"`
	FromLevel   progress.Level      `json:"fromLevel"`
	ToLevel     progress.Level      `json:"toLevel"`
	PeriodType  progress.PeriodType `json:"periodType"`
	FromPeriod  int                 `json:"fromPeriod"`
	ToPeriod    int                 `json:"toPeriod"`
	SchoolYear  int                 `json:"schoolYear"`
}

// DetectRegressions walks every skill history pairwise and emits one alert
// per decreasing transition. Alerts are not deduplicated per skill, and a
// skill missing from either period of a pair yields no alert for that pair.
// Only periods of the same type are adjacent.
func DetectRegressions(records []progress.PeriodicRecord) []Alert {
	var alerts []Alert
	for _, timeline := range byPeriodType(records) {
		alerts = append(alerts, detect(timeline)...)
	}
	return alerts
}

// byPeriodType splits records into one slice per period type, in order of
// first appearance.
func byPeriodType(records []progress.PeriodicRecord) [][]progress.PeriodicRecord {
	index := make(map[progress.PeriodType]int)
	var groups [][]progress.PeriodicRecord
	for _, rec := range records {
		i, ok := index[rec.PeriodType]
		if !ok {
			i = len(groups)
			index[rec.PeriodType] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], rec)
	}
	return groups
}

func detect(records []progress.PeriodicRecord) []Alert {
	var alerts []Alert
	for _, h := range Histories(records) {
		for i := 1; i < len(h.Points); i++ {
			from, to := h.Points[i-1], h.Points[i]
			if from.Level == nil || to.Level == nil {
				continue
			}
			if *to.Level >= *from.Level {
				continue
			}
			alerts = append(alerts, Alert{
				Code:        h.Code,
				Description: h.Description,
				FromLevel:   *from.Level,
				ToLevel:     *to.Level,
				PeriodType:  to.PeriodType,
				FromPeriod:  from.PeriodNumber,
				ToPeriod:    to.PeriodNumber,
				SchoolYear:  to.SchoolYear,
			})
		}
	}
	return alerts
}
