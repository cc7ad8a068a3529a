package evolution

import (
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// PeriodPoint is the average current level of one periodic record.
// AverageLevel is nil when the record assessed no skills; such points stay
// in the series for display continuity but do not count for the trend.
type PeriodPoint struct {
	PeriodType   progress.PeriodType `json:"periodType"`
	PeriodNumber int                 `json:"periodNumber"`
	SchoolYear   int                 `json:"schoolYear"`
	AverageLevel *float64            `json:"averageLevel"`
	SkillCount   int                 `json:"skillCount"`
}

// Series is the derived evolution of a (student, discipline) pair.
type Series struct {
	Points []PeriodPoint `json:"points"`
	Trend  Trend         `json:"trend"`
	// Delta is last minus first non-nil average; nil with fewer than two.
	Delta *float64 `json:"delta"`
}

// Averages returns the non-nil averages in chronological order.
func (s Series) Averages() []float64 {
	var out []float64
	for _, p := range s.Points {
		if p.AverageLevel != nil {
			out = append(out, *p.AverageLevel)
		}
	}
	return out
}

// Eligible reports whether the series has enough data (two or more non-nil
// averages) to back a narrative report.
func (s Series) Eligible() bool {
	return len(s.Averages()) >= 2
}

// Aggregate builds the series for records of one (student, discipline)
// pair. Records are sorted on a private copy; the input is not modified.
func Aggregate(records []progress.PeriodicRecord) Series {
	sorted := sortedCopy(records)

	s := Series{Points: make([]PeriodPoint, 0, len(sorted)), Trend: Stable}
	for _, rec := range sorted {
		s.Points = append(s.Points, PeriodPoint{
			PeriodType:   rec.PeriodType,
			PeriodNumber: rec.PeriodNumber,
			SchoolYear:   rec.SchoolYear,
			AverageLevel: averageLevel(rec.Skills),
			SkillCount:   len(rec.Skills),
		})
	}

	if delta, ok := SeriesDelta(s.Points); ok {
		s.Delta = &delta
		s.Trend = Classify(delta, OverallThreshold)
	}
	return s
}

// SeriesDelta returns last minus first non-nil average, rounded to one
// decimal, and false when fewer than two averages exist.
func SeriesDelta(points []PeriodPoint) (float64, bool) {
	var first, last *float64
	count := 0
	for _, p := range points {
		if p.AverageLevel == nil {
			continue
		}
		if first == nil {
			first = p.AverageLevel
		}
		last = p.AverageLevel
		count++
	}
	if count < 2 {
		return 0, false
	}
	return round1(*last - *first), true
}

func averageLevel(skills []progress.SkillAssessment) *float64 {
	if len(skills) == 0 {
		return nil
	}
	sum := 0
	for _, s := range skills {
		sum += int(s.CurrentLevel)
	}
	avg := round1(float64(sum) / float64(len(skills)))
	return &avg
}

func sortedCopy(records []progress.PeriodicRecord) []progress.PeriodicRecord {
	out := make([]progress.PeriodicRecord, len(records))
	copy(out, records)
	progress.SortRecords(out)
	return out
}
