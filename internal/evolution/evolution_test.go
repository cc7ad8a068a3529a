package evolution_test

import (
	"testing"

	"github.com/p-n-ai/pai-progress/internal/evolution"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

type skill struct {
	code  string
	level progress.Level
}

func record(period int, skills ...skill) progress.PeriodicRecord {
	rec := progress.PeriodicRecord{RecordKey: progress.RecordKey{
		StudentID:    "stu-1",
		Discipline:   "mathematics",
		PeriodType:   progress.PeriodBimonthly,
		PeriodNumber: period,
		SchoolYear:   2025,
	}}
	for _, s := range skills {
		rec.Skills = append(rec.Skills, progress.SkillAssessment{
			Code:         s.code,
			Description:  "desc " + s.code,
			CurrentLevel: s.level,
		})
	}
	return rec
}

func avg(p evolution.PeriodPoint) float64 {
	if p.AverageLevel == nil {
		return -1
	}
	return *p.AverageLevel
}

func TestClassify(t *testing.T) {
	tests := []struct {
		delta     float64
		threshold float64
		want      evolution.Trend
	}{
		{0.8, evolution.OverallThreshold, evolution.Improving},
		{0.3, evolution.OverallThreshold, evolution.Stable},
		{-0.3, evolution.OverallThreshold, evolution.Stable},
		{-0.4, evolution.OverallThreshold, evolution.Regressing},
		{0, evolution.OverallThreshold, evolution.Stable},
		{1, evolution.SkillThreshold, evolution.Improving},
		{-1, evolution.SkillThreshold, evolution.Regressing},
		{0, evolution.SkillThreshold, evolution.Stable},
	}

	for _, tt := range tests {
		if got := evolution.Classify(tt.delta, tt.threshold); got != tt.want {
			t.Errorf("Classify(%v, %v) = %s, want %s", tt.delta, tt.threshold, got, tt.want)
		}
	}
}

func TestAggregate_AveragesRoundedToOneDecimal(t *testing.T) {
	s := evolution.Aggregate([]progress.PeriodicRecord{
		record(1, skill{"A", 1}, skill{"B", 2}, skill{"C", 2}),
	})

	if len(s.Points) != 1 {
		t.Fatalf("Points = %d, want 1", len(s.Points))
	}
	if got := avg(s.Points[0]); got != 1.7 {
		t.Errorf("AverageLevel = %v, want 1.7", got)
	}
	if s.Points[0].SkillCount != 3 {
		t.Errorf("SkillCount = %d, want 3", s.Points[0].SkillCount)
	}
}

func TestAggregate_ImprovingExample(t *testing.T) {
	// averages 1.0, 1.2, 1.8
	records := []progress.PeriodicRecord{
		record(3, skill{"A", 2}, skill{"B", 2}, skill{"C", 2}, skill{"D", 1}, skill{"E", 2}),
		record(1, skill{"A", 1}, skill{"B", 1}, skill{"C", 1}, skill{"D", 1}, skill{"E", 1}),
		record(2, skill{"A", 2}, skill{"B", 1}, skill{"C", 1}, skill{"D", 1}, skill{"E", 1}),
	}
	s := evolution.Aggregate(records)

	want := []float64{1.0, 1.2, 1.8}
	for i, w := range want {
		if s.Points[i].PeriodNumber != i+1 {
			t.Errorf("Points[%d].PeriodNumber = %d, want %d", i, s.Points[i].PeriodNumber, i+1)
		}
		if got := avg(s.Points[i]); got != w {
			t.Errorf("Points[%d].AverageLevel = %v, want %v", i, got, w)
		}
	}
	if s.Delta == nil || *s.Delta != 0.8 {
		t.Errorf("Delta = %v, want 0.8", s.Delta)
	}
	if s.Trend != evolution.Improving {
		t.Errorf("Trend = %s, want improving", s.Trend)
	}
	if records[0].PeriodNumber != 3 {
		t.Error("Aggregate() must not reorder the caller's slice")
	}
}

func TestAggregate_ThresholdBoundaryIsStable(t *testing.T) {
	// 1.0 -> 1.3: floating point gives 0.30000000000000004 before rounding.
	s := evolution.Aggregate([]progress.PeriodicRecord{
		record(1, skill{"A", 1}, skill{"B", 1}, skill{"C", 1}, skill{"D", 1}, skill{"E", 1}, skill{"F", 1}, skill{"G", 1}, skill{"H", 1}, skill{"I", 1}, skill{"J", 1}),
		record(2, skill{"A", 2}, skill{"B", 2}, skill{"C", 2}, skill{"D", 1}, skill{"E", 1}, skill{"F", 1}, skill{"G", 1}, skill{"H", 1}, skill{"I", 1}, skill{"J", 1}),
	})
	if s.Trend != evolution.Stable {
		t.Errorf("Trend = %s, want stable for delta exactly 0.3", s.Trend)
	}
}

func TestAggregate_Regressing(t *testing.T) {
	s := evolution.Aggregate([]progress.PeriodicRecord{
		record(1, skill{"A", 3}, skill{"B", 3}),
		record(2, skill{"A", 2}, skill{"B", 2}),
	})
	if s.Trend != evolution.Regressing {
		t.Errorf("Trend = %s, want regressing", s.Trend)
	}
}

func TestAggregate_FlatSeriesIsStable(t *testing.T) {
	s := evolution.Aggregate([]progress.PeriodicRecord{
		record(1, skill{"A", 2}),
		record(2, skill{"A", 2}),
		record(3, skill{"A", 2}),
	})
	if s.Trend != evolution.Stable {
		t.Errorf("Trend = %s, want stable", s.Trend)
	}
	if s.Delta == nil || *s.Delta != 0 {
		t.Errorf("Delta = %v, want 0", s.Delta)
	}
}

func TestAggregate_EmptyPeriodsKeptButIgnored(t *testing.T) {
	s := evolution.Aggregate([]progress.PeriodicRecord{
		record(1),
		record(2, skill{"A", 1}),
		record(3),
		record(4, skill{"A", 3}),
	})

	if len(s.Points) != 4 {
		t.Fatalf("Points = %d, want 4 (empty periods retained)", len(s.Points))
	}
	if s.Points[0].AverageLevel != nil || s.Points[2].AverageLevel != nil {
		t.Error("empty periods should have nil AverageLevel")
	}
	if s.Delta == nil || *s.Delta != 2 {
		t.Errorf("Delta = %v, want 2 (first/last non-nil)", s.Delta)
	}
	if !s.Eligible() {
		t.Error("Eligible() = false, want true with two non-nil averages")
	}
}

func TestAggregate_InsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		records []progress.PeriodicRecord
	}{
		{"no records", nil},
		{"single period", []progress.PeriodicRecord{record(1, skill{"A", 4})}},
		{"one non-empty", []progress.PeriodicRecord{record(1), record(2, skill{"A", 4})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := evolution.Aggregate(tt.records)
			if s.Trend != evolution.Stable {
				t.Errorf("Trend = %s, want stable", s.Trend)
			}
			if s.Delta != nil {
				t.Errorf("Delta = %v, want nil", *s.Delta)
			}
			if s.Eligible() {
				t.Error("Eligible() = true, want false")
			}
		})
	}
}

func TestAggregate_MonotoneSeries(t *testing.T) {
	for last := progress.Level(0); last <= progress.MaxLevel; last++ {
		s := evolution.Aggregate([]progress.PeriodicRecord{
			record(1, skill{"A", 0}),
			record(2, skill{"A", min(last, 1)}),
			record(3, skill{"A", last}),
		})
		want := evolution.Stable
		if last > 0 {
			want = evolution.Improving
		}
		if s.Trend != want {
			t.Errorf("0 -> %d: Trend = %s, want %s", last, s.Trend, want)
		}
	}
}

func TestSkillEvolutions(t *testing.T) {
	got := evolution.SkillEvolutions([]progress.PeriodicRecord{
		record(1, skill{"EF06MA01", 1}, skill{"EF06MA02", 3}, skill{"EF06MA03", 2}),
		record(2, skill{"EF06MA01", 2}),
		record(3, skill{"ef06ma02", 2}, skill{"EF06MA01", 3}, skill{"EF06MA04", 1}, skill{"EF06MA03", 2}),
	})

	if len(got) != 3 {
		t.Fatalf("SkillEvolutions() = %d, want 3 (EF06MA04 absent from earliest)", len(got))
	}

	want := []struct {
		code  string
		delta int
		trend evolution.Trend
	}{
		{"ef06ma02", -1, evolution.Regressing},
		{"EF06MA01", 2, evolution.Improving},
		{"EF06MA03", 0, evolution.Stable},
	}
	for i, w := range want {
		if got[i].Code != w.code || got[i].Delta != w.delta || got[i].Trend != w.trend {
			t.Errorf("SkillEvolutions()[%d] = %s %+d %s, want %s %+d %s",
				i, got[i].Code, got[i].Delta, got[i].Trend, w.code, w.delta, w.trend)
		}
	}
	if got[1].EarliestLevel != 1 || got[1].LatestLevel != 3 {
		t.Errorf("EF06MA01 levels = %d -> %d, want 1 -> 3", got[1].EarliestLevel, got[1].LatestLevel)
	}
}

func TestSkillEvolutions_SkipsEmptyEndpoints(t *testing.T) {
	got := evolution.SkillEvolutions([]progress.PeriodicRecord{
		record(1),
		record(2, skill{"A", 1}),
		record(3, skill{"A", 2}),
		record(4),
	})
	if len(got) != 1 || got[0].Delta != 1 {
		t.Errorf("SkillEvolutions() = %+v, want one skill with delta 1", got)
	}
}

func TestSkillEvolutions_SingleRecord(t *testing.T) {
	if got := evolution.SkillEvolutions([]progress.PeriodicRecord{record(1, skill{"A", 1})}); got != nil {
		t.Errorf("SkillEvolutions() = %+v, want nil", got)
	}
}

func TestHistories(t *testing.T) {
	got := evolution.Histories([]progress.PeriodicRecord{
		record(1, skill{"A", 1}),
		record(2, skill{"B", 2}),
	})

	if len(got) != 2 {
		t.Fatalf("Histories() = %d, want 2", len(got))
	}
	if got[0].Code != "A" || len(got[0].Points) != 2 {
		t.Fatalf("Histories()[0] = %+v", got[0])
	}
	if got[0].Points[1].Level != nil {
		t.Error("A should have nil level in period 2")
	}
	if got[1].Points[0].Level != nil || *got[1].Points[1].Level != 2 {
		t.Errorf("B history = %+v", got[1].Points)
	}
}
