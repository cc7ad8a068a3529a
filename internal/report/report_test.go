package report_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-progress/internal/ai"
	"github.com/p-n-ai/pai-progress/internal/baseline"
	"github.com/p-n-ai/pai-progress/internal/evolution"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/report"
)

const validReply = `{
  "title": "Mathematics progress",
  "periodAnalyzed": "1st to 3rd bimester",
  "summary": "Steady gains in number sense.",
  "overallTrend": "improving",
  "highlights": ["Fractions {now} solid"],
  "skillsImproving": ["EF06MA01"],
  "skillsNeedingAttention": [],
  "suggestedActions": ["More word problems"],
  "noteForPlan": "Move on to geometry."
}`

func record(period int, note string, levels ...progress.Level) progress.PeriodicRecord {
	codes := []string{"EF06MA01", "EF06MA02", "EF06MA03"}
	rec := progress.PeriodicRecord{
		RecordKey: progress.RecordKey{
			StudentID:    "stu-1",
			Discipline:   "mathematics",
			PeriodType:   progress.PeriodBimonthly,
			PeriodNumber: period,
			SchoolYear:   2025,
		},
		GeneralNote: note,
	}
	for i, l := range levels {
		rec.Skills = append(rec.Skills, progress.SkillAssessment{
			Code:         codes[i],
			Description:  "skill " + codes[i],
			CurrentLevel: l,
		})
	}
	return rec
}

// improvingInput averages 1.0, 1.3, 2.0 with EF06MA02 dropping 2 -> 1 in
// period 2. EF06MA01 starts from a diagnostic baseline of 3.
func improvingInput() report.Input {
	in := report.NewInput("stu-1", "mathematics", []progress.PeriodicRecord{
		record(3, "", 3, 2, 1),
		record(1, "first contact", 1, 2, 0),
		record(2, "", 2, 1, 1),
	})
	in.Baselines = []baseline.SkillBaseline{
		{Code: "EF06MA01", PreviousLevel: progress.LevelPtr(3)},
		{Code: "EF06MA02"},
	}
	return in
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]report.Report
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]report.Report)}
}

func (c *memoryCache) Get(_ context.Context, key string) (report.Report, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, r report.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r
	c.sets++
	return nil
}

func TestNewInput_SortsAndDerives(t *testing.T) {
	in := improvingInput()

	for i, rec := range in.Records {
		if rec.PeriodNumber != i+1 {
			t.Fatalf("Records[%d].PeriodNumber = %d, want %d", i, rec.PeriodNumber, i+1)
		}
	}
	if in.Series.Trend != evolution.Improving {
		t.Errorf("Series.Trend = %q, want improving", in.Series.Trend)
	}
	if len(in.Alerts) != 1 || in.Alerts[0].Code != "EF06MA02" {
		t.Errorf("Alerts = %+v, want one alert on EF06MA02", in.Alerts)
	}
	if raw := report.NewInput("stu-1", "mathematics", in.Records); raw.Baselines != nil {
		t.Errorf("NewInput() Baselines = %v, want nil until the caller sets them", raw.Baselines)
	}
}

func TestSynthesize_AIPath(t *testing.T) {
	mock := ai.NewMockProvider("Here you go:\n" + validReply + "\nHope it helps!")
	s := report.NewSynthesizer(mock)

	r := s.Synthesize(context.Background(), improvingInput())

	if r.Source != report.SourceAI {
		t.Fatalf("Source = %q, want ai", r.Source)
	}
	if r.Title != "Mathematics progress" {
		t.Errorf("Title = %q", r.Title)
	}
	if len(r.Highlights) != 1 || r.Highlights[0] != "Fractions {now} solid" {
		t.Errorf("Highlights = %v", r.Highlights)
	}
	if r.SkillsNeedingAttention == nil {
		t.Error("SkillsNeedingAttention should be an empty list, not nil")
	}

	req := mock.LastRequest()
	if req == nil || !req.JSON || req.Task != ai.TaskReport {
		t.Fatalf("LastRequest() = %+v, want JSON report task", req)
	}
	if !strings.Contains(req.Messages[1].Content, "first contact") {
		t.Error("prompt should carry the period notes")
	}
	if !strings.Contains(req.Messages[1].Content, "Starting levels from the diagnostic: EF06MA01=3\n") {
		t.Errorf("prompt should carry the known baselines only, got:\n%s", req.Messages[1].Content)
	}
}

func TestSynthesize_FallbackOnFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *ai.MockProvider
	}{
		{"provider error", &ai.MockProvider{Err: errors.New("connection refused")}},
		{"plain text", ai.NewMockProvider("Sorry, I cannot help with that.")},
		{"unterminated object", ai.NewMockProvider(`{"title": "cut off`)},
		{"schema mismatch", ai.NewMockProvider(`{"title": "x", "summary": "y", "overallTrend": "sideways"}`)},
		{"missing summary", ai.NewMockProvider(`{"title": "x", "overallTrend": "stable"}`)},
		{"wrong list type", ai.NewMockProvider(`{"title": "x", "summary": "y", "overallTrend": "stable", "highlights": "one"}`)},
		{"timeout", &ai.MockProvider{Response: validReply, Delay: time.Second}},
	}

	in := improvingInput()
	want := report.Fallback(in)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := report.NewSynthesizer(tt.gen, report.WithTimeout(20*time.Millisecond))

			r := s.Synthesize(context.Background(), in)
			if r.Source != report.SourceComputed {
				t.Fatalf("Source = %q, want computed", r.Source)
			}
			if r.Summary != want.Summary || r.OverallTrend != want.OverallTrend {
				t.Errorf("Synthesize() = %+v, want the computed report", r)
			}
		})
	}
}

func TestSynthesize_CancelledContextStillReturnsReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := report.NewSynthesizer(&ai.MockProvider{Response: validReply, Delay: time.Second})
	r := s.Synthesize(ctx, improvingInput())
	if r.Source != report.SourceComputed || r.Title == "" {
		t.Errorf("Synthesize() = %+v, want computed report", r)
	}
}

func TestSynthesize_NilGenerator(t *testing.T) {
	r := report.NewSynthesizer(nil).Synthesize(context.Background(), improvingInput())
	if r.Source != report.SourceComputed {
		t.Errorf("Source = %q, want computed", r.Source)
	}
}

func TestSynthesize_CachesAIReportsOnly(t *testing.T) {
	c := newMemoryCache()
	in := improvingInput()

	failing := &ai.MockProvider{Err: errors.New("down")}
	report.NewSynthesizer(failing, report.WithCache(c)).Synthesize(context.Background(), in)
	if c.sets != 0 {
		t.Fatalf("cache sets = %d, computed reports must not be cached", c.sets)
	}

	mock := ai.NewMockProvider(validReply)
	s := report.NewSynthesizer(mock, report.WithCache(c))
	first := s.Synthesize(context.Background(), in)
	second := s.Synthesize(context.Background(), in)

	if mock.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1 (second report served from cache)", mock.Calls())
	}
	if first.Title != second.Title || second.Source != report.SourceAI {
		t.Errorf("cached report = %+v, want %+v", second, first)
	}
}

func TestFallback_Deterministic(t *testing.T) {
	in := improvingInput()
	a, b := report.Fallback(in), report.Fallback(in)

	if a.Summary != b.Summary || a.OverallTrend != b.OverallTrend || len(a.SuggestedActions) != len(b.SuggestedActions) {
		t.Errorf("Fallback() not deterministic: %+v vs %+v", a, b)
	}
	if a.OverallTrend != evolution.Improving {
		t.Errorf("OverallTrend = %q, want improving (1.0 -> 2.0)", a.OverallTrend)
	}
	if !strings.Contains(a.Summary, "1.0") || !strings.Contains(a.Summary, "2.0") {
		t.Errorf("Summary = %q, want first and last averages", a.Summary)
	}
	if len(a.SuggestedActions) != 1 {
		t.Errorf("SuggestedActions = %v, want exactly one", a.SuggestedActions)
	}
	if len(a.Highlights) != 1 {
		t.Errorf("Highlights = %v, want exactly one", a.Highlights)
	}
	if len(a.SkillsImproving) != 2 {
		t.Errorf("SkillsImproving = %v, want EF06MA01 and EF06MA03", a.SkillsImproving)
	}
	if len(a.SkillsNeedingAttention) != 1 || !strings.HasPrefix(a.SkillsNeedingAttention[0], "EF06MA02") {
		t.Errorf("SkillsNeedingAttention = %v, want the regressed EF06MA02", a.SkillsNeedingAttention)
	}
	if a.PeriodAnalyzed != "bimonthly 1/2025 to bimonthly 3/2025" {
		t.Errorf("PeriodAnalyzed = %q", a.PeriodAnalyzed)
	}
}

func TestFallback_Regressing(t *testing.T) {
	in := report.NewInput("stu-1", "mathematics", []progress.PeriodicRecord{
		record(1, "", 3, 3),
		record(2, "", 2, 1),
	})

	r := report.Fallback(in)
	if r.OverallTrend != evolution.Regressing {
		t.Errorf("OverallTrend = %q, want regressing", r.OverallTrend)
	}
	if len(r.SkillsNeedingAttention) != 2 {
		t.Errorf("SkillsNeedingAttention = %v, want 2 skills", r.SkillsNeedingAttention)
	}
}

func TestFallback_InsufficientData(t *testing.T) {
	r := report.Fallback(report.Input{Discipline: "mathematics"})

	if r.OverallTrend != evolution.Stable {
		t.Errorf("OverallTrend = %q, want stable", r.OverallTrend)
	}
	if r.Summary == "" || r.Title == "" || r.NoteForPlan == "" {
		t.Errorf("Fallback() = %+v, want every text field filled", r)
	}
	if len(r.Highlights) != 1 || r.Highlights[0] == "" {
		t.Errorf("Highlights = %v, want one insufficient-data highlight", r.Highlights)
	}
	if len(r.SuggestedActions) != 1 {
		t.Errorf("SuggestedActions = %v, want exactly one", r.SuggestedActions)
	}
	if r.SkillsImproving == nil || r.SkillsNeedingAttention == nil {
		t.Error("list fields should be empty, not nil")
	}
}

func TestFingerprint(t *testing.T) {
	in := improvingInput()

	if report.Fingerprint(in, "") != report.Fingerprint(improvingInput(), "") {
		t.Error("Fingerprint() should be stable for equal inputs")
	}
	if report.Fingerprint(in, "") == report.Fingerprint(in, "gpt-4o") {
		t.Error("Fingerprint() should depend on the model")
	}

	changed := improvingInput()
	changed.Records[0].GeneralNote = "edited"
	if report.Fingerprint(in, "") == report.Fingerprint(changed, "") {
		t.Error("Fingerprint() should change with the records")
	}

	rebased := improvingInput()
	rebased.Baselines[1].PreviousLevel = progress.LevelPtr(1)
	if report.Fingerprint(in, "") == report.Fingerprint(rebased, "") {
		t.Error("Fingerprint() should change with the baselines")
	}
	if got := len(report.Fingerprint(in, "")); got != 64 {
		t.Errorf("len(Fingerprint()) = %d, want 64 hex chars", got)
	}
}
