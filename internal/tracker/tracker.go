// Package tracker is the skill-level evolution engine: it serves baselines
// and record drafts, stores periodic records and diagnostics, and derives
// the evolution view and report of a (student, discipline) pair.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-progress/internal/baseline"
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/evolution"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/report"
)

// ErrInsufficientHistory is returned by GenerateReport when fewer than two
// periods have an average level.
var ErrInsufficientHistory = errors.New("at least two assessed periods are required")

// Catalog is the skill catalog lookup; *curriculum.Loader satisfies it.
type Catalog interface {
	GetSkills(discipline, grade string) []curriculum.Skill
}

// EngineConfig holds dependencies for the engine.
type EngineConfig struct {
	Catalog     Catalog
	Records     progress.RecordStore
	Diagnostics progress.DiagnosticStore
	Reports     *report.Synthesizer
	Events      EventLogger
}

// Engine runs the progress operations.
type Engine struct {
	catalog     Catalog
	records     progress.RecordStore
	diagnostics progress.DiagnosticStore
	extractor   *baseline.Extractor
	reports     *report.Synthesizer
	events      EventLogger
}

// NewEngine creates an engine. Missing stores default to in-memory ones, a
// missing synthesizer always produces computed reports.
func NewEngine(cfg EngineConfig) *Engine {
	records := cfg.Records
	if records == nil {
		records = progress.NewMemoryStore()
	}
	diagnostics := cfg.Diagnostics
	if diagnostics == nil {
		diagnostics = progress.NewMemoryDiagnostics()
	}
	reports := cfg.Reports
	if reports == nil {
		reports = report.NewSynthesizer(nil)
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Engine{
		catalog:     cfg.Catalog,
		records:     records,
		diagnostics: diagnostics,
		extractor:   baseline.NewExtractor(diagnostics),
		reports:     reports,
		events:      events,
	}
}

func (e *Engine) skills(discipline, grade string) []curriculum.Skill {
	if e.catalog == nil {
		return nil
	}
	return e.catalog.GetSkills(discipline, grade)
}

// Baseline reconciles the student's diagnostic with the catalog skills of
// the grade. An empty catalog or a missing diagnostic is not an error.
func (e *Engine) Baseline(ctx context.Context, studentID, discipline, grade string) []baseline.SkillBaseline {
	return e.extractor.Extract(ctx, studentID, discipline, e.skills(discipline, grade))
}

// Draft returns the stored record for key, or an unsaved record prefilled
// from the catalog. The previous level of each skill comes from the latest
// earlier period of the same type and year, then the diagnostic baseline.
// The boolean reports whether the record was already stored.
func (e *Engine) Draft(ctx context.Context, key progress.RecordKey, grade string) (progress.PeriodicRecord, bool, error) {
	if err := key.Validate(); err != nil {
		return progress.PeriodicRecord{}, false, err
	}

	rec, err := e.records.Get(ctx, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, progress.ErrNotFound) {
		return progress.PeriodicRecord{}, false, fmt.Errorf("load record: %w", err)
	}

	skills := e.skills(key.Discipline, grade)
	draft := progress.PeriodicRecord{
		RecordKey: key,
		Grade:     grade,
		Skills:    make([]progress.SkillAssessment, 0, len(skills)),
	}
	if len(skills) == 0 {
		return draft, false, nil
	}

	prior, err := e.priorRecord(ctx, key)
	if err != nil {
		return progress.PeriodicRecord{}, false, err
	}
	baselines := baseline.ByCode(e.extractor.Extract(ctx, key.StudentID, key.Discipline, skills))

	for _, s := range skills {
		previous := baselines[progress.NormalizeCode(s.Code)]
		if prior != nil {
			if assessed, ok := prior.Skill(s.Code); ok {
				previous = progress.LevelPtr(assessed.CurrentLevel)
			}
		}
		draft.Skills = append(draft.Skills, progress.SkillAssessment{
			Code:          s.Code,
			Description:   s.Description,
			PreviousLevel: previous,
		})
	}
	return draft, false, nil
}

// priorRecord returns the latest record of the same period type and school
// year preceding key, or nil.
func (e *Engine) priorRecord(ctx context.Context, key progress.RecordKey) (*progress.PeriodicRecord, error) {
	history, err := e.records.History(ctx, progress.HistoryQuery{
		StudentID:  key.StudentID,
		Discipline: key.Discipline,
		PeriodType: key.PeriodType,
		SchoolYear: key.SchoolYear,
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	var prior *progress.PeriodicRecord
	for i := range history {
		if history[i].PeriodNumber < key.PeriodNumber {
			prior = &history[i]
		}
	}
	return prior, nil
}

// SaveRecord validates and upserts a record; the whole skill list and note
// are replaced. Regressions into the saved period are logged as events.
func (e *Engine) SaveRecord(ctx context.Context, rec progress.PeriodicRecord) (progress.PeriodicRecord, error) {
	saved, err := e.records.Save(ctx, rec)
	if err != nil {
		return progress.PeriodicRecord{}, err
	}

	slog.Info("periodic record saved",
		"student_id", saved.StudentID,
		"discipline", saved.Discipline,
		"period", saved.Label(),
		"skills", len(saved.Skills),
		"version", saved.Version,
	)
	e.logEvent(ctx, Event{
		StudentID:  saved.StudentID,
		Discipline: saved.Discipline,
		EventType:  EventRecordSaved,
		Data: map[string]any{
			"period":  saved.Label(),
			"skills":  len(saved.Skills),
			"version": saved.Version,
		},
	})
	e.logRegressions(ctx, saved)
	return saved, nil
}

func (e *Engine) logRegressions(ctx context.Context, saved progress.PeriodicRecord) {
	history, err := e.records.History(ctx, progress.HistoryQuery{
		StudentID:  saved.StudentID,
		Discipline: saved.Discipline,
		PeriodType: saved.PeriodType,
		SchoolYear: saved.SchoolYear,
	})
	if err != nil {
		slog.Warn("regression check skipped", "student_id", saved.StudentID, "error", err)
		return
	}
	for _, a := range evolution.DetectRegressions(history) {
		if a.ToPeriod != saved.PeriodNumber {
			continue
		}
		e.logEvent(ctx, Event{
			StudentID:  saved.StudentID,
			Discipline: saved.Discipline,
			EventType:  EventRegressionDetected,
			Data: map[string]any{
				"code":        a.Code,
				"from_level":  int(a.FromLevel),
				"to_level":    int(a.ToLevel),
				"from_period": a.FromPeriod,
				"to_period":   a.ToPeriod,
			},
		})
	}
}

// SaveDiagnostic stores the diagnostic result of a (student, discipline).
func (e *Engine) SaveDiagnostic(ctx context.Context, d progress.DiagnosticResult) (progress.DiagnosticResult, error) {
	saved, err := e.diagnostics.SaveDiagnostic(ctx, d)
	if err != nil {
		return progress.DiagnosticResult{}, err
	}
	slog.Info("diagnostic saved", "student_id", saved.StudentID, "discipline", saved.Discipline)
	e.logEvent(ctx, Event{
		StudentID:  saved.StudentID,
		Discipline: saved.Discipline,
		EventType:  EventDiagnosticSaved,
	})
	return saved, nil
}

// EvolutionView is the read model of a (student, discipline) pair.
type EvolutionView struct {
	Series    evolution.Series           `json:"series"`
	Skills    []evolution.SkillEvolution `json:"skills"`
	Histories []evolution.SkillHistory   `json:"histories"`
	Alerts    []evolution.Alert          `json:"alerts"`
	// Eligible reports whether a narrative report can be generated.
	Eligible bool `json:"eligible"`
}

// Evolution computes the evolution view over a snapshot of the history of
// one period type. No history yields an empty, stable view.
func (e *Engine) Evolution(ctx context.Context, q progress.HistoryQuery) (EvolutionView, error) {
	if err := q.RequireTimeline(); err != nil {
		return EvolutionView{}, err
	}
	records, err := e.records.History(ctx, q)
	if err != nil {
		return EvolutionView{}, fmt.Errorf("load history: %w", err)
	}

	series := evolution.Aggregate(records)
	return EvolutionView{
		Series:    series,
		Skills:    orEmpty(evolution.SkillEvolutions(records)),
		Histories: orEmpty(evolution.Histories(records)),
		Alerts:    orEmpty(evolution.DetectRegressions(records)),
		Eligible:  series.Eligible(),
	}, nil
}

// GenerateReport synthesizes the report of the selected history. It fails
// on a query without period type, on store errors or with
// ErrInsufficientHistory; AI failures produce a computed report.
func (e *Engine) GenerateReport(ctx context.Context, q progress.HistoryQuery) (report.Report, error) {
	if err := q.RequireTimeline(); err != nil {
		return report.Report{}, err
	}
	records, err := e.records.History(ctx, q)
	if err != nil {
		return report.Report{}, fmt.Errorf("load history: %w", err)
	}

	in := report.NewInput(q.StudentID, q.Discipline, records)
	if !in.Series.Eligible() {
		return report.Report{}, ErrInsufficientHistory
	}
	in.Baselines = e.extractor.Extract(ctx, q.StudentID, q.Discipline, baseline.AssessedSkills(in.Records))

	r := e.reports.Synthesize(ctx, in)
	slog.Info("report generated",
		"student_id", q.StudentID,
		"discipline", q.Discipline,
		"source", r.Source,
		"trend", r.OverallTrend,
	)
	e.logEvent(ctx, Event{
		StudentID:  q.StudentID,
		Discipline: q.Discipline,
		EventType:  EventReportGenerated,
		Data: map[string]any{
			"source":  string(r.Source),
			"trend":   string(r.OverallTrend),
			"periods": len(records),
		},
	})
	return r, nil
}

func (e *Engine) logEvent(ctx context.Context, ev Event) {
	if err := e.events.LogEvent(ctx, ev); err != nil {
		slog.Warn("failed to log event", "type", ev.EventType, "error", err)
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
