package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-progress/internal/ai"
)

const defaultTimeout = 30 * time.Second

// Generator produces a completion; *ai.Router satisfies it.
type Generator interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Synthesizer produces reports, preferring the AI narrative.
type Synthesizer struct {
	gen     Generator
	cache   Cache
	timeout time.Duration
	model   string
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithCache memoises AI reports.
func WithCache(c Cache) Option {
	return func(s *Synthesizer) {
		s.cache = c
	}
}

// WithTimeout bounds the narrative call.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithModel requests a specific model from the generator's primary
// provider. It is also part of the cache fingerprint.
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		s.model = model
	}
}

// NewSynthesizer creates a Synthesizer. A nil generator makes every report
// take the computed path.
func NewSynthesizer(gen Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{gen: gen, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize never fails: errors on the AI path are logged and answered
// with Fallback(in).
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) Report {
	if s.gen == nil {
		return Fallback(in)
	}

	var key string
	if s.cache != nil {
		key = Fingerprint(in, s.model)
		cached, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("report cache read failed", "student_id", in.StudentID, "error", err)
		}
		if hit {
			slog.Debug("report cache hit", "student_id", in.StudentID, "discipline", in.Discipline)
			return cached
		}
	}

	r, err := s.generate(ctx, in)
	if err != nil {
		slog.Warn("AI report failed, using computed report",
			"student_id", in.StudentID,
			"discipline", in.Discipline,
			"error", err,
		)
		return Fallback(in)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, r); err != nil {
			slog.Warn("report cache write failed", "student_id", in.StudentID, "error", err)
		}
	}
	return r
}

func (s *Synthesizer) generate(ctx context.Context, in Input) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.gen.Complete(ctx, ai.CompletionRequest{
		Messages:    BuildPrompt(in),
		Model:       s.model,
		Temperature: 0.4,
		Task:        ai.TaskReport,
		JSON:        true,
	})
	if err != nil {
		return Report{}, err
	}

	r, err := ParseReply(resp.Content)
	if err != nil {
		return Report{}, err
	}
	if r.PeriodAnalyzed == "" {
		r.PeriodAnalyzed = periodRange(in.Series.Points)
	}
	r.Source = SourceAI
	return r, nil
}
