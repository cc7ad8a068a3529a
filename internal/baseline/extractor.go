package baseline

import (
	"context"
	"log/slog"

	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Extractor fetches a student's diagnostic and reconciles it with the
// curriculum skills.
type Extractor struct {
	diagnostics progress.DiagnosticStore
}

// NewExtractor creates an Extractor reading from the given diagnostic store.
// A nil store behaves as "no diagnostic available".
func NewExtractor(diagnostics progress.DiagnosticStore) *Extractor {
	return &Extractor{diagnostics: diagnostics}
}

// Extract returns one baseline per skill. A missing diagnostic or a failed
// fetch is not an error: every baseline is nil and the caller carries on
// without baseline display.
func (e *Extractor) Extract(ctx context.Context, studentID, discipline string, skills []curriculum.Skill) []SkillBaseline {
	if e == nil || e.diagnostics == nil {
		return Reconcile(nil, skills)
	}

	diag, err := e.diagnostics.GetDiagnostic(ctx, studentID, discipline)
	if err != nil {
		slog.Warn("diagnostic fetch failed, continuing without baseline",
			"student_id", studentID,
			"discipline", discipline,
			"error", err,
		)
		return Reconcile(nil, skills)
	}
	return Reconcile(diag, skills)
}
