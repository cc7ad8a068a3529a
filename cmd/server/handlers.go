package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/p-n-ai/pai-progress/internal/ai"
	"github.com/p-n-ai/pai-progress/internal/baseline"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/report"
	"github.com/p-n-ai/pai-progress/internal/tracker"
)

const maxBodyBytes = 1 << 20

// app holds the handler dependencies.
type app struct {
	engine *tracker.Engine
	// checks are pinged by /readyz, keyed by dependency name.
	checks map[string]func(context.Context) error
	// router is nil when no AI provider is configured.
	router *ai.Router
}

// newMux creates the HTTP router with health check and progress endpoints.
func newMux(a *app) *http.ServeMux {
	const base = "/v1/students/{student}/disciplines/{discipline}"

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /v1/ai/providers", a.handleAIProviders)
	mux.HandleFunc("GET "+base+"/baseline", a.handleBaseline)
	mux.HandleFunc("PUT "+base+"/diagnostic", a.handlePutDiagnostic)
	mux.HandleFunc("GET "+base+"/periods/{type}/{number}", a.handleGetPeriod)
	mux.HandleFunc("PUT "+base+"/periods/{type}/{number}", a.handlePutPeriod)
	mux.HandleFunc("GET "+base+"/evolution", a.handleEvolution)
	mux.HandleFunc("POST "+base+"/report", a.handleReport)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": name})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type providersResponse struct {
	Providers []ai.ProviderStatus `json:"providers"`
}

// handleAIProviders reports each provider's models and health. An unhealthy
// provider does not make the service unready: reports fall back.
func (a *app) handleAIProviders(w http.ResponseWriter, r *http.Request) {
	resp := providersResponse{Providers: []ai.ProviderStatus{}}
	if a.router != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		resp.Providers = a.router.Status(ctx)
	}
	writeJSON(w, http.StatusOK, resp)
}

type baselineResponse struct {
	StudentID  string                   `json:"studentId"`
	Discipline string                   `json:"discipline"`
	Grade      string                   `json:"grade"`
	Skills     []baseline.SkillBaseline `json:"skills"`
}

func (a *app) handleBaseline(w http.ResponseWriter, r *http.Request) {
	student, discipline := r.PathValue("student"), r.PathValue("discipline")
	grade := r.URL.Query().Get("grade")

	writeJSON(w, http.StatusOK, baselineResponse{
		StudentID:  student,
		Discipline: discipline,
		Grade:      grade,
		Skills:     a.engine.Baseline(r.Context(), student, discipline, grade),
	})
}

func (a *app) handlePutDiagnostic(w http.ResponseWriter, r *http.Request) {
	var d progress.DiagnosticResult
	if err := decodeBody(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.StudentID = r.PathValue("student")
	d.Discipline = r.PathValue("discipline")

	saved, err := a.engine.SaveDiagnostic(r.Context(), d)
	if err != nil {
		writeStoreError(w, "save diagnostic", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

type periodResponse struct {
	Record progress.PeriodicRecord `json:"record"`
	Stored bool                    `json:"stored"`
}

func (a *app) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	key, err := recordKey(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, stored, err := a.engine.Draft(r.Context(), key, r.URL.Query().Get("grade"))
	if err != nil {
		writeStoreError(w, "load period", err)
		return
	}
	writeJSON(w, http.StatusOK, periodResponse{Record: rec, Stored: stored})
}

func (a *app) handlePutPeriod(w http.ResponseWriter, r *http.Request) {
	var rec progress.PeriodicRecord
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := recordKey(r, rec.SchoolYear)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec.RecordKey = key

	saved, err := a.engine.SaveRecord(r.Context(), rec)
	if err != nil {
		writeStoreError(w, "save period", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *app) handleEvolution(w http.ResponseWriter, r *http.Request) {
	q, err := historyQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := a.engine.Evolution(r.Context(), q)
	if err != nil {
		writeStoreError(w, "compute evolution", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type reportResponse struct {
	Eligible bool           `json:"eligible"`
	Reason   string         `json:"reason,omitempty"`
	Report   *report.Report `json:"report,omitempty"`
}

func (a *app) handleReport(w http.ResponseWriter, r *http.Request) {
	q, err := historyQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := a.engine.GenerateReport(r.Context(), q)
	if errors.Is(err, tracker.ErrInsufficientHistory) {
		writeJSON(w, http.StatusOK, reportResponse{Eligible: false, Reason: err.Error()})
		return
	}
	if err != nil {
		writeStoreError(w, "generate report", err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Eligible: true, Report: &rep})
}

// recordKey builds the key from the path and the year query, which falls
// back to year when absent.
func recordKey(r *http.Request, year int) (progress.RecordKey, error) {
	periodType, err := progress.ParsePeriodType(r.PathValue("type"))
	if err != nil {
		return progress.RecordKey{}, err
	}
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		return progress.RecordKey{}, &progress.ValidationError{Field: "periodNumber", Reason: "must be an integer"}
	}
	if v := r.URL.Query().Get("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return progress.RecordKey{}, &progress.ValidationError{Field: "year", Reason: "must be an integer"}
		}
	}

	key := progress.RecordKey{
		StudentID:    r.PathValue("student"),
		Discipline:   r.PathValue("discipline"),
		PeriodType:   periodType,
		PeriodNumber: number,
		SchoolYear:   year,
	}
	return key, key.Validate()
}

// historyQuery reads the required type filter and the optional year.
func historyQuery(r *http.Request) (progress.HistoryQuery, error) {
	q := progress.HistoryQuery{
		StudentID:  r.PathValue("student"),
		Discipline: r.PathValue("discipline"),
	}
	if v := r.URL.Query().Get("type"); v != "" {
		periodType, err := progress.ParsePeriodType(v)
		if err != nil {
			return q, err
		}
		q.PeriodType = periodType
	}
	if err := q.RequireTimeline(); err != nil {
		return q, err
	}
	if v := r.URL.Query().Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return q, &progress.ValidationError{Field: "year", Reason: "must be an integer"}
		}
		q.SchoolYear = year
	}
	return q, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeStoreError maps validation failures to 400; anything else is logged
// and answered with 500.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	if progress.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
