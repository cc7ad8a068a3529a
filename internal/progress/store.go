package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordStore persists periodic records. Save is an upsert on RecordKey that
// replaces the whole skill list and note; concurrent saves of the same key
// are last-write-wins.
type RecordStore interface {
	Get(ctx context.Context, key RecordKey) (PeriodicRecord, error)
	Save(ctx context.Context, rec PeriodicRecord) (PeriodicRecord, error)
	History(ctx context.Context, q HistoryQuery) ([]PeriodicRecord, error)
}

// DiagnosticStore is the diagnostic-results lookup. GetDiagnostic returns
// (nil, nil) when the student has no diagnostic for the discipline.
type DiagnosticStore interface {
	GetDiagnostic(ctx context.Context, studentID, discipline string) (*DiagnosticResult, error)
	SaveDiagnostic(ctx context.Context, d DiagnosticResult) (DiagnosticResult, error)
}

// MemoryStore is an in-memory implementation of RecordStore.
type MemoryStore struct {
	records map[RecordKey]PeriodicRecord
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[RecordKey]PeriodicRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key RecordKey) (PeriodicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return PeriodicRecord{}, fmt.Errorf("record %s: %w", key.Label(), ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, rec PeriodicRecord) (PeriodicRecord, error) {
	if err := rec.Validate(); err != nil {
		return PeriodicRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := rec.Clone()
	if stored.Skills == nil {
		stored.Skills = []SkillAssessment{}
	}
	if prev, ok := s.records[rec.Key()]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
		stored.Version = prev.Version + 1
	} else {
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
		stored.Version = 1
	}
	stored.UpdatedAt = now
	s.records[rec.Key()] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) History(_ context.Context, q HistoryQuery) ([]PeriodicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PeriodicRecord
	for _, rec := range s.records {
		if q.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	SortRecords(out)
	return out, nil
}

type diagnosticKey struct {
	studentID  string
	discipline string
}

// MemoryDiagnostics is an in-memory implementation of DiagnosticStore.
type MemoryDiagnostics struct {
	results map[diagnosticKey]DiagnosticResult
	mu      sync.RWMutex
}

// NewMemoryDiagnostics creates a new in-memory diagnostic store.
func NewMemoryDiagnostics() *MemoryDiagnostics {
	return &MemoryDiagnostics{
		results: make(map[diagnosticKey]DiagnosticResult),
	}
}

func (s *MemoryDiagnostics) GetDiagnostic(_ context.Context, studentID, discipline string) (*DiagnosticResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.results[diagnosticKey{studentID, discipline}]
	if !ok {
		return nil, nil
	}
	d = cloneDiagnostic(d)
	return &d, nil
}

func (s *MemoryDiagnostics) SaveDiagnostic(_ context.Context, d DiagnosticResult) (DiagnosticResult, error) {
	if err := d.Validate(); err != nil {
		return DiagnosticResult{}, err
	}
	if d.AssessedAt.IsZero() {
		d.AssessedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[diagnosticKey{d.StudentID, d.Discipline}] = cloneDiagnostic(d)
	return d, nil
}

func cloneDiagnostic(d DiagnosticResult) DiagnosticResult {
	if d.GlobalLevel != nil {
		d.GlobalLevel = LevelPtr(*d.GlobalLevel)
	}
	d.MasteredCodes = append([]string(nil), d.MasteredCodes...)
	d.DevelopingCodes = append([]string(nil), d.DevelopingCodes...)
	return d
}
