// Package progress defines the skill-progress data model: mastery levels,
// diagnostic results, and the periodic records teachers fill in for each
// evaluation cycle, plus the stores that persist them.
package progress

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Level is a mastery level on the ordinal 0-4 scale
// (0 = not started, 4 = mastered).
type Level int

const (
	MinLevel Level = 0
	MaxLevel Level = 4
)

// Valid reports whether l lies in [MinLevel, MaxLevel].
func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// LevelPtr returns a pointer to l.
func LevelPtr(l Level) *Level {
	return &l
}

// PeriodType is the evaluation cycle a record belongs to.
type PeriodType string

const (
	PeriodBimonthly PeriodType = "bimonthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodSemester  PeriodType = "semester"
)

// MaxPeriods returns how many periods of this type fit in a school year,
// or 0 for an unknown type.
func (p PeriodType) MaxPeriods() int {
	switch p {
	case PeriodBimonthly:
		return 4
	case PeriodQuarterly:
		return 3
	case PeriodSemester:
		return 2
	default:
		return 0
	}
}

// Valid reports whether p is a known period type.
func (p PeriodType) Valid() bool {
	return p.MaxPeriods() > 0
}

// ParsePeriodType parses a period type name case-insensitively.
func ParsePeriodType(s string) (PeriodType, error) {
	p := PeriodType(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", &ValidationError{Field: "periodType", Reason: fmt.Sprintf("unknown period type %q", s)}
	}
	return p, nil
}

// DiagnosticResult is the outcome of the initial diagnostic assessment of a
// student in one discipline. Codes use the diagnostic taxonomy, which is not
// guaranteed to match curriculum codes string-for-string.
type DiagnosticResult struct {
	StudentID       string    `json:"studentId"`
	Discipline      string    `json:"discipline"`
	GlobalLevel     *Level    `json:"globalLevel"`
	Score           float64   `json:"score"`
	MasteredCodes   []string  `json:"masteredCodes"`
	DevelopingCodes []string  `json:"developingCodes"`
	AssessedAt      time.Time `json:"assessedAt"`
}

// Validate checks identifying fields and value ranges.
func (d DiagnosticResult) Validate() error {
	if strings.TrimSpace(d.StudentID) == "" {
		return &ValidationError{Field: "studentId", Reason: "is required"}
	}
	if strings.TrimSpace(d.Discipline) == "" {
		return &ValidationError{Field: "discipline", Reason: "is required"}
	}
	if d.GlobalLevel != nil && !d.GlobalLevel.Valid() {
		return &ValidationError{Field: "globalLevel", Reason: fmt.Sprintf("%d is outside [0,4]", *d.GlobalLevel)}
	}
	if d.Score < 0 || d.Score > 100 {
		return &ValidationError{Field: "score", Reason: fmt.Sprintf("%g is outside [0,100]", d.Score)}
	}
	return nil
}

// SkillAssessment is one skill row inside a periodic record.
type SkillAssessment struct {
	Code          string `json:"code"`
	Description   string `json:"description"`
	CurrentLevel  Level  `json:"currentLevel"`
	PreviousLevel *Level `json:"previousLevel"`
	Note          string `json:"note"`
}

// RecordKey uniquely identifies a periodic record.
type RecordKey struct {
	StudentID    string     `json:"studentId"`
	Discipline   string     `json:"discipline"`
	PeriodType   PeriodType `json:"periodType"`
	PeriodNumber int        `json:"periodNumber"`
	SchoolYear   int        `json:"schoolYear"`
}

// Label renders the key for logs and error messages.
func (k RecordKey) Label() string {
	return fmt.Sprintf("%s/%s/%s-%d/%d", k.StudentID, k.Discipline, k.PeriodType, k.PeriodNumber, k.SchoolYear)
}

// Validate checks that every identifying field is present and in range.
func (k RecordKey) Validate() error {
	if strings.TrimSpace(k.StudentID) == "" {
		return &ValidationError{Field: "studentId", Reason: "is required"}
	}
	if strings.TrimSpace(k.Discipline) == "" {
		return &ValidationError{Field: "discipline", Reason: "is required"}
	}
	if !k.PeriodType.Valid() {
		return &ValidationError{Field: "periodType", Reason: fmt.Sprintf("unknown period type %q", k.PeriodType)}
	}
	if k.PeriodNumber < 1 || k.PeriodNumber > k.PeriodType.MaxPeriods() {
		return &ValidationError{
			Field:  "periodNumber",
			Reason: fmt.Sprintf("%d is outside [1,%d] for %s", k.PeriodNumber, k.PeriodType.MaxPeriods(), k.PeriodType),
		}
	}
	if k.SchoolYear <= 0 {
		return &ValidationError{Field: "schoolYear", Reason: "is required"}
	}
	return nil
}

// PeriodicRecord holds a teacher's evaluation of one student in one
// discipline for one period. Saving replaces the whole record.
type PeriodicRecord struct {
	ID string `json:"id,omitempty"`
	RecordKey
	Grade       string            `json:"grade,omitempty"`
	Skills      []SkillAssessment `json:"skills"`
	GeneralNote string            `json:"generalNote"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Key returns the record's identifying key.
func (r PeriodicRecord) Key() RecordKey {
	return r.RecordKey
}

// Validate rejects records with missing identifiers, empty skill codes or
// levels outside [0,4].
func (r PeriodicRecord) Validate() error {
	if err := r.RecordKey.Validate(); err != nil {
		return err
	}
	for i, s := range r.Skills {
		if strings.TrimSpace(s.Code) == "" {
			return &ValidationError{Field: fmt.Sprintf("skills[%d].code", i), Reason: "is required"}
		}
		if !s.CurrentLevel.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("skills[%d].currentLevel", i),
				Reason: fmt.Sprintf("%d is outside [0,4]", s.CurrentLevel),
			}
		}
		if s.PreviousLevel != nil && !s.PreviousLevel.Valid() {
			return &ValidationError{
				Field:  fmt.Sprintf("skills[%d].previousLevel", i),
				Reason: fmt.Sprintf("%d is outside [0,4]", *s.PreviousLevel),
			}
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share skill slices or level
// pointers with a store.
func (r PeriodicRecord) Clone() PeriodicRecord {
	out := r
	out.Skills = make([]SkillAssessment, len(r.Skills))
	for i, s := range r.Skills {
		if s.PreviousLevel != nil {
			s.PreviousLevel = LevelPtr(*s.PreviousLevel)
		}
		out.Skills[i] = s
	}
	return out
}

// Skill returns the first assessment whose code normalizes to the same value
// as code.
func (r PeriodicRecord) Skill(code string) (SkillAssessment, bool) {
	want := NormalizeCode(code)
	for _, s := range r.Skills {
		if NormalizeCode(s.Code) == want {
			return s, true
		}
	}
	return SkillAssessment{}, false
}

// SortRecords orders records chronologically: school year, then period
// number, then period type name.
func SortRecords(records []PeriodicRecord) {
	slices.SortStableFunc(records, func(a, b PeriodicRecord) int {
		return cmp.Or(
			cmp.Compare(a.SchoolYear, b.SchoolYear),
			cmp.Compare(a.PeriodNumber, b.PeriodNumber),
			cmp.Compare(a.PeriodType, b.PeriodType),
		)
	})
}

// HistoryQuery selects the records of a (student, discipline) pair. An empty
// PeriodType or a zero SchoolYear matches every value.
type HistoryQuery struct {
	StudentID  string
	Discipline string
	PeriodType PeriodType
	SchoolYear int
}

// RequireTimeline rejects queries that would merge period types. Periods
// of different types overlap in time, so an evolution needs exactly one.
func (q HistoryQuery) RequireTimeline() error {
	if q.PeriodType == "" {
		return &ValidationError{Field: "periodType", Reason: "is required"}
	}
	return nil
}

// Matches reports whether r falls inside the query.
func (q HistoryQuery) Matches(r PeriodicRecord) bool {
	if r.StudentID != q.StudentID || r.Discipline != q.Discipline {
		return false
	}
	if q.PeriodType != "" && r.PeriodType != q.PeriodType {
		return false
	}
	if q.SchoolYear != 0 && r.SchoolYear != q.SchoolYear {
		return false
	}
	return true
}
