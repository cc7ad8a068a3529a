package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed RecordStore. Skills are kept as a
// JSONB array on the record row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed record store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

const recordColumns = `id::text, student_id, discipline, period_type, period_number, school_year,
	grade, skills, general_note, version, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, key RecordKey) (PeriodicRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		 FROM periodic_records
		 WHERE student_id = $1
		   AND discipline = $2
		   AND period_type = $3
		   AND period_number = $4
		   AND school_year = $5`,
		key.StudentID,
		key.Discipline,
		string(key.PeriodType),
		key.PeriodNumber,
		key.SchoolYear,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodicRecord{}, fmt.Errorf("record %s: %w", key.Label(), ErrNotFound)
		}
		return PeriodicRecord{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec PeriodicRecord) (PeriodicRecord, error) {
	if err := rec.Validate(); err != nil {
		return PeriodicRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	skills := rec.Skills
	if skills == nil {
		skills = []SkillAssessment{}
	}
	data, err := json.Marshal(skills)
	if err != nil {
		return PeriodicRecord{}, fmt.Errorf("marshal skills: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO periodic_records
		   (student_id, discipline, period_type, period_number, school_year, grade, skills, general_note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 ON CONFLICT (student_id, discipline, period_type, period_number, school_year)
		 DO UPDATE SET
		   grade        = EXCLUDED.grade,
		   skills       = EXCLUDED.skills,
		   general_note = EXCLUDED.general_note,
		   version      = periodic_records.version + 1,
		   updated_at   = NOW()
		 RETURNING `+recordColumns,
		rec.StudentID,
		rec.Discipline,
		string(rec.PeriodType),
		rec.PeriodNumber,
		rec.SchoolYear,
		rec.Grade,
		string(data),
		rec.GeneralNote,
	)
	saved, err := scanRecord(row)
	if err != nil {
		return PeriodicRecord{}, fmt.Errorf("upsert record: %w", err)
	}

	slog.Debug("periodic record upserted", "key", saved.Label(), "version", saved.Version)
	return saved, nil
}

func (s *PostgresStore) History(ctx context.Context, q HistoryQuery) ([]PeriodicRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+`
		 FROM periodic_records
		 WHERE student_id = $1
		   AND discipline = $2
		   AND ($3 = '' OR period_type = $3)
		   AND ($4 = 0 OR school_year = $4)
		 ORDER BY school_year ASC, period_number ASC, period_type ASC`,
		q.StudentID,
		q.Discipline,
		string(q.PeriodType),
		q.SchoolYear,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []PeriodicRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (PeriodicRecord, error) {
	var rec PeriodicRecord
	var periodType string
	var skills []byte
	if err := row.Scan(
		&rec.ID,
		&rec.StudentID,
		&rec.Discipline,
		&periodType,
		&rec.PeriodNumber,
		&rec.SchoolYear,
		&rec.Grade,
		&skills,
		&rec.GeneralNote,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return PeriodicRecord{}, err
	}
	rec.PeriodType = PeriodType(periodType)
	rec.Skills = []SkillAssessment{}
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &rec.Skills); err != nil {
			return PeriodicRecord{}, fmt.Errorf("unmarshal skills: %w", err)
		}
	}
	return rec, nil
}

// PostgresDiagnostics is a PostgreSQL-backed DiagnosticStore.
type PostgresDiagnostics struct {
	pool *pgxpool.Pool
}

// NewPostgresDiagnostics creates a PostgreSQL-backed diagnostic store.
func NewPostgresDiagnostics(pool *pgxpool.Pool) (*PostgresDiagnostics, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresDiagnostics{pool: pool}, nil
}

func (s *PostgresDiagnostics) GetDiagnostic(ctx context.Context, studentID, discipline string) (*DiagnosticResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	d := DiagnosticResult{StudentID: studentID, Discipline: discipline}
	var globalLevel *int
	err := s.pool.QueryRow(ctx,
		`SELECT global_level, score, mastered_codes, developing_codes, assessed_at
		 FROM diagnostic_results
		 WHERE student_id = $1 AND discipline = $2`,
		studentID,
		discipline,
	).Scan(&globalLevel, &d.Score, &d.MasteredCodes, &d.DevelopingCodes, &d.AssessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get diagnostic: %w", err)
	}
	if globalLevel != nil {
		d.GlobalLevel = LevelPtr(Level(*globalLevel))
	}
	return &d, nil
}

func (s *PostgresDiagnostics) SaveDiagnostic(ctx context.Context, d DiagnosticResult) (DiagnosticResult, error) {
	if err := d.Validate(); err != nil {
		return DiagnosticResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	assessedAt := d.AssessedAt
	if assessedAt.IsZero() {
		assessedAt = time.Now()
	}
	var globalLevel any
	if d.GlobalLevel != nil {
		globalLevel = int(*d.GlobalLevel)
	}
	mastered := d.MasteredCodes
	if mastered == nil {
		mastered = []string{}
	}
	developing := d.DevelopingCodes
	if developing == nil {
		developing = []string{}
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO diagnostic_results
		   (student_id, discipline, global_level, score, mastered_codes, developing_codes, assessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (student_id, discipline)
		 DO UPDATE SET
		   global_level     = EXCLUDED.global_level,
		   score            = EXCLUDED.score,
		   mastered_codes   = EXCLUDED.mastered_codes,
		   developing_codes = EXCLUDED.developing_codes,
		   assessed_at      = EXCLUDED.assessed_at
		 RETURNING assessed_at`,
		d.StudentID,
		d.Discipline,
		globalLevel,
		d.Score,
		mastered,
		developing,
		assessedAt,
	).Scan(&d.AssessedAt)
	if err != nil {
		return DiagnosticResult{}, fmt.Errorf("upsert diagnostic: %w", err)
	}
	d.MasteredCodes = mastered
	d.DevelopingCodes = developing
	return d, nil
}
