// Package curriculum provides the Skill Catalog: ordered curriculum skill
// codes per discipline and grade, loaded from YAML files and XLSX sheets.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-progress/internal/progress"
)

// Loader loads and caches skill sets from the filesystem. Skill order within
// a (discipline, grade) follows file order; duplicated codes keep their first
// occurrence.
type Loader struct {
	rootDir string
	sets    map[setKey][]Skill
	mu      sync.RWMutex
}

type setKey struct {
	discipline string
	grade      string
}

func newSetKey(discipline, grade string) setKey {
	return setKey{discipline: normalizeKey(discipline), grade: normalizeKey(grade)}
}

// NewLoader creates a new catalog loader and loads all content under rootDir.
// A missing or empty directory yields an empty catalog.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		sets:    make(map[setKey][]Skill),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading skill catalog: %w", err)
	}

	slog.Info("skill catalog loaded", "skill_sets", l.Count())
	return l, nil
}

// GetSkills returns the ordered skills for a discipline and grade, or nil
// when the catalog has none. Matching ignores case and surrounding spaces.
func (l *Loader) GetSkills(discipline, grade string) []Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	skills := l.sets[newSetKey(discipline, grade)]
	if len(skills) == 0 {
		return nil
	}
	return append([]Skill(nil), skills...)
}

// Count returns the number of (discipline, grade) skill sets loaded.
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sets)
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			return l.loadSkillSet(path)
		case ".xlsx":
			return l.loadSpreadsheet(path)
		}
		return nil
	})
}

func (l *Loader) loadSkillSet(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var set SkillSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		slog.Warn("skipping invalid skill set YAML", "path", path, "error", err)
		return nil
	}

	if set.Discipline == "" || len(set.Skills) == 0 {
		return nil // Not a skill set file
	}

	l.add(set.Discipline, set.Grade, set.Skills)
	return nil
}

// loadSpreadsheet reads every sheet whose header row carries code,
// description, discipline and grade columns (any order, any case).
func (l *Loader) loadSpreadsheet(path string) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		slog.Warn("skipping unreadable skill spreadsheet", "path", path, "error", err)
		return nil
	}
	defer func() { _ = f.Close() }()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			slog.Warn("skipping unreadable sheet", "path", path, "sheet", sheet, "error", err)
			continue
		}
		if len(rows) < 2 {
			continue
		}

		cols := headerColumns(rows[0])
		if _, ok := cols["code"]; !ok {
			continue
		}
		if _, ok := cols["discipline"]; !ok {
			slog.Warn("skill sheet has no discipline column", "path", path, "sheet", sheet)
			continue
		}

		for _, row := range rows[1:] {
			code := cell(row, cols, "code")
			discipline := cell(row, cols, "discipline")
			if code == "" || discipline == "" {
				continue
			}
			l.add(discipline, cell(row, cols, "grade"), []Skill{{
				Code:        code,
				Description: cell(row, cols, "description"),
			}})
		}
	}
	return nil
}

func (l *Loader) add(discipline, grade string, skills []Skill) {
	key := newSetKey(discipline, grade)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.sets[key]
	seen := make(map[string]bool, len(existing)+len(skills))
	for _, s := range existing {
		seen[normalizeKey(s.Code)] = true
	}
	for _, s := range skills {
		s.Code = strings.TrimSpace(s.Code)
		s.Description = strings.TrimSpace(s.Description)
		code := normalizeKey(s.Code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		existing = append(existing, s)
	}
	l.sets[key] = existing
}

func headerColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeKey(h)] = i
	}
	return cols
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeKey folds keys and codes the same way record skills are matched,
// so full-width and mixed-case spellings collapse together.
func normalizeKey(s string) string {
	return progress.NormalizeCode(s)
}
