package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

var errNoJSONObject = errors.New("no JSON object in reply")

const reportSchema = `{
  "type": "object",
  "required": ["title", "summary", "overallTrend"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "periodAnalyzed": {"type": "string"},
    "summary": {"type": "string", "minLength": 1},
    "overallTrend": {"enum": ["improving", "stable", "regressing"]},
    "highlights": {"type": "array", "items": {"type": "string"}},
    "skillsImproving": {"type": "array", "items": {"type": "string"}},
    "skillsNeedingAttention": {"type": "array", "items": {"type": "string"}},
    "suggestedActions": {"type": "array", "items": {"type": "string"}},
    "noteForPlan": {"type": "string"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(reportSchema))
})

// ParseReply extracts the first top-level JSON object from an AI reply,
// validates it against the report schema and decodes it.
func ParseReply(text string) (Report, error) {
	raw, err := extractJSONObject(text)
	if err != nil {
		return Report{}, err
	}
	if err := validateReport(raw); err != nil {
		return Report{}, err
	}

	var r Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	r.normalize()
	return r, nil
}

func validateReport(raw string) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile report schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("validate report: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("report does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// extractJSONObject returns the first balanced {...} in text. Braces inside
// JSON strings are ignored.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errNoJSONObject
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object: %w", errNoJSONObject)
}
