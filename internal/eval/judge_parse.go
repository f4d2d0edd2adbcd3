package eval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Judge replies arrive as prose with a JSON object embedded somewhere in
// them. Extraction takes the first balanced-looking object and tolerates
// everything around it; any failure here is a single fallback branch for
// the evaluator, never an exception path.
var jsonObjectRE = regexp.MustCompile(`(?s)\{.*?\}`)

type judgeAssessment map[string]any

func parseJudgeReply(reply string) (judgeAssessment, error) {
	match := jsonObjectRE.FindString(reply)
	if match == "" {
		return nil, fmt.Errorf("no JSON found in judge LLM response")
	}

	var assessment judgeAssessment
	if err := json.Unmarshal([]byte(match), &assessment); err != nil {
		return nil, fmt.Errorf("malformed JSON in judge LLM response: %w", err)
	}
	return assessment, nil
}

// floatField reads a score field, returning def when absent. A present but
// non-numeric value is a parse error (the judge broke the output contract).
// Numeric strings are accepted, matching the original loose conversion.
func (a judgeAssessment) floatField(key string, def float64) (float64, error) {
	value, ok := a[key]
	if !ok {
		return def, nil
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %q", key, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q is not numeric", key)
	}
}

// boolField reads a flag field, returning def when absent or mistyped.
func (a judgeAssessment) boolField(key string, def bool) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return def
}

// stringField reads a text field, returning def when absent or mistyped.
func (a judgeAssessment) stringField(key string, def string) string {
	if v, ok := a[key].(string); ok && v != "" {
		return v
	}
	return def
}
