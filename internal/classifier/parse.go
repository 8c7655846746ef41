package classifier

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var twoDigits = regexp.MustCompile(`\b(\d{2})\b`)

// parseReply turns a model reply into a category and confidence.
//
// A JSON object reply uses its category and confidence fields; a missing
// category falls back to normalising the whole reply. Any other reply is
// normalised as text and the first standalone two-digit number becomes the
// confidence.
func parseReply(raw string) (Category, int) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return parseText(raw)
	}

	obj, _ := parsed.(map[string]any)

	category := Normalize(raw)
	if label := truthyString(obj["category"]); label != "" {
		category = Normalize(label)
	}

	confidence := defaultConfidence
	if c, ok := number(obj["confidence"]); ok {
		confidence = int(math.Min(math.Max(math.Round(c), minConfidence), maxConfidence))
	}
	return category, confidence
}

func parseText(raw string) (Category, int) {
	confidence := defaultConfidence
	if m := twoDigits.FindStringSubmatch(raw); m != nil {
		if c, err := strconv.Atoi(m[1]); err == nil {
			confidence = clampConfidence(c)
		}
	}
	return Normalize(raw), confidence
}

// truthyString renders a JSON value as a label, "" for absent or empty values.
func truthyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// number reads a numeric confidence, accepting numeric strings. Zero counts
// as absent.
func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
