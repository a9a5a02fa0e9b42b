package oracle

import (
	"encoding/json"
	"strings"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

// ExtractJSON pulls the first balanced {...} object out of a model
// reply. Models wrap JSON in prose or markdown fences, so the parse is
// deliberately lenient about surroundings; finding no object at all is
// a hard error, never a silent default.
func ExtractJSON(raw string) (string, error) {
	normalized := cleanModelJSON(raw)

	if extracted := extractFirstBalancedJSON(normalized, '{', '}'); extracted != "" {
		return extracted, nil
	}
	return "", kerrors.InvalidModelOutput("no JSON object in reply")
}

// ParseObject extracts and unmarshals the first JSON object in a reply.
func ParseObject(raw string, v any) error {
	extracted, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extracted), v); err != nil {
		return kerrors.InvalidModelOutput("unmarshal oracle reply: " + err.Error())
	}
	return nil
}

// ParseFields extracts the first JSON object as a flat field map.
// Non-string values are re-marshalled so numeric fields (e.g. event
// duration) survive as their literal representation.
func ParseFields(raw string) (map[string]string, error) {
	extracted, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(extracted), &loose); err != nil {
		return nil, kerrors.InvalidModelOutput("unparsable JSON object in reply")
	}

	fields := make(map[string]string, len(loose))
	for k, v := range loose {
		switch value := v.(type) {
		case string:
			fields[k] = value
		case nil:
			fields[k] = ""
		case float64:
			b, _ := json.Marshal(value)
			fields[k] = string(b)
		default:
			b, _ := json.Marshal(value)
			fields[k] = string(b)
		}
	}
	return fields, nil
}

func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func extractFirstBalancedJSON(input string, open, close byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return strings.TrimSpace(input[start : i+1])
			}
		}
	}
	return ""
}
