package adminsdk

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	angleBrackets  = strings.NewReplacer("<", "", ">", "")
	scriptScheme   = regexp.MustCompile(`(?i)javascript\s*:`)
	inlineHandlers = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// SanitizeString strips markup-injection vectors from user input: angle
// brackets, javascript: schemes and inline on*= handlers. Surrounding
// whitespace is trimmed.
func SanitizeString(s string) string {
	s = angleBrackets.Replace(s)
	s = scriptScheme.ReplaceAllString(s, "")
	s = inlineHandlers.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// SanitizeValue walks decoded JSON and sanitizes every string value. Map
// keys and non-string scalars are left alone.
func SanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizeString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = SanitizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = SanitizeValue(val)
		}
		return out
	default:
		return v
	}
}

// SanitizeJSON encodes v after sanitizing every string it contains.
func SanitizeJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(SanitizeValue(generic)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
