package agent

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/jllopis/relay/pkg/errors"
)

// ParseReply extracts the JSON object from a model reply. Code fences and
// surrounding prose are ignored, and malformed JSON is repaired when
// possible. Anything else is an INVALID_RESPONSE.
func ParseReply(text string) (map[string]any, error) {
	body := extractObject(text)
	if body == "" {
		return nil, errors.New(errors.CodeInvalidResponse, "model reply holds no JSON object", nil).
			WithContext("reply", truncate(text, 200))
	}
	var out map[string]any
	if err := unmarshalJSON([]byte(body), &out); err != nil {
		return nil, errors.New(errors.CodeInvalidResponse, "model reply is not valid JSON", err).
			WithContext("reply", truncate(text, 200))
	}
	if out == nil {
		return nil, errors.New(errors.CodeInvalidResponse, "model reply is not a JSON object", nil)
	}
	return out, nil
}

func extractObject(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		// Truncated reply; let the repairer close it.
		return s[start:]
	}
	return s[start : end+1]
}

// unmarshalJSON retries with jsonrepair when the payload has a syntax error.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// jsonValue converts a typed value into its JSON shape (maps, slices,
// float64) so payloads look the same before and after persistence.
func jsonValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// list never returns nil so payloads keep the same shape after a JSON
// round trip.
func list(m map[string]any, key string) []any {
	l, ok := m[key].([]any)
	if !ok {
		return []any{}
	}
	return l
}

func num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func object(m map[string]any, key string) map[string]any {
	o, _ := m[key].(map[string]any)
	return o
}

func stringList(l []any) []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
