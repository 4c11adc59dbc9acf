package passes

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractJSON isolates the first complete JSON value in raw model output.
// It strips code fences, then scans for a balanced bracket pair. When an
// array opens before an object the array wins, which keeps dialogue-shaped
// output from being mistaken for a wrapper object.
func ExtractJSON(raw string) (string, bool) {
	s := stripFences(raw)

	objIdx := strings.IndexByte(s, '{')
	arrIdx := strings.IndexByte(s, '[')

	arrayFirst := arrIdx >= 0 && (objIdx < 0 || arrIdx < objIdx)
	if arrayFirst {
		if v, ok := extractFrom(s, arrIdx); ok {
			return v, true
		}
		if objIdx >= 0 {
			return extractFrom(s, objIdx)
		}
		return "", false
	}
	if objIdx >= 0 {
		if v, ok := extractFrom(s, objIdx); ok {
			return v, true
		}
	}
	if arrIdx >= 0 {
		return extractFrom(s, arrIdx)
	}
	return "", false
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and tolerates a missing closing fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if len(tag) <= 8 && !strings.ContainsAny(tag, "{}[]") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// extractFrom returns the balanced JSON value starting at start, or falls
// back to the widest bracket span when the value was truncated mid-string.
func extractFrom(s string, start int) (string, bool) {
	open := s[start]
	var closer byte
	switch open {
	case '{':
		closer = '}'
	case '[':
		closer = ']'
	default:
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}

	// Unbalanced: the model ran out of tokens. Try the widest span in case
	// only trailing junk follows the real value.
	if last := strings.LastIndexByte(s, closer); last > start {
		candidate := s[start : last+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// unmarshalAny decodes extracted JSON into generic containers for lenient
// field access.
func unmarshalAny(candidate string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// field returns the first present key from a map, matching keys
// case-insensitively.
func field(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	for mk, v := range m {
		lk := strings.ToLower(mk)
		for _, k := range keys {
			if lk == k {
				return v, true
			}
		}
	}
	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s := asString(v); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
