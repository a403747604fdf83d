// Package extract pulls structured JSON out of free-form model replies.
package extract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	braceObject  = regexp.MustCompile(`(?s)(\{.*\})`)
)

// JSON parses text as JSON. It tries the whole string, then the first fenced
// code block holding an object, then the span from the first '{' to the last '}'.
func JSON(text string) (any, bool) {
	if v, ok := parse(text); ok {
		return v, true
	}
	if m := fencedObject.FindStringSubmatch(text); m != nil {
		if v, ok := parse(m[1]); ok {
			return v, true
		}
	}
	if m := braceObject.FindStringSubmatch(text); m != nil {
		if v, ok := parse(m[1]); ok {
			return v, true
		}
	}
	return nil, false
}

// Object is JSON restricted to a top-level object.
func Object(text string) (map[string]any, bool) {
	v, ok := JSON(text)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// Pretty indents a JSON document with two spaces. Text that is not JSON is
// returned unchanged.
func Pretty(text string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(text)), "", "  "); err != nil {
		return text
	}
	return buf.String()
}

// PrettyValue renders an extracted value as indented JSON without HTML escaping.
func PrettyValue(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimRight(buf.String(), "\n")
}

func parse(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}
