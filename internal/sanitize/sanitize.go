// Package sanitize cleans raw LLM text into code and structured payloads
package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reLeadingFence  = regexp.MustCompile("(?i)^```[a-z0-9_+.-]*[ \t]*\r?\n?")
	reTrailingFence = regexp.MustCompile("\r?\n?[ \t]*```[ \t]*$")
	reBlankRuns     = regexp.MustCompile(`\n{4,}`)
	reTrailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// StripFences removes one leading markdown fence line (with an optional
// language tag) and one trailing fence.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = reLeadingFence.ReplaceAllString(s, "")
	s = reTrailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Code turns a raw completion into source text: fences stripped, line endings
// normalized and surrounding whitespace trimmed. A completion that arrives
// with escaped newlines only is unescaped.
func Code(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = StripFences(s)
	if !strings.Contains(s, "\n") && strings.Contains(s, `\n`) {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return strings.TrimSpace(s)
}

// CollapseBlankLines strips trailing whitespace from lines and reduces every
// run of more than two blank lines to exactly two.
func CollapseBlankLines(s string) string {
	s = reTrailingSpace.ReplaceAllString(s, "\n")
	return reBlankRuns.ReplaceAllString(s, "\n\n\n")
}

// ExtractMetadata splits a "# METADATA: {...}" first line from the code
// following it. ok is false when the line is missing or its JSON is invalid;
// code is then the whole sanitized input minus any metadata line.
func ExtractMetadata(raw, prefix string) (meta map[string]interface{}, code string, ok bool) {
	s := strings.TrimLeft(strings.ReplaceAll(raw, "\r\n", "\n"), " \t\n")
	s = StripFences(s)

	first, rest, _ := strings.Cut(s, "\n")
	if !strings.HasPrefix(strings.TrimSpace(first), prefix) {
		return nil, Code(s), false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(first), prefix))
	obj, err := firstObject(payload)
	if err == nil {
		err = json.Unmarshal([]byte(obj), &meta)
	}
	if err != nil {
		return nil, Code(rest), false
	}
	return meta, Code(rest), true
}

// ExtractJSON returns the JSON object embedded in raw model output. It strips
// fences and, when prose surrounds the object, keeps the outermost {...} span.
func ExtractJSON(raw string) (string, error) {
	s := StripFences(strings.ReplaceAll(raw, "\r\n", "\n"))
	if s == "" {
		return "", fmt.Errorf("no JSON content")
	}
	if json.Valid([]byte(s)) {
		return s, nil
	}
	return firstObject(s)
}

// firstObject returns the outermost balanced {...} span, skipping braces
// inside JSON strings.
func firstObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found")
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON object")
}
