// Package outline validates LLM-produced JSON outlines and parses them into
// models.Outline. Parsing is pure and fails closed with *ParseError.
package outline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/sanitize"
)

// ParseError reports why an outline was rejected
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("outline: %s: %v", e.Reason, e.Err)
	}
	return "outline: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

func fail(reason string, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}

type rawOutline struct {
	ModuleName         string         `json:"module_name"`
	ModuleDocstring    string         `json:"module_docstring"`
	Description        string         `json:"description"`
	Imports            []string       `json:"imports"`
	Components         []rawComponent `json:"components"`
	MainExecutionBlock string         `json:"main_execution_block"`
}

type rawComponent struct {
	Type            string            `json:"type"`
	Name            string            `json:"name"`
	Signature       string            `json:"signature"`
	Description     string            `json:"description"`
	BodyPlaceholder string            `json:"body_placeholder"`
	Attributes      []json.RawMessage `json:"attributes"`
	Methods         []rawComponent    `json:"methods"`
}

// Parse decodes and validates raw model output. Markdown fences and prose
// around the JSON object are tolerated.
func Parse(raw string) (*models.Outline, error) {
	text, err := sanitize.ExtractJSON(raw)
	if err != nil {
		return nil, fail("no JSON object in model output", err)
	}

	var ro rawOutline
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&ro); err != nil {
		return nil, fail("invalid JSON", err)
	}
	if len(ro.Components) == 0 {
		return nil, fail("components must be a non-empty list", nil)
	}

	out := &models.Outline{
		ModuleName:         strings.TrimSpace(ro.ModuleName),
		ModuleDocstring:    strings.TrimSpace(ro.ModuleDocstring),
		MainExecutionBlock: strings.TrimRight(ro.MainExecutionBlock, " \t\n"),
	}
	if out.ModuleDocstring == "" {
		out.ModuleDocstring = strings.TrimSpace(ro.Description)
	}
	for _, imp := range ro.Imports {
		if imp = strings.TrimSpace(imp); imp != "" {
			out.Imports = append(out.Imports, imp)
		}
	}

	seen := make(map[string]bool)
	for i, rc := range ro.Components {
		c, err := parseComponent(rc, fmt.Sprintf("components[%d]", i), false)
		if err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fail(fmt.Sprintf("duplicate component %q", c.Name), nil)
		}
		seen[c.Name] = true
		for _, m := range c.Methods {
			key := models.MethodKey(c.Name, m.Name)
			if seen[key] {
				return nil, fail(fmt.Sprintf("duplicate method %q", key), nil)
			}
			seen[key] = true
		}
		out.Components = append(out.Components, c)
	}
	return out, nil
}

func parseComponent(rc rawComponent, path string, isMethod bool) (models.ComponentSpec, error) {
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		return models.ComponentSpec{}, fail(path+": missing name", nil)
	}

	kind := models.ComponentKind(strings.ToLower(strings.TrimSpace(rc.Type)))
	if isMethod {
		// Methods are functions; an omitted or "method" type is accepted.
		switch kind {
		case "", "method", models.KindFunction:
			kind = models.KindFunction
		default:
			return models.ComponentSpec{}, fail(fmt.Sprintf("%s (%s): method type must be function, got %q", path, name, rc.Type), nil)
		}
	} else if kind != models.KindFunction && kind != models.KindClass {
		return models.ComponentSpec{}, fail(fmt.Sprintf("%s (%s): type must be function or class, got %q", path, name, rc.Type), nil)
	}

	c := models.ComponentSpec{
		Kind:            kind,
		Name:            name,
		Description:     strings.TrimSpace(rc.Description),
		BodyPlaceholder: strings.TrimSpace(rc.BodyPlaceholder),
	}

	if kind == models.KindFunction {
		c.Signature = normalizeSignature(name, rc.Signature, isMethod)
		return c, nil
	}

	for j, raw := range rc.Attributes {
		attr, err := parseAttribute(raw)
		if err != nil {
			return models.ComponentSpec{}, fail(fmt.Sprintf("%s (%s): attributes[%d]", path, name, j), err)
		}
		c.Attributes = append(c.Attributes, attr)
	}
	for j, rm := range rc.Methods {
		m, err := parseComponent(rm, fmt.Sprintf("%s.methods[%d]", path, j), true)
		if err != nil {
			return models.ComponentSpec{}, err
		}
		c.Methods = append(c.Methods, m)
	}
	return c, nil
}

// parseAttribute accepts "name", "name: type" or {"name", "type", "description"}
func parseAttribute(raw json.RawMessage) (models.Attribute, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		name, typ, _ := strings.Cut(s, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return models.Attribute{}, fmt.Errorf("empty attribute")
		}
		return models.Attribute{Name: name, Type: strings.TrimSpace(typ)}, nil
	}

	var a models.Attribute
	if err := json.Unmarshal(raw, &a); err != nil {
		return models.Attribute{}, err
	}
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return models.Attribute{}, fmt.Errorf("attribute without name")
	}
	a.Type = strings.TrimSpace(a.Type)
	a.Description = strings.TrimSpace(a.Description)
	return a, nil
}

// normalizeSignature reduces "def name(a, b) -> int:", "name(a, b)" or
// "(a, b)" to the parameter list and return annotation "(a, b) -> int".
// A trailing comment is dropped.
func normalizeSignature(name, sig string, isMethod bool) string {
	s := strings.TrimSpace(stripComment(sig))
	s = strings.TrimPrefix(s, "async ")
	s = strings.TrimPrefix(s, "def ")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, name)
	s = strings.TrimSuffix(strings.TrimSpace(s), ":")
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		if isMethod {
			return "(self)"
		}
		return "()"
	}
	return s
}

// stripComment cuts sig at the first '#' that is outside brackets and string
// literals.
func stripComment(sig string) string {
	depth := 0
	var quote rune
	escaped := false
	for i, r := range sig {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case '#':
			if depth == 0 {
				return sig[:i]
			}
		}
	}
	return sig
}
