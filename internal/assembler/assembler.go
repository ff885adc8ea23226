// Package assembler merges an outline and per-component code into one Python
// source file.
//
// Assemble is pure and total: components without generated code become
// placeholders, and output depends only on the outline order, never on the
// order in which component results were produced.
package assembler

import (
	"regexp"
	"strings"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/prompts"
	"github.com/axiom/ucws/internal/sanitize"
)

var reSelfAssign = regexp.MustCompile(`self\.([A-Za-z_][A-Za-z0-9_]*)\s*(?::[^=\n]*)?=[^=]`)

const (
	indentUnit = "    "

	// PlaceholderBody is the statement synthesized for missing components
	PlaceholderBody = "pass  # TODO: Implement"
)

// Assemble renders the module: docstring, imports, components in outline
// order, then the main block. Blank-line runs are capped at two.
func Assemble(o *models.Outline, results models.ComponentResults) string {
	if o == nil {
		return ""
	}

	var blocks []string
	if o.ModuleDocstring != "" {
		blocks = append(blocks, docstring(o.ModuleDocstring, ""))
	}
	if len(o.Imports) > 0 {
		lines := make([]string, 0, len(o.Imports))
		for _, imp := range o.Imports {
			lines = append(lines, prompts.ImportLine(imp))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	for _, c := range o.Components {
		switch c.Kind {
		case models.KindClass:
			blocks = append(blocks, class(c, results))
		default:
			if code, ok := results.Code(c.Name); ok {
				blocks = append(blocks, dedent(code))
			} else {
				blocks = append(blocks, placeholder(c, ""))
			}
		}
	}

	if strings.TrimSpace(o.MainExecutionBlock) != "" {
		blocks = append(blocks, dedent(o.MainExecutionBlock))
	}

	out := sanitize.CollapseBlankLines(strings.Join(blocks, "\n\n\n"))
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}
	return out + "\n"
}

func class(c models.ComponentSpec, results models.ComponentResults) string {
	var sb strings.Builder
	sb.WriteString("class " + c.Name + ":\n")

	hasBody := false
	if c.Description != "" {
		sb.WriteString(docstring(c.Description, indentUnit) + "\n")
		hasBody = true
	}

	initCode, _ := results.Code(models.MethodKey(c.Name, "__init__"))
	assigned := selfAssignments(initCode)
	var hints []string
	for _, a := range c.Attributes {
		if assigned[a.Name] {
			continue
		}
		hints = append(hints, indentUnit+attributeHint(a))
	}
	if len(hints) > 0 {
		if hasBody {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(hints, "\n") + "\n")
	}

	for i, m := range c.Methods {
		if i > 0 || hasBody || len(hints) > 0 {
			sb.WriteString("\n")
		}
		if code, ok := results.Code(models.MethodKey(c.Name, m.Name)); ok {
			sb.WriteString(indent(dedent(code), indentUnit) + "\n")
		} else {
			sb.WriteString(placeholder(m, indentUnit) + "\n")
		}
		hasBody = true
	}

	// Comments alone are not a suite.
	if !hasBody {
		sb.WriteString(indentUnit + "pass\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// placeholder synthesizes a syntactically valid stand-in definition
func placeholder(c models.ComponentSpec, prefix string) string {
	sig := c.Signature
	if sig == "" {
		sig = "()"
	}
	body := prefix + indentUnit
	lines := []string{prefix + "def " + c.Name + sig + ":"}
	if c.Description != "" {
		lines = append(lines, docstring(c.Description, body))
	}
	for _, l := range splitLines(c.BodyPlaceholder) {
		l = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(l), "#"))
		if l != "" {
			lines = append(lines, body+"# "+l)
		}
	}
	lines = append(lines, body+PlaceholderBody)
	return strings.Join(lines, "\n")
}

func attributeHint(a models.Attribute) string {
	hint := "# " + a.Name
	if a.Type != "" {
		hint += ": " + a.Type
	}
	if a.Description != "" {
		hint += "  (" + firstLine(a.Description) + ")"
	}
	return hint
}

// selfAssignments collects the attribute names __init__ code assigns on self
func selfAssignments(initCode string) map[string]bool {
	if initCode == "" {
		return nil
	}
	names := make(map[string]bool)
	for _, m := range reSelfAssign.FindAllStringSubmatch(initCode, -1) {
		names[m[1]] = true
	}
	return names
}

// docstring renders text as a triple-quoted string at the given indentation
func docstring(text, prefix string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `"""`, `\"\"\"`)
	if strings.HasSuffix(text, `"`) {
		text += " "
	}

	lines := splitLines(text)
	if len(lines) == 1 {
		return prefix + `"""` + lines[0] + `"""`
	}
	var sb strings.Builder
	sb.WriteString(prefix + `"""` + lines[0] + "\n")
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		if l == "" {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(prefix + l + "\n")
	}
	sb.WriteString(prefix + `"""`)
	return sb.String()
}

// dedent removes the longest whitespace prefix shared by all non-blank lines
func dedent(code string) string {
	lines := splitLines(strings.Trim(code, "\n"))
	common := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ws := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			common = ws
			first = false
			continue
		}
		for !strings.HasPrefix(ws, common) {
			common = common[:len(common)-1]
		}
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimRight(strings.TrimPrefix(l, common), " \t")
	}
	return strings.Join(lines, "\n")
}

// indent prefixes every non-blank line
func indent(code, prefix string) string {
	lines := splitLines(code)
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func firstLine(s string) string {
	l, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(l)
}
