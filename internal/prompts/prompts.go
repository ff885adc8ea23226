// Package prompts holds the parameterized prompt templates of every code
// generation task. Rendering is pure: no state, no I/O.
package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// Response sentinels the templates instruct the model to emit
const (
	SentinelNoCodeSuggestion   = "// NO_CODE_SUGGESTION_POSSIBLE"
	SentinelImplementationErr  = "# IMPLEMENTATION_ERROR:"
	SentinelRefactorImpossible = "// REFACTORING_SUGGESTION_IMPOSSIBLE"
	MetadataPrefix             = "# METADATA:"

	DefaultModuleNameHint = "your_module_to_test"
)

// Name identifies a template
type Name string

const (
	NewTool             Name = "new_tool"
	CodeFix             Name = "code_fix"
	UnitTestScaffold    Name = "unit_test_scaffold"
	HierarchicalOutline Name = "hierarchical_outline"
	ComponentDetail     Name = "component_detail"
	GranularRefactor    Name = "granular_refactor"
)

var catalog = map[Name]*template.Template{
	NewTool:             parse(NewTool, newToolTemplate),
	CodeFix:             parse(CodeFix, codeFixTemplate),
	UnitTestScaffold:    parse(UnitTestScaffold, unitTestScaffoldTemplate),
	HierarchicalOutline: parse(HierarchicalOutline, hierarchicalOutlineTemplate),
	ComponentDetail:     parse(ComponentDetail, componentDetailTemplate),
	GranularRefactor:    parse(GranularRefactor, granularRefactorTemplate),
}

func parse(name Name, text string) *template.Template {
	return template.Must(template.New(string(name)).Option("missingkey=error").Parse(text))
}

// NewToolParams fills the NEW_TOOL template
type NewToolParams struct {
	Description string
}

// CodeFixParams fills the SELF_FIX_TOOL template
type CodeFixParams struct {
	ModulePath   string
	FunctionName string
	Problem      string
	OriginalCode string
}

// UnitTestScaffoldParams fills the GENERATE_UNIT_TEST_SCAFFOLD template
type UnitTestScaffoldParams struct {
	Code           string
	ModuleNameHint string
}

// OutlineParams fills the hierarchical outline template
type OutlineParams struct {
	Requirement string
}

// ComponentDetailParams fills the component detail template
type ComponentDetailParams struct {
	ContextSummary  string
	Kind            string
	Name            string
	Signature       string
	Description     string
	BodyPlaceholder string
	// Imports is the module import list; rendered as import statements
	Imports []string
}

// GranularRefactorParams fills the GRANULAR_CODE_REFACTOR template
type GranularRefactorParams struct {
	ModulePath   string
	FunctionName string
	OriginalCode string
	Section      string
	Instruction  string
}

func render(name Name, data any) (string, error) {
	tmpl, ok := catalog[name]
	if !ok {
		return "", fmt.Errorf("prompts: unknown template %q", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", name, err)
	}
	return sb.String(), nil
}

func RenderNewTool(p NewToolParams) (string, error) {
	return render(NewTool, p)
}

func RenderCodeFix(p CodeFixParams) (string, error) {
	return render(CodeFix, struct {
		CodeFixParams
		Sentinel string
	}{p, SentinelNoCodeSuggestion})
}

// RenderUnitTestScaffold falls back to DefaultModuleNameHint when no hint is given
func RenderUnitTestScaffold(p UnitTestScaffoldParams) (string, error) {
	if strings.TrimSpace(p.ModuleNameHint) == "" {
		p.ModuleNameHint = DefaultModuleNameHint
	}
	return render(UnitTestScaffold, p)
}

func RenderOutline(p OutlineParams) (string, error) {
	return render(HierarchicalOutline, p)
}

func RenderComponentDetail(p ComponentDetailParams) (string, error) {
	return render(ComponentDetail, struct {
		ComponentDetailParams
		Imports  string
		Sentinel string
	}{p, ImportBlock(p.Imports), SentinelImplementationErr})
}

func RenderGranularRefactor(p GranularRefactorParams) (string, error) {
	return render(GranularRefactor, struct {
		GranularRefactorParams
		Sentinel string
	}{p, SentinelRefactorImpossible})
}

// ImportBlock renders module names as import statements
func ImportBlock(imports []string) string {
	if len(imports) == 0 {
		return "# No specific module-level imports listed in outline."
	}
	lines := make([]string, 0, len(imports))
	for _, imp := range imports {
		lines = append(lines, ImportLine(imp))
	}
	return strings.Join(lines, "\n")
}

// ImportLine renders one outline import. Entries that already are import
// statements are kept as written.
func ImportLine(imp string) string {
	imp = strings.TrimSpace(imp)
	if strings.HasPrefix(imp, "import ") || strings.HasPrefix(imp, "from ") {
		return imp
	}
	return "import " + imp
}
