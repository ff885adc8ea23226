package assembler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/outline"
	"github.com/axiom/ucws/internal/syntax"
)

// awkwardOutline exercises every piece of text the assembler copies from an
// outline into Python source.
func awkwardOutline() *models.Outline {
	return &models.Outline{
		ModuleDocstring: "Paths like C:\\temp\\ end in a backslash\\",
		Imports:         []string{"json", "from typing import List"},
		Components: []models.ComponentSpec{
			{
				Kind:        models.KindFunction,
				Name:        "quote",
				Signature:   "(text: str, mark: str = '\"') -> str",
				Description: "Wraps text in \"\"\"triple quotes\"\"\".\nSecond line ends with a quote \"",
				BodyPlaceholder: "# strip the input\n" +
					"  then wrap it\n" +
					"\n" +
					"## and return",
			},
			{
				Kind: models.KindClass,
				Name: "Settings",
				Attributes: []models.Attribute{
					{Name: "path", Type: "str", Description: "where settings live\nsecond line"},
					{Name: "retries", Type: "int"},
				},
			},
			{
				Kind:        models.KindClass,
				Name:        "Store",
				Description: "Keeps items. Backslash at the end \\",
				Attributes:  []models.Attribute{{Name: "items", Type: "List[str]"}},
				Methods: []models.ComponentSpec{
					{Kind: models.KindFunction, Name: "__init__", Signature: "(self)"},
					{Kind: models.KindFunction, Name: "add", Signature: "(self, item: str) -> None", BodyPlaceholder: "append\nthen log"},
					{Kind: models.KindFunction, Name: "dump", Signature: "(self) -> str", Description: `Returns "json"`},
				},
			},
		},
		MainExecutionBlock: "if __name__ == \"__main__\":\n    print(quote(\"hi\"))",
	}
}

func validDetails() models.ComponentResults {
	return models.ComponentResults{
		"quote":          str("def quote(text: str, mark: str = '\"') -> str:\n    \"\"\"Wrap text.\"\"\"\n    return mark + text.strip() + mark"),
		"Store.__init__": str("def __init__(self):\n    self.items: List[str] = []"),
		"Store.add":      str("    def add(self, item: str) -> None:\n        if item:\n            self.items.append(item)\n"),
		"Store.dump":     str("def dump(self) -> str:\n\n    return json.dumps(self.items)"),
	}
}

func requireParses(t *testing.T, source string) {
	t.Helper()
	problems, err := syntax.NewPythonChecker().Check(context.Background(), source)
	require.NoError(t, err)
	require.Empty(t, problems, source)
}

func TestAssembledOutputParses(t *testing.T) {
	partial := validDetails()
	delete(partial, "Store.add")
	partial["quote"] = nil

	tests := map[string]struct {
		results      models.ComponentResults
		placeholders int
	}{
		"all placeholders": {nil, 4},
		"partial results":  {partial, 2},
		"complete details": {validDetails(), 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			out := Assemble(awkwardOutline(), tt.results)
			requireParses(t, out)
			assert.Equal(t, tt.placeholders, strings.Count(out, PlaceholderBody))
		})
	}
}

func TestAssembledOutputParsesWithCommentedSignatures(t *testing.T) {
	o, err := outline.Parse(`{"components": [
		{"type": "function", "name": "add", "signature": "(a, b) -> int  # sum"},
		{"type": "class", "name": "Calc", "methods": [
			{"name": "mul", "signature": "def mul(self, a, b):  # product"}
		]}
	]}`)
	require.NoError(t, err)

	out := Assemble(o, nil)
	requireParses(t, out)
	assert.Contains(t, out, "def add(a, b) -> int:\n")
	assert.Contains(t, out, "    def mul(self, a, b):\n")
}
