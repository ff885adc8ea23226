package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom/ucws/internal/models"
)

const todoOutline = "```json\n" + `{
  "module_name": "todo",
  "module_docstring": "A tiny to-do manager.",
  "imports": ["json", " os "],
  "components": [
    {"type": "function", "name": "load_todos", "signature": "def load_todos(filepath: str) -> list:", "description": "Load items", "body_placeholder": "# read the JSON file"},
    {"type": "class", "name": "TodoManager", "description": "Manages items",
     "attributes": [{"name": "filepath", "type": "str", "description": "where items live"}, "items: list"],
     "methods": [
       {"type": "method", "name": "__init__", "signature": "(self, filepath: str)"},
       {"name": "add_item", "signature": "add_item(self, text: str) -> None"}
     ]}
  ],
  "main_execution_block": "if __name__ == \"__main__\":\n    print(load_todos(\"todo.json\"))\n"
}` + "\n```"

func TestParse(t *testing.T) {
	o, err := Parse(todoOutline)
	require.NoError(t, err)

	assert.Equal(t, "todo", o.ModuleName)
	assert.Equal(t, "A tiny to-do manager.", o.ModuleDocstring)
	assert.Equal(t, []string{"json", "os"}, o.Imports)
	assert.Equal(t, "if __name__ == \"__main__\":\n    print(load_todos(\"todo.json\"))", o.MainExecutionBlock)
	require.Len(t, o.Components, 2)

	fn := o.Components[0]
	assert.Equal(t, models.KindFunction, fn.Kind)
	assert.Equal(t, "(filepath: str) -> list", fn.Signature)
	assert.Equal(t, "# read the JSON file", fn.BodyPlaceholder)

	cls := o.Components[1]
	assert.Equal(t, models.KindClass, cls.Kind)
	assert.Equal(t, []models.Attribute{
		{Name: "filepath", Type: "str", Description: "where items live"},
		{Name: "items", Type: "list"},
	}, cls.Attributes)
	require.Len(t, cls.Methods, 2)
	assert.Equal(t, models.KindFunction, cls.Methods[0].Kind)
	assert.Equal(t, "(self, filepath: str)", cls.Methods[0].Signature)
	assert.Equal(t, "(self, text: str) -> None", cls.Methods[1].Signature)

	keys := make([]string, 0)
	for _, l := range o.Leaves() {
		keys = append(keys, l.Key)
	}
	assert.Equal(t, []string{"load_todos", "TodoManager.__init__", "TodoManager.add_item"}, keys)
}

func TestParseDescriptionFallsBackToDocstring(t *testing.T) {
	o, err := Parse(`{"description": "desc", "components": [{"type": "function", "name": "f"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "desc", o.ModuleDocstring)
	assert.Equal(t, "()", o.Components[0].Signature)
}

func TestNormalizeSignature(t *testing.T) {
	tests := []struct {
		sig, want string
	}{
		{"def add(a, b) -> int:", "(a, b) -> int"},
		{"(a, b) -> int  # sum", "(a, b) -> int"},
		{"def add(a, b) -> int:  # returns the sum", "(a, b) -> int"},
		{"add(sep: str = '#', pad=\"#\") -> str # joined", "(sep: str = '#', pad=\"#\") -> str"},
		{"(tags: dict = {'#': 1})", "(tags: dict = {'#': 1})"},
		{"# no signature", "()"},
	}
	for _, tt := range tests {
		t.Run(tt.sig, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSignature("add", tt.sig, false))
		})
	}
	assert.Equal(t, "(self)", normalizeSignature("run", "# todo", true))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty object", `{}`},
		{"empty components", `{"components": []}`},
		{"component missing name", `{"components": [{"type": "function"}]}`},
		{"blank name", `{"components": [{"type": "function", "name": "  "}]}`},
		{"unknown type", `{"components": [{"type": "module", "name": "m"}]}`},
		{"missing type", `{"components": [{"name": "f"}]}`},
		{"method missing name", `{"components": [{"type": "class", "name": "C", "methods": [{"type": "method"}]}]}`},
		{"nested class as method", `{"components": [{"type": "class", "name": "C", "methods": [{"type": "class", "name": "D"}]}]}`},
		{"duplicate function", `{"components": [{"type": "function", "name": "f"}, {"type": "function", "name": "f"}]}`},
		{"duplicate method", `{"components": [{"type": "class", "name": "C", "methods": [{"name": "m"}, {"name": "m"}]}]}`},
		{"bad attribute", `{"components": [{"type": "class", "name": "C", "attributes": [42]}]}`},
		{"truncated", `{"components": [{"type": "function", "name": "f"`},
		{"not json", "I could not produce an outline."},
		{"components not a list", `{"components": {"type": "function"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Parse(tt.in)
			assert.Nil(t, o)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}
