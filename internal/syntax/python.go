// Package syntax checks generated Python source with tree-sitter
package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// maxProblems caps the number of reported problems per check
const maxProblems = 10

// PythonChecker reports syntax errors in Python source. Each call uses its own
// parser, so a checker may be shared between goroutines.
type PythonChecker struct{}

// NewPythonChecker creates a checker
func NewPythonChecker() *PythonChecker {
	return &PythonChecker{}
}

// Check parses source and describes every error or missing node, in source
// order. An empty result means the source parsed cleanly.
func (c *PythonChecker) Check(ctx context.Context, source string) ([]string, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	content := []byte(source)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}

	var problems []string
	collect(root, content, &problems)
	if len(problems) == 0 {
		problems = append(problems, "source contains a syntax error")
	}
	return problems, nil
}

// Valid reports whether source parses without errors
func (c *PythonChecker) Valid(ctx context.Context, source string) bool {
	problems, err := c.Check(ctx, source)
	return err == nil && len(problems) == 0
}

func collect(n *sitter.Node, content []byte, problems *[]string) {
	if len(*problems) >= maxProblems {
		return
	}
	pos := n.StartPoint()
	switch {
	case n.IsMissing():
		*problems = append(*problems, fmt.Sprintf("line %d, column %d: missing %s", pos.Row+1, pos.Column+1, n.Type()))
		return
	case n.Type() == "ERROR":
		*problems = append(*problems, fmt.Sprintf("line %d, column %d: unexpected %s", pos.Row+1, pos.Column+1, snippet(n.Content(content))))
		return
	}
	if !n.HasError() {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		collect(n.Child(i), content, problems)
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return fmt.Sprintf("%q", s)
}
