// Package selfmod reads and replaces single function definitions inside the
// Python code base the service maintains.
package selfmod

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/storage"
)

var (
	// ErrNotFound is returned when the module or function does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for malformed module paths or function names
	ErrInvalidName = errors.New("invalid name")

	reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reDefinition = regexp.MustCompile(`^(@|def\s|async\s+def\s)`)
)

// Editor locates functions by dotted module path below a source root. Method
// names are written Class.method.
type Editor struct {
	root   string
	logger *zap.Logger

	// serializes read-modify-write cycles on the same tree
	mu sync.Mutex
}

// NewEditor creates an editor for the package tree at root
func NewEditor(root string, logger *zap.Logger) (*Editor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	return &Editor{root: abs, logger: logger}, nil
}

// ModuleFile maps a dotted module path to its source file: pkg/mod.py, or
// pkg/mod/__init__.py for packages.
func (e *Editor) ModuleFile(modulePath string) (string, error) {
	parts := strings.Split(strings.TrimSpace(modulePath), ".")
	for _, p := range parts {
		if !reIdentifier.MatchString(p) {
			return "", fmt.Errorf("%w: module path %q", ErrInvalidName, modulePath)
		}
	}
	base := filepath.Join(append([]string{e.root}, parts...)...)
	for _, candidate := range []string{base + ".py", filepath.Join(base, "__init__.py")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("module %s: %w", modulePath, ErrNotFound)
}

// ReadFunctionSource returns the dedented source of a function, decorators
// included.
func (e *Editor) ReadFunctionSource(ctx context.Context, modulePath, functionName string) (string, error) {
	path, content, span, err := e.locate(ctx, modulePath, functionName)
	if err != nil {
		return "", err
	}
	e.logger.Debug("read function source",
		zap.String("file", path),
		zap.String("function", functionName),
	)
	return dedent(string(content[span.start:span.end])), nil
}

// EditFunctionSource replaces a function with newCode, re-indented to the
// original definition's column. The file is rewritten atomically.
func (e *Editor) EditFunctionSource(ctx context.Context, modulePath, functionName, newCode string) error {
	replacement := dedent(strings.Trim(newCode, "\n"))
	if !reDefinition.MatchString(replacement) {
		return fmt.Errorf("replacement for %s is not a function definition", functionName)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	path, content, span, err := e.locate(ctx, modulePath, functionName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	b.Write(content[:span.start])
	b.WriteString(indent(replacement, span.indent))
	b.Write(content[span.end:])

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := storage.WriteFileAtomic(path, []byte(b.String()), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	e.logger.Info("replaced function source",
		zap.String("file", path),
		zap.String("function", functionName),
		zap.Int("bytes", len(replacement)),
	)
	return nil
}

// span is the byte range of a definition, starting at the beginning of its
// first line.
type span struct {
	start, end int
	indent     string
}

func (e *Editor) locate(ctx context.Context, modulePath, functionName string) (string, []byte, span, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, span{}, err
	}
	names := strings.Split(strings.TrimSpace(functionName), ".")
	for _, n := range names {
		if !reIdentifier.MatchString(n) {
			return "", nil, span{}, fmt.Errorf("%w: function name %q", ErrInvalidName, functionName)
		}
	}

	path, err := e.ModuleFile(modulePath)
	if err != nil {
		return "", nil, span{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, span{}, fmt.Errorf("read %s: %w", path, err)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return "", nil, span{}, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	node := find(tree.RootNode(), names, content)
	if node == nil {
		return "", nil, span{}, fmt.Errorf("function %s in %s: %w", functionName, modulePath, ErrNotFound)
	}

	start := int(node.StartByte())
	lineStart := start
	for lineStart > 0 && content[lineStart-1] != '\n' {
		lineStart--
	}
	prefix := string(content[lineStart:start])
	if strings.TrimSpace(prefix) != "" {
		// definition shares its line with other code; replace from the node
		lineStart, prefix = start, ""
	}
	return path, content, span{start: lineStart, end: int(node.EndByte()), indent: prefix}, nil
}

// find walks names through nested class bodies. The returned node covers the
// decorators of a decorated definition.
func find(scope *sitter.Node, names []string, content []byte) *sitter.Node {
	want := "function_definition"
	if len(names) > 1 {
		want = "class_definition"
	}
	for i := 0; i < int(scope.NamedChildCount()); i++ {
		outer := scope.NamedChild(i)
		def := outer
		if outer.Type() == "decorated_definition" {
			def = outer.ChildByFieldName("definition")
			if def == nil {
				continue
			}
		}
		if def.Type() != want {
			continue
		}
		name := def.ChildByFieldName("name")
		if name == nil || name.Content(content) != names[0] {
			continue
		}
		if len(names) == 1 {
			return outer
		}
		if body := def.ChildByFieldName("body"); body != nil {
			if found := find(body, names[1:], content); found != nil {
				return found
			}
		}
	}
	return nil
}

func dedent(code string) string {
	lines := strings.Split(code, "\n")
	common := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if common < 0 || n < common {
			common = n
		}
	}
	if common <= 0 {
		return code
	}
	for i, l := range lines {
		if len(l) >= common {
			lines[i] = l[common:]
		} else {
			lines[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

func indent(code, prefix string) string {
	if prefix == "" {
		return code
	}
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
