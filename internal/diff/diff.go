// Package diff renders line diffs between an original and a modified source
// using sergi/go-diff.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ContextLines is the number of unchanged lines kept around each change
const ContextLines = 3

// LineType is the kind of a diff line
type LineType int

const (
	LineContext LineType = iota // unchanged
	LineAdded
	LineRemoved
)

// Line is a single line of a hunk
type Line struct {
	Type    LineType
	Content string
	// NoNewline marks the last line of a file that lacks a trailing newline
	NoNewline bool
}

// Hunk is a group of changes with surrounding context
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff holds the changes between two versions of one file
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Empty reports whether the two versions are identical
func (d *FileDiff) Empty() bool {
	return len(d.Hunks) == 0
}

// Stats counts added and removed lines
func (d *FileDiff) Stats() (added, removed int) {
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// Engine computes line diffs
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates an engine tuned for source code
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

var defaultEngine = NewEngine()

// Compute diffs oldContent against newContent line by line
func (e *Engine) Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	fd := &FileDiff{OldPath: oldPath, NewPath: newPath}
	if oldContent == newContent {
		return fd
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	fd.Hunks = group(toOperations(diffs), ContextLines)
	return fd
}

// Compute diffs two versions with the shared engine
func Compute(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return defaultEngine.Compute(oldPath, newPath, oldContent, newContent)
}

// Unified renders the diff between two versions in unified format. It
// returns an empty string when the versions are identical.
func Unified(oldPath, newPath, oldContent, newContent string) string {
	return Compute(oldPath, newPath, oldContent, newContent).String()
}

// String renders the diff in unified format
func (d *FileDiff) String() string {
	if d.Empty() {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", d.OldPath, d.NewPath)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", hunkRange(h.OldStart, h.OldCount), hunkRange(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
			if l.NoNewline {
				sb.WriteString("\\ No newline at end of file\n")
			}
		}
	}
	return sb.String()
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// operation is one line of the diff with the number of old and new lines
// that precede it
type operation struct {
	line    Line
	oldLine int
	newLine int
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, raw := range strings.SplitAfter(d.Text, "\n") {
			if raw == "" {
				continue
			}
			l := Line{
				Content:   strings.TrimSuffix(raw, "\n"),
				NoNewline: !strings.HasSuffix(raw, "\n"),
			}
			op := operation{oldLine: oldLine, newLine: newLine}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				l.Type = LineAdded
				newLine++
			case diffmatchpatch.DiffDelete:
				l.Type = LineRemoved
				oldLine++
			default:
				l.Type = LineContext
				oldLine++
				newLine++
			}
			op.line = l
			ops = append(ops, op)
		}
	}
	return ops
}

// group splits operations into hunks. Changes separated by no more than
// twice the context share a hunk.
func group(ops []operation, context int) []Hunk {
	var changes []int
	for i, op := range ops {
		if op.line.Type != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	first, last := changes[0], changes[0]
	flush := func() {
		start := max(0, first-context)
		end := min(len(ops), last+context+1)
		hunks = append(hunks, makeHunk(ops[start:end]))
	}
	for _, c := range changes[1:] {
		if c-last > 2*context {
			flush()
			first = c
		}
		last = c
	}
	flush()
	return hunks
}

func makeHunk(ops []operation) Hunk {
	h := Hunk{Lines: make([]Line, 0, len(ops))}
	for _, op := range ops {
		h.Lines = append(h.Lines, op.line)
		if op.line.Type != LineAdded {
			h.OldCount++
		}
		if op.line.Type != LineRemoved {
			h.NewCount++
		}
	}
	h.OldStart = ops[0].oldLine
	if h.OldCount > 0 {
		h.OldStart++
	}
	h.NewStart = ops[0].newLine
	if h.NewCount > 0 {
		h.NewStart++
	}
	return h
}
