// Package treediff compares spatial structures line by line, for reporting
// what changed when a model is reloaded.
package treediff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/bimview/internal/inspector"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

// Op is the kind of a diff line.
type Op int

const (
	Equal Op = iota
	Added
	Removed
)

// Line is one line of a tree diff.
type Line struct {
	Op   Op
	Text string
}

// Result is a line diff of two outlines.
type Result struct {
	Lines   []Line
	Added   int
	Removed int
}

// Changed reports whether any line was added or removed.
func (r Result) Changed() bool { return r.Added > 0 || r.Removed > 0 }

// Outline renders every model's tree under a "model <id>" heading, in order.
func Outline(trees []inspector.ModelTree) string {
	var sb strings.Builder
	for _, t := range trees {
		sb.WriteString("model ")
		sb.WriteString(t.ModelID)
		sb.WriteString("\n")
		for _, line := range strings.SplitAfter(spatialtree.Outline(t.Tree), "\n") {
			if line == "" {
				continue
			}
			sb.WriteString("  ")
			sb.WriteString(line)
		}
	}
	return sb.String()
}

// Trees diffs the outlines of two tree sets.
func Trees(before, after []inspector.ModelTree) Result {
	return Text(Outline(before), Outline(after))
}

// Text diffs two texts line by line.
func Text(before, after string) Result {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var r Result
	for _, d := range diffs {
		op := Equal
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = Added
		case diffmatchpatch.DiffDelete:
			op = Removed
		}
		for _, text := range strings.SplitAfter(d.Text, "\n") {
			if text == "" {
				continue
			}
			r.Lines = append(r.Lines, Line{Op: op, Text: strings.TrimSuffix(text, "\n")})
			switch op {
			case Added:
				r.Added++
			case Removed:
				r.Removed++
			}
		}
	}
	return r
}

// Unified renders changed lines prefixed with + or -, and unchanged lines
// with two spaces when context is true.
func (r Result) Unified(context bool) string {
	var sb strings.Builder
	for _, l := range r.Lines {
		switch l.Op {
		case Added:
			sb.WriteString("+ ")
		case Removed:
			sb.WriteString("- ")
		default:
			if !context {
				continue
			}
			sb.WriteString("  ")
		}
		sb.WriteString(l.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
