// Package textfile renders indented, line-oriented text with a fixed line
// ending, for generated files that must be byte-identical across runs.
package textfile

import (
	"bytes"
	"fmt"
	"strings"
)

// Writer accumulates lines at the current indentation depth.
type Writer struct {
	buf     bytes.Buffer
	indent  string
	newline string
	depth   int
}

// New returns a Writer using indent per level and newline as line ending.
func New(indent, newline string) *Writer {
	return &Writer{indent: indent, newline: newline}
}

// Line writes s verbatim as one line at the current depth.
func (w *Writer) Line(s string) {
	w.buf.WriteString(strings.Repeat(w.indent, w.depth))
	w.buf.WriteString(s)
	w.buf.WriteString(w.newline)
}

// Linef formats one line at the current depth.
func (w *Writer) Linef(format string, args ...interface{}) {
	w.Line(fmt.Sprintf(format, args...))
}

// Blank writes an empty line.
func (w *Writer) Blank() {
	w.buf.WriteString(w.newline)
}

func (w *Writer) BeginIndent() { w.depth++ }

func (w *Writer) EndIndent() {
	if w.depth > 0 {
		w.depth--
	}
}

// ScopeIndent runs fn one level deeper.
func (w *Writer) ScopeIndent(fn func()) {
	w.BeginIndent()
	defer w.EndIndent()
	fn()
}

// Block writes open, runs fn one level deeper, then writes close.
func (w *Writer) Block(open, close string, fn func()) {
	w.Line(open)
	w.ScopeIndent(fn)
	w.Line(close)
}

// Bytes returns a copy of the rendered content.
func (w *Writer) Bytes() []byte {
	return append([]byte(nil), w.buf.Bytes()...)
}
