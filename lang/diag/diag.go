// Package diag implements a rustc-style diagnostic reporter: every
// diagnostic carries a stable error code, a severity, a primary span, and
// zero or more secondary labeled spans. Diagnostics accrue into a per-file
// Batch, mirroring the accumulate-then-report discipline the prior
// codebase's design-time evaluator uses for eval.ValidationErrors.
package diag

import (
	"fmt"
	"strings"

	"github.com/streetrace-ai/streetrace/lang/token"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	// Error diagnostics are fatal: they halt further compilation of the file.
	Error Severity = iota
	// Warning diagnostics are advisory and never halt compilation.
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Code is one of this language's stable error codes.
type Code string

// Stable error codes. Numbers are not reused once assigned.
const (
	ELexError Code = "E0001"
	EParseError Code = "E0002"
	EUnresolvedName Code = "E0003"
	EDuplicateDefinition Code = "E0004"
	ETypeMismatch Code = "E0005"
	EBadEscalation Code = "E0006"
	ENoEntryPoint Code = "E0007"
)

// Label annotates a secondary (or primary) span with explanatory text.
type Label struct {
	Span token.Span
	Text string
}

// Diagnostic is a single compiler message with everything needed to render
// a rustc-style report: a stable code, a severity, a headline, a primary
// span, any secondary labeled spans, and optional help notes.
type Diagnostic struct {
	Code Code
	Severity Severity
	Headline string
	Primary token.Span
	Secondary []Label
	Help []string
}

// Error implements the error interface so a Diagnostic can be returned or
// wrapped like any other Go error.
func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s[%s]: %s (%s:%d:%d)", d.Severity, d.Code, d.Headline,
		d.Primary.Start.File, d.Primary.Start.Line, d.Primary.Start.Column)
}

// Batch accumulates diagnostics for a single source file. The first file
// with one or more Error-severity diagnostics halts the pipeline for that
// file; Batch itself doesn't enforce that —
// callers check HasErrors after each compilation stage.
type Batch struct {
	File string
	Diags []Diagnostic
}

// NewBatch creates an empty Batch for the named file.
func NewBatch(file string) *Batch {
	return &Batch{File: file}
}

// Add appends a Diagnostic to the batch.
func (b *Batch) Add(d Diagnostic) {
	b.Diags = append(b.Diags, d)
}

// Errorf records a fatal diagnostic with the given code, headline, and
// primary span.
func (b *Batch) Errorf(code Code, span token.Span, format string, args ...any) {
	b.Add(Diagnostic{
		Code: code,
		Severity: Error,
		Headline: fmt.Sprintf(format, args...),
		Primary: span,
	})
}

// Warnf records a warning diagnostic.
func (b *Batch) Warnf(code Code, span token.Span, format string, args ...any) {
	b.Add(Diagnostic{
		Code: code,
		Severity: Warning,
		Headline: fmt.Sprintf(format, args...),
		Primary: span,
	})
}

// HasErrors reports whether the batch contains any Error-severity diagnostic.
func (b *Batch) HasErrors() bool {
	for _, d := range b.Diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Render formats every diagnostic in the batch against source, the original
// file text, producing rustc-style output: a headline, a source excerpt with
// a "^^^" underline under the primary span, and any help notes.
func Render(source string, diags []Diagnostic) string {
	lines := strings.Split(source, "\n")
	var out strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&out, "%s[%s]: %s\n", d.Severity, d.Code, d.Headline)
		fmt.Fprintf(&out, " --> %s:%d:%d\n", d.Primary.Start.File, d.Primary.Start.Line, d.Primary.Start.Column)
		renderSpan(&out, lines, d.Primary, "")
		for _, lbl := range d.Secondary {
			renderSpan(&out, lines, lbl.Span, lbl.Text)
		}
		for _, h := range d.Help {
			fmt.Fprintf(&out, " help: %s\n", h)
		}
		out.WriteByte('\n')
	}
	return out.String()
}

func renderSpan(out *strings.Builder, lines []string, span token.Span, label string) {
	ln := span.Start.Line
	if ln < 1 || ln > len(lines) {
		return
	}
	text := lines[ln-1]
	fmt.Fprintf(out, "%4d | %s\n", ln, text)

	col := span.Start.Column
	if col < 1 {
		col = 1
	}
	width := span.End.Column - span.Start.Column
	if span.End.Line != span.Start.Line || width < 1 {
		width = 1
	}
	underline := strings.Repeat(" ", col-1) + strings.Repeat("^", width)
	fmt.Fprintf(out, " | %s", underline)
	if label != "" {
		fmt.Fprintf(out, " %s", label)
	}
	out.WriteByte('\n')
}
