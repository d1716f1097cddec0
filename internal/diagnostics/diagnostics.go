// Package diagnostics turns GCC/MinGW stderr into structured diagnostics.
package diagnostics

import (
	"regexp"
	"strconv"
	"strings"
)

// Severity of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Diagnostic is one "file:line:col: severity: message" line.
// Line and Column are 1-based.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

var gccLine = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(warning|error|fatal error|note):\s*(.+)$`)

// Parse extracts diagnostics from compiler stderr. Lines that do not match are dropped.
// The result is never nil.
func Parse(stderr string) []Diagnostic {
	diags := []Diagnostic{}

	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := gccLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		lineNo, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		col, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}

		diags = append(diags, Diagnostic{
			File:     m[1],
			Line:     lineNo,
			Column:   col,
			Severity: severityOf(m[4]),
			Message:  strings.TrimSpace(m[5]),
		})
	}

	return diags
}

func severityOf(kind string) Severity {
	switch kind {
	case "warning":
		return SeverityWarning
	case "note":
		return SeverityNote
	default:
		// "error" and "fatal error"
		return SeverityError
	}
}

// Count tallies diagnostics by severity
func Count(diags []Diagnostic) (errors, warnings, notes int) {
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		case SeverityNote:
			notes++
		}
	}

	return errors, warnings, notes
}
