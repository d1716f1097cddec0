package diagnostics

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgHiRed, color.Bold)
	warningColor = color.New(color.FgHiYellow, color.Bold)
	noteColor    = color.New(color.FgHiCyan)
	locColor     = color.New(color.Bold)
)

func severityColor(s Severity) *color.Color {
	switch s {
	case SeverityWarning:
		return warningColor
	case SeverityNote:
		return noteColor
	default:
		return errorColor
	}
}

// Render writes one line per diagnostic in compiler format, coloured by severity
// when the output supports it
func Render(w io.Writer, diags []Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s %s %s\n",
			locColor.Sprintf("%s:%d:%d:", d.File, d.Line, d.Column),
			severityColor(d.Severity).Sprintf("%s:", d.Severity),
			d.Message,
		)
	}
}

// Summary renders "N error(s), M warning(s)"
func Summary(diags []Diagnostic) string {
	errs, warns, _ := Count(diags)

	return fmt.Sprintf("%s, %s",
		errorColor.Sprint(plural(errs, "error")),
		warningColor.Sprint(plural(warns, "warning")),
	)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}

	return fmt.Sprintf("%d %ss", n, word)
}
