package diag

import (
	"sort"
	"strings"
)

// FormatShort renders one line per diagnostic, "SEVERITY ID subject: message",
// followed by indented notes when includeNotes is set. Output is sorted so it
// can be compared in tests.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	sorted := append([]Diagnostic(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Subject != sorted[j].Subject {
			return sorted[i].Subject.less(sorted[j].Subject)
		}
		return sorted[i].Code < sorted[j].Code
	})
	var sb strings.Builder
	for _, d := range sorted {
		sb.WriteString(d.Severity.String())
		sb.WriteByte(' ')
		sb.WriteString(d.Code.ID())
		if s := d.Subject.String(); s != "" {
			sb.WriteByte(' ')
			sb.WriteString(s)
		}
		sb.WriteString(": ")
		sb.WriteString(firstLine(d.Message))
		sb.WriteByte('\n')
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			sb.WriteString("  note")
			if s := n.Subject.String(); s != "" {
				sb.WriteByte(' ')
				sb.WriteString(s)
			}
			sb.WriteString(": ")
			sb.WriteString(firstLine(n.Msg))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
