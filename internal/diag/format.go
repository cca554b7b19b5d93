package diag

import "strings"

// FormatShort renders one line per diagnostic, "severity ID subject: message",
// with notes indented underneath. Output is empty when there is nothing to
// show.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	var sb strings.Builder
	for _, d := range diags {
		sb.WriteString(d.Severity.String())
		sb.WriteByte(' ')
		sb.WriteString(d.Code.ID())
		if d.Subject != "" {
			sb.WriteByte(' ')
			sb.WriteString(d.Subject)
		}
		sb.WriteString(": ")
		sb.WriteString(d.Message)
		sb.WriteByte('\n')
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			sb.WriteString("  note")
			if n.Subject != "" {
				sb.WriteByte(' ')
				sb.WriteString(n.Subject)
			}
			sb.WriteString(": ")
			sb.WriteString(n.Msg)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
