package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"cilgraph/internal/diag"
	"cilgraph/internal/meta"
	"cilgraph/internal/sig"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

// maxCell bounds the width of a table cell.
const maxCell = 72

// styler renders text for the terminal. With color off it returns text as is.
type styler struct{ on bool }

func (s styler) render(st lipgloss.Style, text string) string {
	if !s.on || text == "" {
		return text
	}
	return st.Render(text)
}

func (s styler) heading(w io.Writer, text string) {
	fmt.Fprintln(w, s.render(headingStyle, text))
}

// table aligns cells by display width, so wide runes in names keep columns
// straight. Styles apply per column after padding.
type table struct {
	rows   [][]string
	styles map[int]lipgloss.Style
	indent string
}

func (t *table) add(cells ...string) { t.rows = append(t.rows, cells) }

func (t *table) style(col int, st lipgloss.Style) {
	if t.styles == nil {
		t.styles = make(map[int]lipgloss.Style)
	}
	t.styles[col] = st
}

func (t *table) write(w io.Writer, s styler) {
	var widths []int
	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], min(runewidth.StringWidth(cell), maxCell))
		}
	}
	for _, row := range t.rows {
		var sb strings.Builder
		sb.WriteString(t.indent)
		for i, cell := range row {
			cell = truncate(cell, maxCell)
			if i < len(row)-1 {
				cell = runewidth.FillRight(cell, widths[i])
			}
			if st, ok := t.styles[i]; ok {
				cell = s.render(st, cell)
			}
			sb.WriteString(cell)
			if i < len(row)-1 {
				sb.WriteString("  ")
			}
		}
		fmt.Fprintln(w, strings.TrimRight(sb.String(), " "))
	}
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	// The tail counts toward width.
	return runewidth.Truncate(value, width, "...")
}

// printDiagnostics writes one line per diagnostic with the severity colored.
func printDiagnostics(w io.Writer, items []diag.Diagnostic, notes bool) {
	for _, d := range items {
		var c *color.Color
		switch d.Severity {
		case diag.SevError:
			c = errorColor
		case diag.SevWarning:
			c = warningColor
		default:
			c = infoColor
		}
		subject := d.Subject
		if subject != "" {
			subject += ": "
		}
		fmt.Fprintf(w, "%s %s %s%s\n", c.Sprint(d.Severity.String()), d.Code.ID(), subject, d.Message)
		if !notes {
			continue
		}
		for _, n := range d.Notes {
			if n.Subject != "" {
				fmt.Fprintf(w, "  note %s: %s\n", n.Subject, n.Msg)
			} else {
				fmt.Fprintf(w, "  note: %s\n", n.Msg)
			}
		}
	}
}

// typeRow describes a definition as kind, visibility, name and base.
func typeRow(t *meta.Type, from *meta.Module) []string {
	base := ""
	if b := t.BaseType(); b != nil {
		base = ": " + sig.Format(b, from)
	}
	return []string{t.Kind().String(), t.Visibility().String(), sig.Format(t, from), base}
}

// memberRow describes a member as kind, visibility and signature.
func memberRow(m meta.Member, from *meta.Module) []string {
	text := m.MemberName().Text()
	switch m := m.(type) {
	case *meta.Field:
		text += " : " + sig.Format(m.Type, from)
	case *meta.Method:
		text = methodText(m, from)
	case *meta.Property:
		text += " : " + sig.Format(m.Type, from)
	case *meta.Event:
		text += " : " + sig.Format(m.HandlerType, from)
	case *meta.Type:
		text = sig.Format(m, from)
	}
	return []string{m.MemberKind().String(), m.MemberVisibility().String(), text}
}

func methodText(m *meta.Method, from *meta.Module) string {
	var sb strings.Builder
	sb.WriteString(formatOrVoid(m.ReturnType, from))
	sb.WriteByte(' ')
	sb.WriteString(m.Name.Text())
	if len(m.TemplateArguments) > 0 {
		sb.WriteByte('<')
		for i, a := range m.TemplateArguments {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(sig.Format(a, from))
		}
		sb.WriteByte('>')
	} else if len(m.TemplateParameters) > 0 {
		sb.WriteByte('<')
		for i, p := range m.TemplateParameters {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(p.Name().Text())
		}
		sb.WriteByte('>')
	}
	sb.WriteByte('(')
	for i, p := range m.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(sig.Format(p.Type, from))
		if p.Name.Text() != "" {
			sb.WriteByte(' ')
			sb.WriteString(p.Name.Text())
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

func formatOrVoid(t *meta.Type, from *meta.Module) string {
	if t == nil {
		return "void"
	}
	return sig.Format(t, from)
}
