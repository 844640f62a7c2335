package validate

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles colours rendered diagnostics. The zero value renders plain text.
type Styles struct {
	Enabled  bool
	Header   lipgloss.Style
	Location lipgloss.Style
	Gutter   lipgloss.Style
	Caret    lipgloss.Style
}

// ColorStyles returns the styles used on a terminal.
func ColorStyles() Styles {
	red := lipgloss.Color("#ff5f5f")
	dim := lipgloss.Color("#6e7681")
	return Styles{
		Enabled:  true,
		Header:   lipgloss.NewStyle().Bold(true).Foreground(red),
		Location: lipgloss.NewStyle().Foreground(dim),
		Gutter:   lipgloss.NewStyle().Foreground(dim),
		Caret:    lipgloss.NewStyle().Bold(true).Foreground(red),
	}
}

func (s Styles) paint(st lipgloss.Style, text string) string {
	if !s.Enabled || text == "" {
		return text
	}
	return st.Render(text)
}

// Render writes one caret-annotated snippet per error. sources maps span
// file names to their contents; errors in unknown files are printed without
// a snippet.
//
//	error: `name` may only be specified once
//	  --> point.yaml:6:42
//	   5 |         type: int
//	   6 |         options: [{name: foo}, {name: "bar"}]
//	     |                                       ^^^^^
func Render(w io.Writer, errs Errors, sources map[string][]byte, st Styles) error {
	for i, e := range errs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, renderOne(e, sources[e.Span.File], st)); err != nil {
			return err
		}
	}
	return nil
}

func renderOne(e Error, src []byte, st Styles) string {
	var b strings.Builder
	b.WriteString(st.paint(st.Header, "error: "+e.Message))
	b.WriteString("\n")
	b.WriteString(st.paint(st.Location, "  --> "+e.Span.String()))
	b.WriteString("\n")
	if src == nil || e.Span.IsZero() {
		return b.String()
	}

	lines := strings.Split(string(src), "\n")
	line := min(max(e.Span.Start.Line, 1), len(lines))
	text := lines[line-1]
	// Columns count runes.
	prefix := prefixOf(text, e.Span.Start.Column-1)
	width := e.Span.Len()
	if rest := len(text) - len(prefix); width > rest {
		width = max(rest, 1)
	}

	gutter := func(n int) string {
		if n == 0 {
			return st.paint(st.Gutter, "     |")
		}
		return st.paint(st.Gutter, fmt.Sprintf("%4d |", n))
	}
	if line > 1 {
		fmt.Fprintf(&b, "%s %s\n", gutter(line-1), lines[line-2])
	}
	fmt.Fprintf(&b, "%s %s\n", gutter(line), text)
	fmt.Fprintf(&b, "%s %s%s\n", gutter(0), padLike(prefix), st.paint(st.Caret, strings.Repeat("^", width)))
	return b.String()
}

// prefixOf returns the first n runes of s.
func prefixOf(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// padLike replaces every rune of s with a space, keeping tabs.
func padLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
