// Package span locates declarations in their source files.
package span

import "fmt"

// Pos is a position in a source file. Line and Column are 1-based; Offset is
// a 0-based byte offset. The zero Pos is unknown.
type Pos struct {
	Line   int `json:"line" msgpack:"line"`
	Column int `json:"column" msgpack:"column"`
	Offset int `json:"offset" msgpack:"offset"`
}

// IsValid reports whether the position is known.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

// Span is the half-open byte range [Start, End) in File.
type Span struct {
	File  string `json:"file,omitempty" msgpack:"file,omitempty"`
	Start Pos    `json:"start" msgpack:"start"`
	End   Pos    `json:"end" msgpack:"end"`
}

// IsZero reports whether the span carries no location.
func (s Span) IsZero() bool {
	return !s.Start.IsValid()
}

// Len returns the span length in bytes, at least 1 for a known span.
func (s Span) Len() int {
	if n := s.End.Offset - s.Start.Offset; n > 0 {
		return n
	}
	if s.IsZero() {
		return 0
	}
	return 1
}

// Before orders spans by file, then by start offset.
func (s Span) Before(o Span) bool {
	if s.File != o.File {
		return s.File < o.File
	}
	if s.Start.Offset != o.Start.Offset {
		return s.Start.Offset < o.Start.Offset
	}
	return s.End.Offset < o.End.Offset
}

func (s Span) String() string {
	if s.IsZero() {
		if s.File == "" {
			return "<unknown>"
		}
		return s.File
	}
	if s.File == "" {
		return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Start.Line, s.Start.Column)
}
