package span

import "testing"

func at(file string, line, col, off, end int) Span {
	return Span{File: file, Start: Pos{Line: line, Column: col, Offset: off}, End: Pos{Line: line, Column: col + end - off, Offset: end}}
}

func TestString(t *testing.T) {
	tests := []struct {
		span Span
		want string
	}{
		{Span{}, "<unknown>"},
		{Span{File: "a.yaml"}, "a.yaml"},
		{at("", 3, 7, 40, 45), "3:7"},
		{at("a.yaml", 3, 7, 40, 45), "a.yaml:3:7"},
	}
	for _, tt := range tests {
		if got := tt.span.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestLen(t *testing.T) {
	if n := (Span{}).Len(); n != 0 {
		t.Errorf("zero span Len() = %d", n)
	}
	if n := at("a", 1, 1, 10, 10).Len(); n != 1 {
		t.Errorf("empty known span Len() = %d, want 1", n)
	}
	if n := at("a", 1, 1, 10, 14).Len(); n != 4 {
		t.Errorf("Len() = %d, want 4", n)
	}
}

func TestBefore(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"file first", at("a", 9, 1, 90, 91), at("b", 1, 1, 0, 1), true},
		{"offset", at("a", 1, 1, 0, 1), at("a", 2, 1, 10, 11), true},
		{"end breaks ties", at("a", 1, 1, 0, 1), at("a", 1, 1, 0, 3), true},
		{"equal", at("a", 1, 1, 0, 1), at("a", 1, 1, 0, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("Before() = %v, want %v", got, tt.want)
			}
		})
	}
}
