package gen

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/dave/jennifer/jen"
)

var builtinTypes = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true, "any": true, "error": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true,
}

// typeCode renders a declared type expression. Unqualified names that are
// not builtins, and names qualified with the host package's name, resolve to
// the host package.
func (e *emitter) typeCode(s string) (jen.Code, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("%w: empty type", ErrBadType)
	case strings.HasPrefix(s, "*"):
		elem, err := e.typeCode(s[1:])
		if err != nil {
			return nil, err
		}
		return jen.Op("*").Add(elem), nil
	case strings.HasPrefix(s, "[]"):
		elem, err := e.typeCode(s[2:])
		if err != nil {
			return nil, err
		}
		return jen.Index().Add(elem), nil
	case strings.HasPrefix(s, "["):
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: %q", ErrBadType, s)
		}
		n, err := strconv.Atoi(s[1:end])
		if err != nil {
			return nil, fmt.Errorf("%w: array length in %q", ErrBadType, s)
		}
		elem, err := e.typeCode(s[end+1:])
		if err != nil {
			return nil, err
		}
		return jen.Index(jen.Lit(n)).Add(elem), nil
	case strings.HasPrefix(s, "map["):
		end := closingBracket(s, len("map"))
		if end < 0 {
			return nil, fmt.Errorf("%w: %q", ErrBadType, s)
		}
		key, err := e.typeCode(s[len("map["):end])
		if err != nil {
			return nil, err
		}
		val, err := e.typeCode(s[end+1:])
		if err != nil {
			return nil, err
		}
		return jen.Map(key).Add(val), nil
	case builtinTypes[s]:
		return jen.Id(s), nil
	}

	pkg, name, qualified := strings.Cut(s, ".")
	if !qualified {
		pkg, name = "", s
	}
	if !isIdent(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadType, s)
	}
	switch pkg {
	case "", path.Base(e.opts.HostImport):
		return jen.Qual(e.opts.HostImport, name), nil
	case "foreign":
		return jen.Qual(foreignPath, name), nil
	}
	return nil, fmt.Errorf("%w: unknown package %q in %q", ErrBadType, pkg, s)
}

// closingBracket returns the index of the ']' matching the '[' at open.
func closingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return false
		}
	}
	return true
}
