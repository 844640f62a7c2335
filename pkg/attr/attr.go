// Package attr classifies the declarative options attached to exposed fields
// and methods.
//
// Recognized options are the flags `get` and `set` and the keyed option
// `name = "..."`, which renames the attribute on the foreign side. A Set
// registers the raw options of one declaration in source order and reports,
// for each, whether it is valid, a duplicate, or in conflict with the
// declaration it is attached to. Finish reports the options whose
// prerequisites are missing once all options have been seen.
package attr

import "github.com/haivivi/bindkit/pkg/span"

// Kind identifies a recognized option.
type Kind int

const (
	KindUnknown Kind = iota
	KindGet
	KindSet
	KindName
)

// String returns the option's source spelling.
func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindSet:
		return "set"
	case KindName:
		return "name"
	default:
		return "unknown"
	}
}

// ParseKind maps a source key to its Kind.
func ParseKind(key string) Kind {
	switch key {
	case "get":
		return KindGet
	case "set":
		return KindSet
	case "name":
		return KindName
	default:
		return KindUnknown
	}
}

// Option is one raw option token as written in a declaration.
type Option struct {
	Kind     Kind   `msgpack:"kind"`
	Key      string `msgpack:"key"`
	Value    string `msgpack:"value,omitempty"`
	HasValue bool   `msgpack:"has_value"`

	// Span covers the whole option; ValueSpan covers only its value.
	Span      span.Span `msgpack:"-"`
	ValueSpan span.Span `msgpack:"-"`
}

// Flag returns a value-less option such as `get`.
func Flag(k Kind) Option {
	return Option{Kind: k, Key: k.String()}
}

// Named returns a keyed option such as `name = "x"`.
func Named(value string) Option {
	return Option{Kind: KindName, Key: KindName.String(), Value: value, HasValue: true}
}

// ReportSpan is the span a diagnostic about this option points at: the value
// when there is one, the option token otherwise.
func (o Option) ReportSpan() span.Span {
	if o.HasValue && !o.ValueSpan.IsZero() {
		return o.ValueSpan
	}
	return o.Span
}

// Context describes what an option set is attached to.
type Context int

const (
	NamedField Context = iota
	TupleField
	Method
)

// String names the context for diagnostics.
func (c Context) String() string {
	switch c {
	case NamedField:
		return "named fields"
	case TupleField:
		return "tuple struct fields"
	case Method:
		return "methods"
	default:
		return "unknown declarations"
	}
}

// Outcome is the classification of a single option.
type Outcome int

const (
	Valid Outcome = iota
	// Duplicate is reported for the first repeat of a kind only.
	Duplicate
	// Repeated is a further repeat of a kind already reported as Duplicate.
	Repeated
	Conflicting
	MissingPrerequisite
)

// String returns the outcome's name.
func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Duplicate:
		return "duplicate"
	case Repeated:
		return "repeated"
	case Conflicting:
		return "conflicting"
	case MissingPrerequisite:
		return "missing-prerequisite"
	default:
		return "unknown"
	}
}

// Set accumulates the options of one declaration.
type Set struct {
	ctx      Context
	first    map[Kind]Option
	reported map[Kind]bool
	last     Option
	count    int
}

// NewSet returns an empty set for options attached in ctx.
func NewSet(ctx Context) *Set {
	return &Set{
		ctx:      ctx,
		first:    make(map[Kind]Option),
		reported: make(map[Kind]bool),
	}
}

// Register classifies opt against the options registered before it.
func (s *Set) Register(opt Option) Outcome {
	s.count++
	s.last = opt
	if opt.Kind == KindUnknown {
		opt.Kind = ParseKind(opt.Key)
	}
	if !s.applicable(opt) {
		return Conflicting
	}
	if _, seen := s.first[opt.Kind]; seen {
		if s.reported[opt.Kind] {
			return Repeated
		}
		s.reported[opt.Kind] = true
		return Duplicate
	}
	s.first[opt.Kind] = opt
	return Valid
}

func (s *Set) applicable(opt Option) bool {
	if s.ctx == Method {
		return false
	}
	switch opt.Kind {
	case KindGet, KindSet:
		return !opt.HasValue
	case KindName:
		return opt.HasValue
	}
	return false
}

// Has reports whether a valid option of kind k was registered.
func (s *Set) Has(k Kind) bool {
	_, ok := s.first[k]
	return ok
}

// Get returns the first valid option of kind k.
func (s *Set) Get(k Kind) (Option, bool) {
	o, ok := s.first[k]
	return o, ok
}

// Last returns the most recently registered option.
func (s *Set) Last() (Option, bool) {
	return s.last, s.count > 0
}

// Missing is an option whose prerequisite is absent.
type Missing struct {
	Kind Kind
	// Option is the option the diagnostic points at.
	Option Option
}

// Finish reports the missing prerequisites of the registered options:
// `name` needs `get` or `set`, and `get`/`set` on a tuple field need `name`.
// An option kind already reported as Duplicate is not reported again.
func (s *Set) Finish() []Missing {
	var out []Missing
	exposed := s.Has(KindGet) || s.Has(KindSet)
	if name, ok := s.first[KindName]; ok && !exposed && !s.reported[KindName] {
		out = append(out, Missing{Kind: KindName, Option: name})
	}
	if s.ctx == TupleField && exposed && !s.Has(KindName) {
		out = append(out, Missing{Kind: KindGet, Option: s.last})
	}
	return out
}
