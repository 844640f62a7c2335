package attr

import "testing"

func TestRegister(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		opts []Option
		want []Outcome
	}{
		{
			name: "get and set",
			ctx:  NamedField,
			opts: []Option{Flag(KindGet), Flag(KindSet)},
			want: []Outcome{Valid, Valid},
		},
		{
			name: "duplicate get",
			ctx:  NamedField,
			opts: []Option{Flag(KindGet), Flag(KindGet)},
			want: []Outcome{Valid, Duplicate},
		},
		{
			name: "triple get reports once",
			ctx:  NamedField,
			opts: []Option{Flag(KindGet), Flag(KindGet), Flag(KindGet)},
			want: []Outcome{Valid, Duplicate, Repeated},
		},
		{
			name: "duplicate name",
			ctx:  TupleField,
			opts: []Option{Named("foo"), Named("bar")},
			want: []Outcome{Valid, Duplicate},
		},
		{
			name: "option on method",
			ctx:  Method,
			opts: []Option{Flag(KindGet)},
			want: []Outcome{Conflicting},
		},
		{
			name: "unknown key",
			ctx:  NamedField,
			opts: []Option{{Key: "frozen"}},
			want: []Outcome{Conflicting},
		},
		{
			name: "get with a value",
			ctx:  NamedField,
			opts: []Option{{Kind: KindGet, Key: "get", Value: "x", HasValue: true}},
			want: []Outcome{Conflicting},
		},
		{
			name: "name without a value",
			ctx:  NamedField,
			opts: []Option{Flag(KindName)},
			want: []Outcome{Conflicting},
		},
		{
			name: "key parsed when kind unset",
			ctx:  NamedField,
			opts: []Option{{Key: "set"}, {Key: "set"}},
			want: []Outcome{Valid, Duplicate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSet(tt.ctx)
			for i, opt := range tt.opts {
				if got := s.Register(opt); got != tt.want[i] {
					t.Errorf("Register(#%d %s) = %s, want %s", i, opt.Key, got, tt.want[i])
				}
			}
		})
	}
}

func TestFinish(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		opts []Option
		want []Kind
	}{
		{name: "named field get", ctx: NamedField, opts: []Option{Flag(KindGet)}},
		{name: "named field rename with get", ctx: NamedField, opts: []Option{Flag(KindGet), Named("x")}},
		{name: "useless name", ctx: NamedField, opts: []Option{Named("x")}, want: []Kind{KindName}},
		{name: "tuple without name", ctx: TupleField, opts: []Option{Flag(KindGet), Flag(KindSet)}, want: []Kind{KindGet}},
		{name: "tuple with name", ctx: TupleField, opts: []Option{Flag(KindGet), Named("x")}},
		{name: "tuple bare", ctx: TupleField},
		{name: "duplicate name is not also useless", ctx: TupleField, opts: []Option{Named("foo"), Named("bar")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSet(tt.ctx)
			for _, opt := range tt.opts {
				s.Register(opt)
			}
			got := s.Finish()
			if len(got) != len(tt.want) {
				t.Fatalf("Finish() = %v, want kinds %v", got, tt.want)
			}
			for i := range got {
				if got[i].Kind != tt.want[i] {
					t.Errorf("Finish()[%d].Kind = %s, want %s", i, got[i].Kind, tt.want[i])
				}
			}
		})
	}
}

func TestFinishPointsAtTrailingOption(t *testing.T) {
	s := NewSet(TupleField)
	s.Register(Flag(KindGet))
	s.Register(Option{Kind: KindSet, Key: "set"})
	got := s.Finish()
	if len(got) != 1 {
		t.Fatalf("Finish() = %v, want one entry", got)
	}
	if got[0].Option.Key != "set" {
		t.Errorf("Finish() points at %q, want the trailing set", got[0].Option.Key)
	}
}
