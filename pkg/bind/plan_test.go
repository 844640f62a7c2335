package bind

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haivivi/bindkit/pkg/bridge"
	"github.com/haivivi/bindkit/pkg/decl"
	"github.com/haivivi/bindkit/pkg/foreign"
)

func TestPlanMatchesGenerate(t *testing.T) {
	f := newFixture(t, bridge.Options{})
	set, err := decl.Parse("counter.yaml", []byte(counterYAML))
	if err != nil {
		t.Fatal(err)
	}
	g := &Generator{Bridge: bridge.New(bridge.Options{})}
	planned, err := g.Plan(set)
	if err != nil {
		t.Fatalf("Plan() failed: %v", err)
	}

	want, err := json.Marshal(f.u.Classes)
	if err != nil {
		t.Fatal(err)
	}
	got, err := json.Marshal(planned)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Plan() shape differs from Generate()\n got: %s\nwant: %s", got, want)
	}
	for _, frag := range []string{`"kind":"static"`, `"flags":"have_gc|base_type"`, `{"name":"Label","get":true,"set":false}`} {
		if !strings.Contains(string(got), frag) {
			t.Errorf("JSON missing %s", frag)
		}
	}
}

func TestPlanEntriesAreUnbound(t *testing.T) {
	set, err := decl.Parse("counter.yaml", []byte(counterYAML))
	if err != nil {
		t.Fatal(err)
	}
	g := &Generator{Bridge: bridge.New(bridge.Options{})}
	planned, err := g.Plan(set)
	if err != nil {
		t.Fatal(err)
	}
	incr, ok := planned[0].Method("Incr")
	if !ok {
		t.Fatal("Incr missing from plan")
	}
	if _, err := incr.Call(context.Background(), nil, []*foreign.Object{}); !errors.Is(err, ErrNoHost) {
		t.Errorf("planned Call() error = %v, want ErrNoHost", err)
	}
}

func TestPlanFailures(t *testing.T) {
	g := &Generator{Bridge: bridge.New(bridge.Options{})}
	unmapped, _ := decl.Parse("t.yaml", []byte("types: [{name: A, methods: [{name: M, error: smithy.APIError}]}]"))
	if _, err := g.Plan(unmapped); !errors.Is(err, ErrUnmappedError) {
		t.Errorf("Plan() error = %v, want ErrUnmappedError", err)
	}
	invalid, _ := decl.Parse("t.yaml", []byte("types: [{name: A, fields: [{name: X, options: [name]}]}]"))
	if _, err := g.Plan(invalid); err == nil {
		t.Error("Plan() of invalid declarations succeeded")
	}
}
