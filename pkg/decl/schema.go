package decl

import (
	"reflect"

	"github.com/google/jsonschema-go/jsonschema"
)

// The doc types mirror the file format Parse reads. They exist only to
// derive its JSON Schema.
type (
	fileDoc struct {
		Module string    `json:"module,omitempty" jsonschema:"module the classes are qualified with; defaults to builtins"`
		Types  []typeDoc `json:"types"`
	}
	typeDoc struct {
		Name     string      `json:"name" jsonschema:"host type name"`
		Module   string      `json:"module,omitempty" jsonschema:"overrides the file module for this type"`
		Doc      string      `json:"doc,omitempty"`
		Tuple    bool        `json:"tuple,omitempty" jsonschema:"fields are positional"`
		Dict     bool        `json:"dict,omitempty" jsonschema:"instances get a __dict__"`
		Weakref  bool        `json:"weakref,omitempty" jsonschema:"instances are weakly referenceable"`
		Subclass bool        `json:"subclass,omitempty" jsonschema:"foreign code may subclass the class"`
		GC       bool        `json:"gc,omitempty" jsonschema:"take part in cyclic garbage collection"`
		Fields   []fieldDoc  `json:"fields,omitempty"`
		Methods  []methodDoc `json:"methods,omitempty"`
	}
	fieldDoc struct {
		Name    string      `json:"name,omitempty" jsonschema:"host field name; omitted for tuple fields"`
		Index   int         `json:"index,omitempty" jsonschema:"position of a tuple field"`
		Type    string      `json:"type,omitempty" jsonschema:"host type expression such as int or []float64"`
		Options []optionDoc `json:"options,omitempty"`
	}
	methodDoc struct {
		Name    string      `json:"name"`
		Kind    kindDoc     `json:"kind,omitempty"`
		Params  []paramDoc  `json:"params,omitempty"`
		Returns string      `json:"returns,omitempty" jsonschema:"result type; omitted when the method returns nothing"`
		Error   string      `json:"error,omitempty" jsonschema:"error type the method can return"`
		Doc     string      `json:"doc,omitempty"`
		Options []optionDoc `json:"options,omitempty"`
	}
	paramDoc struct {
		Name string       `json:"name"`
		Kind paramKindDoc `json:"kind,omitempty"`
		Type string       `json:"type,omitempty"`
	}
	optionDoc    struct{}
	kindDoc      string
	paramKindDoc string
)

// Schema returns the JSON Schema of declaration files.
func Schema() (*jsonschema.Schema, error) {
	str := func(desc string, values ...any) *jsonschema.Schema {
		return &jsonschema.Schema{Type: "string", Description: desc, Enum: values}
	}
	s, err := jsonschema.For[fileDoc](&jsonschema.ForOptions{
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[kindDoc]():      str("role of the method", "plain", "method", "getter", "setter", "static", "staticmethod", "class", "classmethod"),
			reflect.TypeFor[paramKindDoc](): str("token marks the interpreter-token parameter", "value", "token"),
			reflect.TypeFor[optionDoc](): {
				Description: "attribute option: a flag (get, set) or a one-key mapping such as {name: x}",
				OneOf: []*jsonschema.Schema{
					{Type: "string"},
					{Type: "object", MinProperties: jsonschema.Ptr(1), MaxProperties: jsonschema.Ptr(1)},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	s.Schema = "https://json-schema.org/draft/2020-12/schema"
	s.Title = "bindkit declaration file"
	return s, nil
}
