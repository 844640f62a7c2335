package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/haivivi/bindkit/pkg/decl"
)

// LoadDeclarations reads a declaration file ("-" for stdin) and parses it.
// JSON files that are not well-formed are repaired first; the returned
// source is the text that was parsed, so diagnostics point into it.
func LoadDeclarations(path string, stdin io.Reader) (*decl.Set, []byte, error) {
	var (
		data []byte
		err  error
	)
	name := path
	if path == "-" {
		name = "<stdin>"
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("cli: read declarations: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") && !json.Valid(data) {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return nil, nil, fmt.Errorf("cli: repair %s: %w", name, err)
		}
		data = []byte(fixed)
	}

	set, err := decl.Parse(name, data)
	if err != nil {
		return nil, data, err
	}
	return set, data, nil
}
