package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Schema file names.
const (
	SchemaHello  = "hello.schema.json"
	SchemaCmd    = "cmd.schema.json"
	SchemaNotice = "notice.schema.json"
	SchemaResult = "result.schema.json"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	names := []string{SchemaHello, SchemaCmd, SchemaNotice, SchemaResult}
	for _, n := range names {
		b, err := schemaFS.ReadFile("schemas/" + n)
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(n, bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("%s: %w", n, err)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, n := range names {
		s, err := c.Compile(n)
		if err != nil {
			schemasErr = fmt.Errorf("compile %s: %w", n, err)
			return
		}
		out[n] = s
	}
	schemas = out
}

// Schema returns the compiled embedded schema with the given file name.
func Schema(name string) (*jsonschema.Schema, error) {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

// ValidateFrame checks a raw JSON frame against the named schema.
func ValidateFrame(name string, raw []byte) error {
	s, err := Schema(name)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
