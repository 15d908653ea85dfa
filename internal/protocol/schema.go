package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://citycore.local/schemas/"

// Validator checks inbound client messages against the embedded JSON schemas
// before they are decoded into Go structs.
type Validator struct {
	hello   *jsonschema.Schema
	request *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	for _, name := range []string{"hello.schema.json", "request.schema.json"} {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	hello, err := c.Compile(schemaBaseURL + "hello.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile hello schema: %w", err)
	}
	request, err := c.Compile(schemaBaseURL + "request.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &Validator{hello: hello, request: request}, nil
}

func (v *Validator) ValidateHello(raw []byte) error { return validate(v.hello, raw) }

func (v *Validator) ValidateRequest(raw []byte) error { return validate(v.request, raw) }

func validate(s *jsonschema.Schema, raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
