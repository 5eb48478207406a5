package server

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// batchSources are the sources whose providers batch events, so their
// envelope may be a top-level array. Everything else delivers one object per
// request.
var batchSources = map[string]bool{
	"hubspot": true,
}

// envelopeValidator checks the structural shape of a delivery before it
// reaches an adapter: object or array-of-objects depending on the source.
// Field-level tolerance stays with the adapters; this only rejects bodies
// that could never be a webhook envelope.
type envelopeValidator struct {
	schemas map[string]*jsonschema.Schema
}

// newEnvelopeValidator compiles the envelope schema for each source. The
// schemas are embedded and covered by tests, so compilation failure is a
// build defect and panics.
func newEnvelopeValidator(sources []string) *envelopeValidator {
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{"envelope_single.json", "envelope_batch.json"} {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			panic(fmt.Sprintf("embedded schema %s missing: %v", name, err))
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			panic(fmt.Sprintf("embedded schema %s invalid: %v", name, err))
		}
		if err := compiler.AddResource(name, doc); err != nil {
			panic(fmt.Sprintf("embedded schema %s rejected: %v", name, err))
		}
	}

	v := &envelopeValidator{schemas: make(map[string]*jsonschema.Schema, len(sources))}
	for _, source := range sources {
		name := "envelope_single.json"
		if batchSources[source] {
			name = "envelope_batch.json"
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("failed to compile schema %s: %v", name, err))
		}
		v.schemas[source] = schema
	}
	return v
}

// Knows reports whether the validator has a schema for the source, which
// doubles as the ingress routing check.
func (v *envelopeValidator) Knows(source string) bool {
	_, ok := v.schemas[source]
	return ok
}

// Validate checks a delivery body against the source's envelope schema.
func (v *envelopeValidator) Validate(source string, payload []byte) error {
	schema, ok := v.schemas[source]
	if !ok {
		return fmt.Errorf("no envelope schema for source %q", source)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("payload is not a valid %s envelope: %w", source, err)
	}
	return nil
}
