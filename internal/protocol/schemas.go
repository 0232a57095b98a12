package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://hivemind.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeWelcome: "welcome.schema.json",
	TypeTick:    "tick.schema.json",
	TypeCall:    "call.schema.json",
	TypeReply:   "reply.schema.json",
	TypeDone:    "done.schema.json",
}

// Schemas validates frames by type.
type Schemas struct {
	byType map[string]*jsonschema.Schema
}

func LoadSchemas() (*Schemas, error) {
	c := jsonschema.NewCompiler()
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
	}
	s := &Schemas{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range schemaFiles {
		sch, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		s.byType[typ] = sch
	}
	return s, nil
}

// Validate checks raw against the schema of its declared frame type.
func (s *Schemas) Validate(raw []byte) error {
	base, err := DecodeBase(raw)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	sch, ok := s.byType[base.Type]
	if !ok {
		return fmt.Errorf("unknown frame type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return sch.Validate(v)
}
