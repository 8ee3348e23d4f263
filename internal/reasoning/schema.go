package reasoning

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const classifySchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["relevant"],
	"properties": {
		"relevant": {"type": "boolean"}
	}
}`

const extractSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["event"],
	"properties": {
		"event": {
			"oneOf": [
				{"type": "null"},
				{
					"type": "object",
					"required": ["title", "all_day", "start_date", "start_time", "end_date", "end_time"],
					"properties": {
						"title": {"type": "string", "minLength": 1},
						"description": {"type": "string"},
						"all_day": {"type": "boolean"},
						"start_date": {"$ref": "#/$defs/date"},
						"start_time": {"$ref": "#/$defs/time"},
						"end_date": {"$ref": "#/$defs/date"},
						"end_time": {"$ref": "#/$defs/time"}
					}
				}
			]
		}
	},
	"$defs": {
		"date": {"type": "string", "pattern": "^(|[0-9]{4}-[0-9]{2}-[0-9]{2})$"},
		"time": {"type": "string", "pattern": "^(|[0-9]{2}:[0-9]{2})$"}
	}
}`

// validator checks the documents returned by the reasoning service
// before they are trusted.
type validator struct {
	classify *jsonschema.Schema
	extract  *jsonschema.Schema
}

func newValidator() (*validator, error) {
	c := jsonschema.NewCompiler()
	for name, src := range map[string]string{
		"classify.json": classifySchema,
		"extract.json":  extractSchema,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("reasoning: parsing %s: %w", name, err)
		}
		if err := c.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("reasoning: adding %s: %w", name, err)
		}
	}
	classify, err := c.Compile("classify.json")
	if err != nil {
		return nil, fmt.Errorf("reasoning: compiling classify schema: %w", err)
	}
	extract, err := c.Compile("extract.json")
	if err != nil {
		return nil, fmt.Errorf("reasoning: compiling extract schema: %w", err)
	}
	return &validator{classify: classify, extract: extract}, nil
}

func validate(sch *jsonschema.Schema, content []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("unexpected response: %w", err)
	}
	return nil
}
