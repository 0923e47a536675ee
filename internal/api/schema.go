package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// command stays optional so a missing command reaches the mediator, which
// reports it after the sandbox check.
const executeRequestSchema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string"}
	}
}`

var executeSchema = mustSchema(executeRequestSchema)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return schema
}

var errInvalidJSON = errors.New("request body is not valid JSON")

// validateBody checks body against schema. An empty body counts as {}.
func validateBody(schema *gojsonschema.Schema, body []byte) ([]byte, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, errInvalidJSON
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
	}
	return body, nil
}
