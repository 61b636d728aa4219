package gateway

import (
	"fmt"
	"strings"

	"github.com/harun/afkd/pkg/session"
	"github.com/xeipuuv/gojsonschema"
)

const startSchema = `{
  "type": "object",
  "required": ["identity", "server"],
  "properties": {
    "identity": {"type": "string", "minLength": 1, "maxLength": 64},
    "server":   {"type": "string", "minLength": 1, "maxLength": 255},
    "port":     {"type": "integer", "minimum": 1, "maximum": 65535},
    "botName":  {"type": "string", "maxLength": 16},
    "version":  {"type": "string", "maxLength": 32}
  }
}`

const stopSchema = `{
  "type": "object",
  "required": ["identity"],
  "properties": {
    "identity": {"type": "string", "minLength": 1, "maxLength": 64}
  }
}`

const commandSchema = `{
  "type": "object",
  "required": ["identity", "command"],
  "properties": {
    "identity": {"type": "string", "minLength": 1, "maxLength": 64},
    "command":  {"type": "string", "minLength": 1}
  }
}`

// requestSchemas holds the compiled body schemas, keyed by route
type requestSchemas struct {
	start   *gojsonschema.Schema
	stop    *gojsonschema.Schema
	command *gojsonschema.Schema
}

func compileSchemas() (*requestSchemas, error) {
	compile := func(name, src string) (*gojsonschema.Schema, error) {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		return schema, nil
	}

	var (
		s   requestSchemas
		err error
	)
	if s.start, err = compile("start", startSchema); err != nil {
		return nil, err
	}
	if s.stop, err = compile("stop", stopSchema); err != nil {
		return nil, err
	}
	if s.command, err = compile("command", commandSchema); err != nil {
		return nil, err
	}
	return &s, nil
}

// validateBody checks a raw JSON body against schema. Failures wrap
// session.ErrValidation so they map to 400.
func validateBody(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", session.ErrValidation, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", session.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}
