package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Payload schemas. The remote API is trusted for scheduling but not for
// shape: responses are validated before they are cached or rendered, so a
// malformed deployment degrades to a transient API error instead of
// corrupting the single-slot card cache.
const (
	flashcardSchema = `{
		"type": "object",
		"required": ["card_id", "card_front", "card_back"],
		"properties": {
			"card_id": {"type": "string", "minLength": 1},
			"card_front": {"type": "string"},
			"card_back": {"type": "string"},
			"card_type": {"type": "string"},
			"review_date": {"type": "string"},
			"stability": {"type": "number"},
			"difficulty": {"type": "number"},
			"last_review_date": {"type": "string"},
			"user_id": {"type": "string"}
		}
	}`

	userDataSchema = `{
		"type": "object",
		"required": ["blocked_sites"],
		"properties": {
			"max_new_cards": {"type": "integer", "minimum": 0},
			"deck": {"type": "string"},
			"decks": {"type": "array", "items": {"type": "string"}},
			"blocked_sites": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["url", "active"],
					"properties": {
						"url": {"type": "string"},
						"active": {"type": "boolean"}
					}
				}
			}
		}
	}`
)

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// validatePayload validates raw JSON against the named schema definition.
// Returns *ErrInvalidPayload on failure.
func validatePayload(name, definition string, raw json.RawMessage) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &ErrInvalidPayload{Schema: name, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	compiled, err := getCompiledSchema(name, definition)
	if err != nil {
		return &ErrInvalidPayload{Schema: name, Err: fmt.Errorf("compile schema: %w", err)}
	}

	if err := compiled.Validate(parsed); err != nil {
		return &ErrInvalidPayload{Schema: name, Err: err}
	}
	return nil
}

// getCompiledSchema returns a cached compiled schema or compiles and caches it.
func getCompiledSchema(name, definition string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	def, err := jsonschema.UnmarshalJSON(strings.NewReader(definition))
	if err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(schemaURL, def); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}
