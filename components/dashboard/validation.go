package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidFilterPayload wraps schema violations in user-supplied filters.
var ErrInvalidFilterPayload = errors.New("dashboard: invalid filter payload")

const filterSchemaName = "filter_config.json"

// filterPayloadSchema checks the wire shape of a filter update. Values are
// still sanitized against capabilities afterwards; the schema only rejects
// payloads no client should send.
var filterPayloadSchema = fmt.Sprintf(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "id": {
      "oneOf": [
        {"type": "integer", "minimum": 0},
        {"type": "string", "pattern": "^[0-9]+$"},
        {"type": "null"}
      ]
    },
    "date": {"type": ["string", "null"], "maxLength": 64}
  },
  "properties": {
    "startDate": {"$ref": "#/definitions/date"},
    "endDate": {"$ref": "#/definitions/date"},
    "videoId": {"$ref": "#/definitions/id"},
    "productId": {"$ref": "#/definitions/id"},
    "userId": {"$ref": "#/definitions/id"},
    "screen": {"type": ["string", "null"], "maxLength": 256},
    "signer": {"type": ["string", "null"], "maxLength": 256},
    "subscriptionCategory": {"type": ["string", "null"], "maxLength": 64},
    "term": {"enum": [%s, null, ""]}
  }
}`, quotedTerms())

func quotedTerms() string {
	quoted := make([]string, len(knownTerms))
	for i, t := range knownTerms {
		quoted[i] = `"` + string(t) + `"`
	}
	return strings.Join(quoted, ", ")
}

// FilterPayloadValidator validates filter payloads against the JSON schema
// for FilterConfig.
type FilterPayloadValidator struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

// NewFilterPayloadValidator builds a validator backed by jsonschema v5.
func NewFilterPayloadValidator() *FilterPayloadValidator {
	return &FilterPayloadValidator{}
}

// Validate checks payload and returns the decoded configuration.
func (v *FilterPayloadValidator) Validate(payload map[string]any) (FilterConfig, error) {
	schema, err := v.compiled()
	if err != nil {
		return FilterConfig{}, err
	}
	normalized := map[string]any{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return FilterConfig{}, fmt.Errorf("dashboard: marshal filter payload: %w", err)
		}
		if err := json.Unmarshal(data, &normalized); err != nil {
			return FilterConfig{}, fmt.Errorf("dashboard: normalize filter payload: %w", err)
		}
	}
	if err := schema.Validate(normalized); err != nil {
		return FilterConfig{}, fmt.Errorf("%w: %w", ErrInvalidFilterPayload, err)
	}
	return DecodeFilterConfig(normalized), nil
}

func (v *FilterPayloadValidator) compiled() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(filterSchemaName, bytes.NewReader([]byte(filterPayloadSchema))); err != nil {
			v.err = fmt.Errorf("dashboard: load filter schema: %w", err)
			return
		}
		v.schema, v.err = compiler.Compile(filterSchemaName)
		if v.err != nil {
			v.err = fmt.Errorf("dashboard: compile filter schema: %w", v.err)
		}
	})
	return v.schema, v.err
}
