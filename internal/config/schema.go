package config

import (
	"strings"

	cberrors "github.com/systmms/credbroker/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON Schema applied to the configuration document
// before it is decoded. Inline plugin config keys are intentionally left
// open; each plugin validates its own settings at construction.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "version": {"type": "integer"},
    "connection": {
      "type": "object",
      "properties": {
        "address": {"type": "string"},
        "client_id": {"type": "string"},
        "ca_cert": {"type": "string"},
        "client_cert": {"type": "string"},
        "client_key": {"type": "string"},
        "api_version": {"type": "string"},
        "registration_id": {"type": "string"},
        "insecure_skip_verify": {"type": "boolean"},
        "timeout_ms": {"type": "integer", "minimum": 0}
      }
    },
    "plugins": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "disabled": {"type": "boolean"},
          "reverse_flow": {"type": "boolean"},
          "kind": {"type": "string", "enum": ["password", "sshkey", "apikey"]}
        },
        "required": ["type"]
      }
    },
    "mappings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "asset": {"type": "string", "minLength": 1},
          "account": {"type": "string", "minLength": 1},
          "plugin": {"type": "string", "minLength": 1},
          "fetch_key": {"type": "string", "minLength": 1},
          "kind": {"type": "string", "enum": ["password", "sshkey", "apikey"]}
        },
        "required": ["asset", "account", "plugin", "fetch_key", "kind"]
      }
    },
    "monitor": {
      "type": "object",
      "properties": {
        "poll_interval_ms": {"type": "integer", "minimum": 0},
        "history_capacity": {"type": "integer", "minimum": 0},
        "state_dir": {"type": "string"}
      }
    }
  }
}`

func validateSchema(jsonData []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		// The validator itself failed; fall through to structural decoding.
		return nil
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return cberrors.ConfigError{
			Message:    "configuration does not match the expected schema",
			Suggestion: strings.Join(details, "; "),
		}
	}
	return nil
}
