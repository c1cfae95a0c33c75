package suite

// schemaJSON describes a suite file.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tests"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "description": {"type": "string"},
    "shell": {"type": "string", "minLength": 1},
    "timeout": {"$ref": "#/definitions/duration"},
    "envFile": {"type": "string"},
    "env": {"$ref": "#/definitions/env"},
    "setup": {"type": "array", "items": {"type": "string"}},
    "teardown": {"type": "array", "items": {"type": "string"}},
    "waitFor": {
      "type": "object",
      "required": ["url"],
      "additionalProperties": false,
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "status": {"type": "integer", "minimum": 100, "maximum": 599},
        "timeout": {"$ref": "#/definitions/duration"},
        "interval": {"$ref": "#/definitions/duration"}
      }
    },
    "tests": {
      "type": "array",
      "items": {"$ref": "#/definitions/test"}
    }
  },
  "definitions": {
    "duration": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h)$"},
    "env": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean"]}
    },
    "test": {
      "type": "object",
      "required": ["name", "command"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "command": {"type": "string", "minLength": 1},
        "dir": {"type": "string"},
        "timeout": {"$ref": "#/definitions/duration"},
        "env": {"$ref": "#/definitions/env"},
        "skip": {"type": "string"},
        "blocked": {"type": "string"},
        "category": {"enum": ["", "failure", "todo", "deprecated"]},
        "expect": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "exitCode": {"type": "integer"},
            "output": {"type": "string"},
            "json": {"type": "object"},
            "snapshot": {"type": "string", "minLength": 1}
          }
        },
        "assert": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["subject"],
            "additionalProperties": false,
            "properties": {
              "subject": {"type": "string"},
              "op": {"type": "string"},
              "value": {}
            }
          }
        },
        "record": {
          "type": "object",
          "additionalProperties": {"type": "string"}
        }
      }
    }
  }
}`
