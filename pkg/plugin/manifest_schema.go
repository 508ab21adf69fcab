package plugin

// ManifestSchema is the JSON Schema a plugin manifest must satisfy before
// the programmatic checks in Validator run.
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "name", "version", "description", "author", "permissions", "provides"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-z0-9-]+$",
      "description": "Globally unique plugin identifier"
    },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "version": {
      "type": "string",
      "minLength": 1,
      "description": "Semver version"
    },
    "description": {
      "type": "string",
      "minLength": 1
    },
    "author": {
      "type": "string",
      "minLength": 1
    },
    "permissions": {
      "type": "array",
      "items": {
        "type": "string",
        "minLength": 1
      }
    },
    "provides": {
      "type": "object",
      "properties": {
        "routes": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["path", "method", "handler"],
            "properties": {
              "path": { "type": "string", "minLength": 1 },
              "method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"] },
              "handler": { "type": "string", "minLength": 1 },
              "permissions": {
                "type": "array",
                "items": { "type": "string" }
              }
            }
          }
        },
        "menuItems": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["label", "route"],
            "properties": {
              "label": { "type": "string", "minLength": 1 },
              "route": { "type": "string", "minLength": 1 },
              "icon": { "type": "string" },
              "order": { "type": "integer" }
            }
          }
        },
        "dashboardWidgets": {
          "type": "array",
          "items": { "type": "object" }
        },
        "settings": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["key", "type"],
            "properties": {
              "key": { "type": "string", "minLength": 1 },
              "type": { "type": "string", "enum": ["text", "number", "boolean", "select", "password"] },
              "label": { "type": "string" },
              "required": { "type": "boolean" },
              "options": {
                "type": "array",
                "items": { "type": "string" }
              },
              "validation": { "type": "string" }
            }
          }
        }
      }
    }
  }
}`
