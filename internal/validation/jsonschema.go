package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/seriva/flowdeck/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for the workflow envelope.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "nodes", "edges"],
  "properties": {
    "id": { "type": "string" },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "enabled": { "type": "boolean" },
    "schedule": { "type": "string" },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "created_at": {},
    "updated_at": {}
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type", "subtype"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "type": {
          "type": "string",
          "enum": ["trigger", "action", "logic"]
        },
        "subtype": {
          "type": "string",
          "enum": ["schedule", "webhook", "manual", "plugin", "delay", "condition", "transform"]
        },
        "position": { "$ref": "#/$defs/position" },
        "data": {}
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["source", "target"],
      "properties": {
        "id": { "type": "string" },
        "source": {
          "type": "string",
          "minLength": 1
        },
        "target": {
          "type": "string",
          "minLength": 1
        }
      },
      "additionalProperties": false
    },
    "position": {
      "type": "object",
      "properties": {
        "x": { "type": "number" },
        "y": { "type": "number" }
      },
      "additionalProperties": false
    }
  }
}`

// nodeDataSchemas maps node subtypes to JSON Schemas for their data payloads.
// Subtypes without an entry accept any data (trigger nodes carry none).
var nodeDataSchemas = map[schema.NodeSubtype]string{
	schema.SubtypePlugin: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/node-plugin.json",
  "type": "object",
  "required": ["plugin", "action"],
  "properties": {
    "plugin": { "type": "string", "minLength": 1 },
    "action": { "type": "string", "minLength": 1 },
    "parameters": { "type": "object" }
  },
  "additionalProperties": false
}`,
	schema.SubtypeDelay: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/node-delay.json",
  "type": "object",
  "required": ["delay"],
  "properties": {
    "delay": { "type": "number", "exclusiveMinimum": 0 }
  },
  "additionalProperties": false
}`,
	schema.SubtypeCondition: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/node-condition.json",
  "type": "object",
  "required": ["left", "operator", "right"],
  "properties": {
    "left": { "type": "string" },
    "operator": {
      "type": "string",
      "enum": ["equals", "not_equals", "contains", "greater_than", "less_than"]
    },
    "right": { "type": "string" }
  },
  "additionalProperties": false
}`,
	schema.SubtypeTransform: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/node-transform.json",
  "type": "object",
  "required": ["expression"],
  "properties": {
    "language": {
      "type": "string",
      "enum": ["expr", "jq", "cel"]
    },
    "expression": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`,
}

// JSONSchemaValidator validates workflows and node data payloads against
// JSON Schema Draft 2020-12. It is safe for concurrent use: all schemas
// are compiled up front.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
	dataSchemas    map[schema.NodeSubtype]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with all schemas pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	wfSchema, err := compileResource(c, "https://flowdeck.dev/schemas/workflow.json", workflowSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("workflow schema: %w", err)
	}

	dataSchemas := make(map[schema.NodeSubtype]*jsonschema.Schema, len(nodeDataSchemas))
	for subtype, src := range nodeDataSchemas {
		url := fmt.Sprintf("https://flowdeck.dev/schemas/node-%s.json", subtype)
		compiled, err := compileResource(c, url, src)
		if err != nil {
			return nil, fmt.Errorf("%s data schema: %w", subtype, err)
		}
		dataSchemas[subtype] = compiled
	}

	return &JSONSchemaValidator{
		workflowSchema: wfSchema,
		dataSchemas:    dataSchemas,
	}, nil
}

// ValidateWorkflow checks the workflow envelope and each node's data payload
// against their schemas, reporting every violation found.
func (v *JSONSchemaValidator) ValidateWorkflow(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if wf == nil {
		result.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return result
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize workflow: "+err.Error())
		return result
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		for _, violation := range collectViolations(err) {
			result.AddError("/", schema.ErrCodeValidation, violation)
		}
		return result
	}

	for i, node := range wf.Nodes {
		compiled, ok := v.dataSchemas[node.Subtype]
		if !ok {
			continue
		}
		path := fmt.Sprintf("nodes[%d].data", i)
		if len(node.Data) == 0 {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("node %q (%s) requires a data payload", node.ID, node.Subtype))
			continue
		}
		dataDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(node.Data)))
		if err != nil {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("node %q has malformed data: %v", node.ID, err))
			continue
		}
		if err := compiled.Validate(dataDoc); err != nil {
			for _, violation := range collectViolations(err) {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("node %q: %s", node.ID, violation))
			}
		}
	}

	return result
}

// compileResource registers a schema document under url and compiles it.
func compileResource(c *jsonschema.Compiler, url, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	return c.Compile(url)
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	return collectLeaves(verr)
}

func collectLeaves(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectLeaves(cause)...)
	}
	return violations
}
