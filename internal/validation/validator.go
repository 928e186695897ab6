package validation

import "github.com/seriva/flowdeck/pkg/schema"

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema envelope + per-subtype data payloads)
// 2. Semantic (trigger cardinality, edge refs, cron expression, catalog refs)
// 3. Graph (fan-out, cycles, reachability)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	actions    ActionLookup
}

// NewWorkflowValidator creates a WorkflowValidator.
// lookup may be nil to skip plugin action existence checks.
func NewWorkflowValidator(lookup ActionLookup) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		actions:    lookup,
	}, nil
}

// Validate runs the full 3-stage pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and graph stages are skipped.
func (wv *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	// Stage 1: Structural (JSON Schema).
	result := wv.jsonSchema.ValidateWorkflow(wf)
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(wf, wv.actions))

	// Stage 3: Graph (skip if semantic errors, the graph may be malformed).
	if result.Valid() {
		result.Merge(validateGraph(wf))
	}

	return result
}

// ValidateWorkflow runs the pipeline and folds the result into an error.
func (wv *WorkflowValidator) ValidateWorkflow(wf *schema.Workflow) error {
	return wv.Validate(wf).ToError()
}
