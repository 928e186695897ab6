package validation

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/seriva/flowdeck/pkg/schema"
)

// ActionLookup reports whether a plugin action is known to the catalog.
// Nil lookups skip action existence checks.
type ActionLookup interface {
	Has(plugin, action string) bool
}

// cronParser accepts the standard 5-field cron grammar used for workflow
// schedules (minute hour day-of-month month day-of-week).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// validateSemantic performs semantic analysis on the workflow graph.
// Checks: exactly one trigger, unique node/edge IDs, edge endpoints exist,
// schedule expression parses, plugin actions registered, typed data decodes.
func validateSemantic(wf *schema.Workflow, lookup ActionLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(wf.Nodes))
	triggers := 0
	var triggerSubtype schema.NodeSubtype

	for i, node := range wf.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if nodeIDs[node.ID] {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", node.ID))
		}
		nodeIDs[node.ID] = true

		if !subtypeValid(node.Type, node.Subtype) {
			result.AddError(path+".subtype", schema.ErrCodeValidation,
				fmt.Sprintf("subtype %q is not valid for node type %q", node.Subtype, node.Type))
			continue
		}

		if node.Type == schema.NodeTypeTrigger {
			triggers++
			triggerSubtype = node.Subtype
		}

		validateNodeData(&wf.Nodes[i], path, lookup, result)
	}

	switch triggers {
	case 0:
		result.AddError("nodes", schema.ErrCodeValidation, "workflow has no trigger node")
	case 1:
		// ok
	default:
		result.AddError("nodes", schema.ErrCodeValidation,
			fmt.Sprintf("workflow has %d trigger nodes, expected exactly one", triggers))
	}

	// A non-empty schedule must always parse; the scheduler fires on it
	// regardless of the trigger subtype.
	if wf.Schedule != "" {
		if _, err := cronParser.Parse(wf.Schedule); err != nil {
			result.AddError("schedule", schema.ErrCodeValidation,
				fmt.Sprintf("invalid cron expression %q: %v", wf.Schedule, err))
		}
	} else if wf.Enabled && triggers == 1 && triggerSubtype == schema.SubtypeSchedule {
		result.AddError("schedule", schema.ErrCodeValidation,
			"enabled workflow with a schedule trigger requires a schedule expression")
	}

	edgeIDs := make(map[string]bool, len(wf.Edges))
	for i, edge := range wf.Edges {
		path := fmt.Sprintf("edges[%d]", i)

		if edge.ID != "" {
			if edgeIDs[edge.ID] {
				result.AddError(path+".id", schema.ErrCodeValidation,
					fmt.Sprintf("duplicate edge id %q", edge.ID))
			}
			edgeIDs[edge.ID] = true
		}

		if !nodeIDs[edge.Source] {
			result.AddError(path+".source", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", edge.Source))
		}
		if !nodeIDs[edge.Target] {
			result.AddError(path+".target", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent node %q", edge.Target))
		}
		if edge.Source == edge.Target {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("edge connects node %q to itself", edge.Source))
		}
	}

	return result
}

func subtypeValid(t schema.NodeType, st schema.NodeSubtype) bool {
	for _, s := range schema.Subtypes[t] {
		if s == st {
			return true
		}
	}
	return false
}

// validateNodeData decodes typed payloads and checks catalog references.
// Structural shape is already guaranteed by the JSON Schema stage.
func validateNodeData(node *schema.Node, path string, lookup ActionLookup, result *schema.ValidationResult) {
	switch node.Subtype {
	case schema.SubtypePlugin:
		data, err := node.ActionData()
		if err != nil {
			result.AddError(path+".data", schema.ErrCodeValidation,
				fmt.Sprintf("node %q: %v", node.ID, err))
			return
		}
		if lookup != nil && !lookup.Has(data.Plugin, data.Action) {
			result.AddError(path+".data", schema.ErrCodeAction,
				fmt.Sprintf("node %q references unknown plugin action %s/%s", node.ID, data.Plugin, data.Action))
		}
	case schema.SubtypeDelay:
		if _, err := node.DelayData(); err != nil {
			result.AddError(path+".data", schema.ErrCodeValidation,
				fmt.Sprintf("node %q: %v", node.ID, err))
		}
	case schema.SubtypeCondition:
		if _, err := node.ConditionData(); err != nil {
			result.AddError(path+".data", schema.ErrCodeValidation,
				fmt.Sprintf("node %q: %v", node.ID, err))
		}
	case schema.SubtypeTransform:
		if _, err := node.TransformData(); err != nil {
			result.AddError(path+".data", schema.ErrCodeValidation,
				fmt.Sprintf("node %q: %v", node.ID, err))
		}
	}
}
