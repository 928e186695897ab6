package validation

import (
	"fmt"
	"sort"

	"github.com/seriva/flowdeck/pkg/schema"
)

// validateGraph performs graph analysis on the workflow:
// fan-out rejection (every node has at most one outgoing edge), cycle
// detection (Kahn's algorithm), and trigger-reachability warnings.
func validateGraph(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeIDs := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeIDs[n.ID] = true
	}

	// successors[id] = targets of edges leaving id.
	successors := make(map[string][]string, len(wf.Nodes))
	inDegree := make(map[string]int, len(wf.Nodes))
	for id := range nodeIDs {
		inDegree[id] = 0
	}

	for _, e := range wf.Edges {
		if !nodeIDs[e.Source] || !nodeIDs[e.Target] {
			continue // invalid refs already caught by semantic
		}
		successors[e.Source] = append(successors[e.Source], e.Target)
		inDegree[e.Target]++
	}

	// The engine follows a single path, so branching is rejected outright.
	for id, succ := range successors {
		if len(succ) > 1 {
			result.AddError(fmt.Sprintf("nodes[%s]", id), schema.ErrCodeValidation,
				fmt.Sprintf("node %q has %d outgoing edges, at most one is allowed", id, len(succ)))
		}
	}

	// Kahn's algorithm for cycle detection.
	queue := make([]string, 0, len(wf.Nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	// Sort roots for deterministic output.
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range successors[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(nodeIDs) {
		result.AddError("edges", schema.ErrCodeCycleDetected, "workflow graph contains a cycle")
		return result // cycle makes reachability analysis meaningless
	}

	// Reachability: BFS from the trigger through successor edges. Orphan
	// nodes are allowed to exist but will never run, so warn.
	trigger := wf.TriggerNode()
	if trigger == nil {
		return result // missing trigger already reported by semantic
	}

	reachable := map[string]bool{trigger.ID: true}
	bfsQueue := []string{trigger.ID}
	for len(bfsQueue) > 0 {
		node := bfsQueue[0]
		bfsQueue = bfsQueue[1:]
		for _, next := range successors[node] {
			if !reachable[next] {
				reachable[next] = true
				bfsQueue = append(bfsQueue, next)
			}
		}
	}

	for _, n := range wf.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the trigger and will never run", n.ID))
		}
	}

	return result
}
