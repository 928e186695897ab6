package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeActionData(t *testing.T) {
	n := &Node{ID: "a", Type: NodeTypeAction, Subtype: SubtypePlugin,
		Data: json.RawMessage(`{"plugin":"jira","action":"create-issue","parameters":{"summary":"hi"}}`)}

	d, err := n.ActionData()
	require.NoError(t, err)
	assert.Equal(t, "jira", d.Plugin)
	assert.Equal(t, "create-issue", d.Action)
	assert.Equal(t, "hi", d.Parameters["summary"])
}

func TestNodeActionData_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing data", ""},
		{"malformed", `{`},
		{"missing plugin", `{"action":"x"}`},
		{"missing action", `{"plugin":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &Node{ID: "a", Subtype: SubtypePlugin}
			if tt.data != "" {
				n.Data = json.RawMessage(tt.data)
			}
			_, err := n.ActionData()
			assert.Error(t, err)
		})
	}
}

func TestNodeDelayData(t *testing.T) {
	n := &Node{ID: "d", Subtype: SubtypeDelay, Data: json.RawMessage(`{"delay":2.5}`)}
	d, err := n.DelayData()
	require.NoError(t, err)
	assert.Equal(t, 2.5, d.Delay)

	n.Data = json.RawMessage(`{"delay":0}`)
	_, err = n.DelayData()
	assert.Error(t, err)

	n.Data = json.RawMessage(`{"delay":-1}`)
	_, err = n.DelayData()
	assert.Error(t, err)
}

func TestNodeConditionData(t *testing.T) {
	n := &Node{ID: "c", Subtype: SubtypeCondition,
		Data: json.RawMessage(`{"left":"{{fetch.count}}","operator":"greater_than","right":"5"}`)}
	d, err := n.ConditionData()
	require.NoError(t, err)
	assert.Equal(t, OpGreaterThan, d.Operator)

	n.Data = json.RawMessage(`{"left":"a","operator":"matches","right":"b"}`)
	_, err = n.ConditionData()
	assert.ErrorContains(t, err, "unknown condition operator")
}

func TestNodeTransformData(t *testing.T) {
	n := &Node{ID: "t", Subtype: SubtypeTransform,
		Data: json.RawMessage(`{"expression":"input.x + 1"}`)}
	d, err := n.TransformData()
	require.NoError(t, err)
	assert.Equal(t, LangExpr, d.Language, "language defaults to expr")

	n.Data = json.RawMessage(`{"language":"jq","expression":".input"}`)
	d, err = n.TransformData()
	require.NoError(t, err)
	assert.Equal(t, LangJQ, d.Language)

	n.Data = json.RawMessage(`{"language":"lua","expression":"x"}`)
	_, err = n.TransformData()
	assert.ErrorContains(t, err, "unknown transform language")

	n.Data = json.RawMessage(`{"language":"jq"}`)
	_, err = n.TransformData()
	assert.ErrorContains(t, err, "requires an expression")
}

func TestWorkflowTriggerNode(t *testing.T) {
	wf := &Workflow{Nodes: []Node{
		{ID: "send", Type: NodeTypeAction, Subtype: SubtypePlugin},
		{ID: "start", Type: NodeTypeTrigger, Subtype: SubtypeManual},
	}}
	trigger := wf.TriggerNode()
	require.NotNil(t, trigger)
	assert.Equal(t, "start", trigger.ID)

	empty := &Workflow{}
	assert.Nil(t, empty.TriggerNode())
}

func TestWorkflowOutgoingEdge(t *testing.T) {
	wf := &Workflow{Edges: []Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
	}}

	edge := wf.OutgoingEdge("a")
	require.NotNil(t, edge)
	assert.Equal(t, "b", edge.Target)

	assert.Nil(t, wf.OutgoingEdge("c"), "sink node has no outgoing edge")
}

func TestWorkflowWebhookNode(t *testing.T) {
	wf := &Workflow{Nodes: []Node{
		{ID: "hook", Type: NodeTypeTrigger, Subtype: SubtypeWebhook},
		{ID: "manual", Type: NodeTypeTrigger, Subtype: SubtypeManual},
		{ID: "send", Type: NodeTypeAction, Subtype: SubtypePlugin},
	}}

	assert.NotNil(t, wf.WebhookNode("hook"))
	assert.Nil(t, wf.WebhookNode("manual"), "non-webhook trigger does not match")
	assert.Nil(t, wf.WebhookNode("send"))
	assert.Nil(t, wf.WebhookNode("ghost"))
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
