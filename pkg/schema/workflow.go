package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Workflow is the JSON-serializable workflow graph authored in the designer.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Schedule    string    `json:"schedule,omitempty"` // 5-field cron expression, empty = unscheduled
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Node is a single vertex in the workflow graph.
type Node struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Subtype  NodeSubtype     `json:"subtype"`
	Position Position        `json:"position,omitempty"` // cosmetic, ignored by the engine
	Data     json.RawMessage `json:"data,omitempty"`     // subtype-specific config, validated at save
}

// Position is the designer canvas coordinate of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed control-flow dependency between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// NodeType enumerates the three node families.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeAction  NodeType = "action"
	NodeTypeLogic   NodeType = "logic"
)

// NodeSubtype refines a NodeType into a concrete behavior.
type NodeSubtype string

const (
	// Trigger subtypes.
	SubtypeSchedule NodeSubtype = "schedule"
	SubtypeWebhook  NodeSubtype = "webhook"
	SubtypeManual   NodeSubtype = "manual"

	// Action subtype.
	SubtypePlugin NodeSubtype = "plugin"

	// Logic subtypes.
	SubtypeDelay     NodeSubtype = "delay"
	SubtypeCondition NodeSubtype = "condition"
	SubtypeTransform NodeSubtype = "transform"
)

// Subtypes lists the valid subtypes for each node type.
var Subtypes = map[NodeType][]NodeSubtype{
	NodeTypeTrigger: {SubtypeSchedule, SubtypeWebhook, SubtypeManual},
	NodeTypeAction:  {SubtypePlugin},
	NodeTypeLogic:   {SubtypeDelay, SubtypeCondition, SubtypeTransform},
}

// ActionData is the config block for action/plugin nodes. Endpoint and method
// are looked up in the plugin catalog at execution time.
type ActionData struct {
	Plugin     string         `json:"plugin"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// DelayData is the config block for logic/delay nodes.
type DelayData struct {
	Delay float64 `json:"delay"` // seconds
}

// ConditionData is the config block for logic/condition nodes.
// Left and Right may contain {{node_id.field}} references.
type ConditionData struct {
	Left     string            `json:"left"`
	Operator ConditionOperator `json:"operator"`
	Right    string            `json:"right"`
}

// ConditionOperator enumerates the supported comparison operators.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpContains    ConditionOperator = "contains"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
)

// TransformData is the config block for logic/transform nodes. The expression
// runs in a restricted interpreter with `input` and `context` bound.
type TransformData struct {
	Language   TransformLanguage `json:"language,omitempty"` // default: expr
	Expression string            `json:"expression"`
}

// TransformLanguage selects the sandboxed expression engine.
type TransformLanguage string

const (
	LangExpr TransformLanguage = "expr"
	LangJQ   TransformLanguage = "jq"
	LangCEL  TransformLanguage = "cel"
)

// TriggerType records how an execution was started.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
)

// ExecutionStatus is the run state machine: pending → running → {completed, failed}.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ActionData decodes the node's plugin action config.
func (n *Node) ActionData() (*ActionData, error) {
	var d ActionData
	if err := decodeNodeData(n, &d); err != nil {
		return nil, err
	}
	if d.Plugin == "" || d.Action == "" {
		return nil, fmt.Errorf("plugin node requires plugin and action")
	}
	return &d, nil
}

// DelayData decodes the node's delay config.
func (n *Node) DelayData() (*DelayData, error) {
	var d DelayData
	if err := decodeNodeData(n, &d); err != nil {
		return nil, err
	}
	if d.Delay <= 0 {
		return nil, fmt.Errorf("delay must be a positive number of seconds")
	}
	return &d, nil
}

// ConditionData decodes the node's condition config.
func (n *Node) ConditionData() (*ConditionData, error) {
	var d ConditionData
	if err := decodeNodeData(n, &d); err != nil {
		return nil, err
	}
	switch d.Operator {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
	default:
		return nil, fmt.Errorf("unknown condition operator %q", d.Operator)
	}
	return &d, nil
}

// TransformData decodes the node's transform config. An empty language
// defaults to expr.
func (n *Node) TransformData() (*TransformData, error) {
	var d TransformData
	if err := decodeNodeData(n, &d); err != nil {
		return nil, err
	}
	if d.Expression == "" {
		return nil, fmt.Errorf("transform node requires an expression")
	}
	if d.Language == "" {
		d.Language = LangExpr
	}
	switch d.Language {
	case LangExpr, LangJQ, LangCEL:
	default:
		return nil, fmt.Errorf("unknown transform language %q", d.Language)
	}
	return &d, nil
}

func decodeNodeData(n *Node, dst any) error {
	if len(n.Data) == 0 {
		return fmt.Errorf("%s node requires a data payload", n.Subtype)
	}
	if err := json.Unmarshal(n.Data, dst); err != nil {
		return fmt.Errorf("malformed %s data: %w", n.Subtype, err)
	}
	return nil
}

// TriggerNode returns the workflow's trigger node, or nil if absent.
// Validation guarantees exactly one for persisted workflows.
func (w *Workflow) TriggerNode() *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Type == NodeTypeTrigger {
			return &w.Nodes[i]
		}
	}
	return nil
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdge returns the single outgoing edge of a node, or nil when the
// node is a sink. Validation rejects fan-out, so first match wins.
func (w *Workflow) OutgoingEdge(nodeID string) *Edge {
	for i := range w.Edges {
		if w.Edges[i].Source == nodeID {
			return &w.Edges[i]
		}
	}
	return nil
}

// WebhookNode returns the webhook trigger node with the given id, or nil.
func (w *Workflow) WebhookNode(nodeID string) *Node {
	n := w.NodeByID(nodeID)
	if n == nil || n.Type != NodeTypeTrigger || n.Subtype != SubtypeWebhook {
		return nil
	}
	return n
}
