package models

// NodeMode represents the execution mode of a workflow node
type NodeMode string

const (
	NodeModeNormal   NodeMode = "normal"
	NodeModeMuted    NodeMode = "muted"
	NodeModeBypassed NodeMode = "bypassed"
)

// WorkflowFormat identifies which serialization shape a workflow arrived in
type WorkflowFormat string

const (
	// WorkflowFormatGraph is the editor shape: an array of nodes with a
	// separate positional links table.
	WorkflowFormatGraph WorkflowFormat = "graph"
	// WorkflowFormatExecution is the id-keyed {class_type, inputs} mapping.
	WorkflowFormatExecution WorkflowFormat = "execution"
)

// WorkflowNode is the shape-independent view of a single workflow node.
// Type is the registry join key and is never rewritten after parsing.
type WorkflowNode struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Inputs map[string]interface{} `json:"inputs,omitempty"`
	Mode   NodeMode               `json:"mode"`
}

// Input returns the literal value of an input. Links and absent inputs are
// reported as not present.
func (n WorkflowNode) Input(name string) (interface{}, bool) {
	v, ok := n.Inputs[name]
	if !ok || v == nil || IsLink(v) {
		return nil, false
	}
	return v, true
}

// IsLink reports whether an input value references another node's output.
// Links are encoded as [originID, originSlot].
func IsLink(v interface{}) bool {
	switch v.(type) {
	case []interface{}, []string, []int:
		return true
	}
	return false
}
