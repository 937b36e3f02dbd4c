// Package workflow converts both workflow serialization shapes into one
// list of models.WorkflowNode.
package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"comfydeps/pkg/models"
)

// ErrMalformed is returned when the document is not a workflow in either shape.
var ErrMalformed = errors.New("malformed workflow")

// Layouts maps a node type to its positional widget names, used to name the
// widgets_values of graph-shaped nodes.
type Layouts map[string][]string

// Merge returns a new Layouts holding l and every entry of others. Later
// entries win.
func (l Layouts) Merge(others ...Layouts) Layouts {
	out := make(Layouts, len(l))
	for k, v := range l {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// Workflow is a parsed workflow in normalized form.
type Workflow struct {
	Format models.WorkflowFormat
	Nodes  []models.WorkflowNode
}

// Parse detects the serialization shape of data and normalizes it.
func Parse(data []byte, layouts Layouts) (*Workflow, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw, ok := top["nodes"]; ok && isArray(raw) {
		nodes, err := ParseGraph(data, layouts)
		if err != nil {
			return nil, err
		}
		return &Workflow{Format: models.WorkflowFormatGraph, Nodes: nodes}, nil
	}
	if raw, ok := top["prompt"]; ok && isObject(raw) {
		data = raw
	}
	nodes, err := ParseExecution(data)
	if err != nil {
		return nil, err
	}
	return &Workflow{Format: models.WorkflowFormatExecution, Nodes: nodes}, nil
}

// executionNode is one entry of the id-keyed execution shape
type executionNode struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
}

// ParseExecution normalizes the id-keyed execution shape. Node order is the
// document order.
func ParseExecution(data []byte) ([]models.WorkflowNode, error) {
	doc := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	nodes := make([]models.WorkflowNode, 0, doc.Len())
	candidates := 0
	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		if strings.HasPrefix(pair.Key, "_") {
			continue
		}
		candidates++
		if !isObject(pair.Value) {
			continue
		}
		var n executionNode
		if err := json.Unmarshal(pair.Value, &n); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrMalformed, pair.Key, err)
		}
		if n.ClassType == "" {
			continue
		}
		nodes = append(nodes, models.WorkflowNode{
			ID:     pair.Key,
			Type:   n.ClassType,
			Inputs: n.Inputs,
			Mode:   models.NodeModeNormal,
		})
	}
	if len(nodes) == 0 && candidates > 0 {
		return nil, fmt.Errorf("%w: no nodes with class_type found", ErrMalformed)
	}
	return nodes, nil
}

// graphDocument is the editor shape of a workflow
type graphDocument struct {
	Nodes       []graphNode       `json:"nodes"`
	Links       []json.RawMessage `json:"links"`
	Definitions struct {
		Subgraphs []struct {
			ID    string            `json:"id"`
			Nodes []graphNode       `json:"nodes"`
			Links []json.RawMessage `json:"links"`
		} `json:"subgraphs"`
	} `json:"definitions"`
}

type graphNode struct {
	ID     json.RawMessage `json:"id"`
	Type   string          `json:"type"`
	Mode   int             `json:"mode"`
	Inputs []struct {
		Name string `json:"name"`
		Link *int64 `json:"link"`
	} `json:"inputs"`
	WidgetsValues json.RawMessage `json:"widgets_values"`
}

// graphLink is a decoded entry of a links table
type graphLink struct {
	OriginID   string
	OriginSlot int64
}

// ParseGraph normalizes the editor shape. Nodes nested in subgraph
// definitions are included; the container nodes that instantiate a subgraph
// are not, since their type is the subgraph id rather than a node type.
func ParseGraph(data []byte, layouts Layouts) ([]models.WorkflowNode, error) {
	var doc graphDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	subgraphIDs := make(map[string]bool, len(doc.Definitions.Subgraphs))
	for _, sg := range doc.Definitions.Subgraphs {
		subgraphIDs[sg.ID] = true
	}

	links, err := decodeLinks(doc.Links)
	if err != nil {
		return nil, err
	}
	nodes, err := convertGraphNodes(doc.Nodes, links, layouts, subgraphIDs, "")
	if err != nil {
		return nil, err
	}
	for _, sg := range doc.Definitions.Subgraphs {
		sgLinks, err := decodeLinks(sg.Links)
		if err != nil {
			return nil, err
		}
		inner, err := convertGraphNodes(sg.Nodes, sgLinks, layouts, subgraphIDs, sg.ID+":")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, inner...)
	}
	return nodes, nil
}

func convertGraphNodes(src []graphNode, links map[int64]graphLink, layouts Layouts, subgraphIDs map[string]bool, idPrefix string) ([]models.WorkflowNode, error) {
	out := make([]models.WorkflowNode, 0, len(src))
	for _, gn := range src {
		if subgraphIDs[gn.Type] {
			continue
		}
		id, err := nodeID(gn.ID)
		if err != nil {
			return nil, err
		}
		inputs, err := widgetInputs(gn.WidgetsValues, layouts[gn.Type])
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrMalformed, id, err)
		}
		for _, in := range gn.Inputs {
			if in.Link == nil {
				continue
			}
			l, ok := links[*in.Link]
			if !ok {
				continue
			}
			inputs[in.Name] = []interface{}{idPrefix + l.OriginID, l.OriginSlot}
		}
		out = append(out, models.WorkflowNode{
			ID:     idPrefix + id,
			Type:   gn.Type,
			Inputs: inputs,
			Mode:   graphMode(gn.Mode),
		})
	}
	return out, nil
}

// widgetInputs names positional widget values through layout. Object-valued
// widgets_values already carry their names.
func widgetInputs(raw json.RawMessage, layout []string) (map[string]interface{}, error) {
	inputs := make(map[string]interface{})
	if len(raw) == 0 || string(raw) == "null" {
		return inputs, nil
	}
	if isObject(raw) {
		if err := json.Unmarshal(raw, &inputs); err != nil {
			return nil, err
		}
		return inputs, nil
	}
	var values []interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	for i, name := range layout {
		if name == "" || i >= len(values) {
			continue
		}
		inputs[name] = values[i]
	}
	return inputs, nil
}

// decodeLinks accepts both the positional array form
// [id, origin_id, origin_slot, target_id, target_slot, type] and the object
// form used inside subgraph definitions.
func decodeLinks(raw []json.RawMessage) (map[int64]graphLink, error) {
	links := make(map[int64]graphLink, len(raw))
	for _, r := range raw {
		if string(bytes.TrimSpace(r)) == "null" {
			continue
		}
		if isObject(r) {
			var obj struct {
				ID         int64           `json:"id"`
				OriginID   json.RawMessage `json:"origin_id"`
				OriginSlot int64           `json:"origin_slot"`
			}
			if err := json.Unmarshal(r, &obj); err != nil {
				return nil, fmt.Errorf("%w: link: %v", ErrMalformed, err)
			}
			origin, err := nodeID(obj.OriginID)
			if err != nil {
				return nil, err
			}
			links[obj.ID] = graphLink{OriginID: origin, OriginSlot: obj.OriginSlot}
			continue
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(r, &arr); err != nil || len(arr) < 3 {
			return nil, fmt.Errorf("%w: link %s", ErrMalformed, string(r))
		}
		var id, slot int64
		if err := json.Unmarshal(arr[0], &id); err != nil {
			return nil, fmt.Errorf("%w: link id: %v", ErrMalformed, err)
		}
		origin, err := nodeID(arr[1])
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(arr[2], &slot); err != nil {
			return nil, fmt.Errorf("%w: link slot: %v", ErrMalformed, err)
		}
		links[id] = graphLink{OriginID: origin, OriginSlot: slot}
	}
	return links, nil
}

// nodeID renders a numeric or string node id as a string
func nodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: node without id", ErrMalformed)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: node id: %v", ErrMalformed, err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: node id: %v", ErrMalformed, err)
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

func graphMode(mode int) models.NodeMode {
	switch mode {
	case 2:
		return models.NodeModeMuted
	case 4:
		return models.NodeModeBypassed
	default:
		return models.NodeModeNormal
	}
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
