package models

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// LoaderInput declares one file-bearing input of a loader node type
type LoaderInput struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// LoaderSpec describes which inputs of a node type reference external files.
// Widgets is the positional widget order of the node in graph-shaped
// workflows, used to name its widgets_values.
type LoaderSpec struct {
	NodeType string        `json:"node_type" yaml:"node_type"`
	Inputs   []LoaderInput `json:"inputs" yaml:"inputs"`
	Widgets  []string      `json:"widgets,omitempty" yaml:"widgets"`
}

// FileReference is one external file referenced by a workflow
type FileReference struct {
	Name string `json:"name"`
	Hash Hash   `json:"hash,omitempty"`
	URL  string `json:"url,omitempty"`
}

// CustomNodeDependency is a third-party package required by a workflow
type CustomNodeDependency struct {
	URL         string         `json:"url"`
	Name        string         `json:"name"`
	Hash        Hash           `json:"hash,omitempty"`
	Files       []string       `json:"files,omitempty"`
	InstallType string         `json:"install_type,omitempty"`
	Pip         []string       `json:"pip,omitempty"`
	Warning     string         `json:"warning,omitempty"`
	Nodes       []WorkflowNode `json:"nodes,omitempty"`
}

// CustomNodeMap maps source URL to dependency, preserving insertion order
type CustomNodeMap struct {
	m *orderedmap.OrderedMap[string, *CustomNodeDependency]
}

// NewCustomNodeMap creates an empty CustomNodeMap.
func NewCustomNodeMap() *CustomNodeMap {
	return &CustomNodeMap{m: orderedmap.New[string, *CustomNodeDependency]()}
}

func (c *CustomNodeMap) init() {
	if c.m == nil {
		c.m = orderedmap.New[string, *CustomNodeDependency]()
	}
}

// Get returns the dependency registered for url.
func (c *CustomNodeMap) Get(url string) (*CustomNodeDependency, bool) {
	if c == nil || c.m == nil {
		return nil, false
	}
	return c.m.Get(url)
}

// Set registers dep under url. Re-setting an existing url keeps its position.
func (c *CustomNodeMap) Set(url string, dep *CustomNodeDependency) {
	c.init()
	c.m.Set(url, dep)
}

// Delete removes url and returns the removed dependency, if any.
func (c *CustomNodeMap) Delete(url string) (*CustomNodeDependency, bool) {
	if c == nil || c.m == nil {
		return nil, false
	}
	return c.m.Delete(url)
}

// Len returns the number of dependencies.
func (c *CustomNodeMap) Len() int {
	if c == nil || c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Keys returns the source URLs in insertion order.
func (c *CustomNodeMap) Keys() []string {
	keys := make([]string, 0, c.Len())
	if c.Len() == 0 {
		return keys
	}
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Values returns the dependencies in insertion order.
func (c *CustomNodeMap) Values() []*CustomNodeDependency {
	values := make([]*CustomNodeDependency, 0, c.Len())
	if c.Len() == 0 {
		return values
	}
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		values = append(values, pair.Value)
	}
	return values
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (c *CustomNodeMap) MarshalJSON() ([]byte, error) {
	if c == nil || c.m == nil {
		return []byte("{}"), nil
	}
	return c.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
func (c *CustomNodeMap) UnmarshalJSON(data []byte) error {
	c.m = orderedmap.New[string, *CustomNodeDependency]()
	return json.Unmarshal(data, c.m)
}

// PinnedNode is a snapshot pin for one source URL
type PinnedNode struct {
	Hash     Hash `json:"hash"`
	Disabled bool `json:"disabled"`
}

// Snapshot is a caller-supplied record of previously pinned revisions. The
// JSON layout follows the extension manager's snapshot files.
type Snapshot struct {
	RuntimeVersion Hash                  `json:"comfyui"`
	PinnedNodes    map[string]PinnedNode `json:"git_custom_nodes"`
}

// Pin returns the pinned hash for key, which may be a URL or a bare
// repository name.
func (s *Snapshot) Pin(key string) (Hash, bool) {
	if s == nil {
		return "", false
	}
	pin, ok := s.PinnedNodes[key]
	if !ok || pin.Hash == "" {
		return "", false
	}
	return pin.Hash, true
}

// DependencyGraph is everything needed to reproduce a workflow's environment
type DependencyGraph struct {
	RuntimeRevision Hash                             `json:"comfyui_hash,omitempty"`
	CustomNodes     *CustomNodeMap                   `json:"custom_nodes"`
	MissingNodes    []string                         `json:"missing_nodes"`
	Conflicts       map[string][]string              `json:"conflicting_nodes,omitempty"`
	Suggestions     map[string][]PackageCatalogEntry `json:"suggestions,omitempty"`
	Models          map[string][]FileReference       `json:"models"`
	Files           map[string][]FileReference       `json:"files"`
}
