// Package graph assembles the final dependency graph of a workflow.
package graph

import (
	"comfydeps/internal/nodes"
	"comfydeps/pkg/models"
)

// Assemble combines the custom-node result with the extracted files. The
// runtime's own entry is moved out of the custom nodes into RuntimeRevision,
// falling back to the snapshot's runtime pin when it has no hash.
func Assemble(result *nodes.Result, files, modelFiles map[string][]models.FileReference, snapshot *models.Snapshot) models.DependencyGraph {
	g := models.DependencyGraph{
		CustomNodes:  models.NewCustomNodeMap(),
		MissingNodes: []string{},
		Models:       nonNil(modelFiles),
		Files:        nonNil(files),
	}
	if result != nil {
		if result.CustomNodes != nil {
			g.CustomNodes = result.CustomNodes
		}
		if result.MissingNodes != nil {
			g.MissingNodes = result.MissingNodes
		}
		if len(result.Conflicts) > 0 {
			g.Conflicts = result.Conflicts
		}
		if len(result.Suggestions) > 0 {
			g.Suggestions = result.Suggestions
		}
	}

	if runtime, ok := g.CustomNodes.Delete(models.RuntimeURL); ok {
		g.RuntimeRevision = runtime.Hash
	}
	if g.RuntimeRevision == "" && snapshot != nil {
		g.RuntimeRevision = snapshot.RuntimeVersion
	}
	return g
}

func nonNil(m map[string][]models.FileReference) map[string][]models.FileReference {
	if m == nil {
		return map[string][]models.FileReference{}
	}
	return m
}
