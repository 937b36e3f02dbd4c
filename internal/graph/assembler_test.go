package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfydeps/internal/nodes"
	"comfydeps/pkg/models"
)

func result(deps ...*models.CustomNodeDependency) *nodes.Result {
	m := models.NewCustomNodeMap()
	for _, d := range deps {
		m.Set(d.URL, d)
	}
	return &nodes.Result{CustomNodes: m, MissingNodes: []string{}}
}

func TestAssembleExtractsRuntime(t *testing.T) {
	res := result(
		&models.CustomNodeDependency{URL: "https://github.com/org/pack", Name: "Org Pack", Hash: "abc123"},
		&models.CustomNodeDependency{URL: models.RuntimeURL, Name: "ComfyUI", Hash: "runtime-hash"},
	)
	g := Assemble(res, nil, nil, &models.Snapshot{RuntimeVersion: "snapshot-hash"})

	assert.Equal(t, "runtime-hash", g.RuntimeRevision)
	assert.Equal(t, []string{"https://github.com/org/pack"}, g.CustomNodes.Keys())
}

func TestAssembleRuntimeFallsBackToSnapshot(t *testing.T) {
	res := result(&models.CustomNodeDependency{URL: models.RuntimeURL, Name: "ComfyUI"})
	g := Assemble(res, nil, nil, &models.Snapshot{RuntimeVersion: "snapshot-hash"})
	assert.Equal(t, "snapshot-hash", g.RuntimeRevision)
	assert.Equal(t, 0, g.CustomNodes.Len())

	g = Assemble(result(), nil, nil, &models.Snapshot{RuntimeVersion: "snapshot-hash"})
	assert.Equal(t, "snapshot-hash", g.RuntimeRevision)

	g = Assemble(result(), nil, nil, nil)
	assert.Empty(t, g.RuntimeRevision)
}

func TestAssembleCarriesEverythingElse(t *testing.T) {
	res := result(&models.CustomNodeDependency{URL: "https://github.com/org/pack", Name: "Org Pack"})
	res.MissingNodes = []string{"Ghost"}
	res.Conflicts = map[string][]string{"Shared": {"A", "B"}}
	modelFiles := map[string][]models.FileReference{models.CategoryCheckpoints: {{Name: "model.safetensors", Hash: "h"}}}
	inputFiles := map[string][]models.FileReference{models.CategoryImages: {{Name: "cat.png"}}}

	g := Assemble(res, inputFiles, modelFiles, nil)
	assert.Equal(t, []string{"Ghost"}, g.MissingNodes)
	assert.Equal(t, res.Conflicts, g.Conflicts)
	assert.Nil(t, g.Suggestions)
	assert.Equal(t, modelFiles, g.Models)
	assert.Equal(t, inputFiles, g.Files)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{
	  "custom_nodes": {"https://github.com/org/pack": {"url": "https://github.com/org/pack", "name": "Org Pack"}},
	  "missing_nodes": ["Ghost"],
	  "conflicting_nodes": {"Shared": ["A", "B"]},
	  "models": {"checkpoints": [{"name": "model.safetensors", "hash": "h"}]},
	  "files": {"images": [{"name": "cat.png"}]}
	}`, string(data))
}

func TestAssembleEmpty(t *testing.T) {
	g := Assemble(nil, nil, nil, nil)
	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"custom_nodes": {}, "missing_nodes": [], "models": {}, "files": {}}`, string(data))
}
