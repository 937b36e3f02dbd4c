package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfydeps/pkg/models"
)

var testLayouts = Layouts{
	"CheckpointLoaderSimple": {"ckpt_name"},
	"LoraLoader":             {"lora_name", "strength_model", "strength_clip"},
}

const graphWorkflow = `{
  "last_node_id": 9,
  "nodes": [
    {"id": 4, "type": "CheckpointLoaderSimple", "mode": 0, "inputs": [],
     "widgets_values": ["model.safetensors"]},
    {"id": 10, "type": "LoraLoader", "mode": 4,
     "inputs": [{"name": "model", "type": "MODEL", "link": 1},
                {"name": "clip", "type": "CLIP", "link": null}],
     "widgets_values": ["detail.safetensors", 0.8, 1.0]},
    {"id": 11, "type": "VHS_VideoCombine", "mode": 2,
     "widgets_values": {"frame_rate": 8, "filename_prefix": "out"}},
    {"id": 12, "type": "2f1c6a0e-subgraph", "mode": 0}
  ],
  "links": [[1, 4, 0, 10, 0, "MODEL"], null],
  "definitions": {
    "subgraphs": [
      {"id": "2f1c6a0e-subgraph",
       "nodes": [{"id": 1, "type": "UpscaleModelLoader", "widgets_values": ["4x.pth"]}],
       "links": [{"id": 7, "origin_id": 1, "origin_slot": 0, "target_id": 2, "target_slot": 0}]}
    ]
  }
}`

func TestParseGraphShape(t *testing.T) {
	wf, err := Parse([]byte(graphWorkflow), testLayouts)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowFormatGraph, wf.Format)
	require.Len(t, wf.Nodes, 4)

	ckpt := wf.Nodes[0]
	assert.Equal(t, "4", ckpt.ID)
	assert.Equal(t, "CheckpointLoaderSimple", ckpt.Type)
	assert.Equal(t, models.NodeModeNormal, ckpt.Mode)
	v, ok := ckpt.Input("ckpt_name")
	assert.True(t, ok)
	assert.Equal(t, "model.safetensors", v)

	lora := wf.Nodes[1]
	assert.Equal(t, models.NodeModeBypassed, lora.Mode)
	assert.Equal(t, "detail.safetensors", lora.Inputs["lora_name"])
	assert.Equal(t, []interface{}{"4", int64(0)}, lora.Inputs["model"])
	_, ok = lora.Input("model")
	assert.False(t, ok, "links are not literal values")
	_, ok = lora.Inputs["clip"]
	assert.False(t, ok, "unlinked inputs are absent")

	video := wf.Nodes[2]
	assert.Equal(t, models.NodeModeMuted, video.Mode)
	assert.Equal(t, "out", video.Inputs["filename_prefix"])

	inner := wf.Nodes[3]
	assert.Equal(t, "2f1c6a0e-subgraph:1", inner.ID)
	assert.Equal(t, "UpscaleModelLoader", inner.Type)
	assert.Empty(t, inner.Inputs, "no layout means no named widgets")
}

func TestParseExecutionShapeKeepsDocumentOrder(t *testing.T) {
	data := `{
	  "9": {"class_type": "SaveImage", "inputs": {"images": ["8", 0]}},
	  "4": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "model.safetensors"}},
	  "_meta": {"note": "ignored"},
	  "10": {"class_type": "LoraLoader", "inputs": {"lora_name": "a.safetensors", "model": ["4", 0]}}
	}`
	wf, err := Parse([]byte(data), nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowFormatExecution, wf.Format)

	var ids []string
	for _, n := range wf.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"9", "4", "10"}, ids)
	assert.Equal(t, "model.safetensors", wf.Nodes[1].Inputs["ckpt_name"])
	assert.True(t, models.IsLink(wf.Nodes[2].Inputs["model"]))
}

func TestParseExecutionWrappedInPrompt(t *testing.T) {
	data := `{"prompt": {"1": {"class_type": "KSampler", "inputs": {"scheduler": "karras"}}}, "client_id": "abc"}`
	wf, err := Parse([]byte(data), nil)
	require.NoError(t, err)
	require.Len(t, wf.Nodes, 1)
	assert.Equal(t, "KSampler", wf.Nodes[0].Type)
}

func TestParseEmptyWorkflow(t *testing.T) {
	wf, err := Parse([]byte(`{}`), nil)
	require.NoError(t, err)
	assert.Empty(t, wf.Nodes)

	wf, err = Parse([]byte(`{"nodes": [], "links": []}`), nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowFormatGraph, wf.Format)
	assert.Empty(t, wf.Nodes)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"nodes": [`},
		{"array document", `[1, 2, 3]`},
		{"no class types", `{"1": {"inputs": {}}, "2": "x"}`},
		{"bad link", `{"nodes": [], "links": [[1]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestLayoutsMerge(t *testing.T) {
	merged := testLayouts.Merge(Layouts{"KSampler": {"seed"}, "LoraLoader": {"lora_name"}})
	assert.Equal(t, []string{"seed"}, merged["KSampler"])
	assert.Equal(t, []string{"lora_name"}, merged["LoraLoader"])
	assert.Len(t, testLayouts["LoraLoader"], 3, "receiver is not modified")
}
