// Package loaders holds the static tables of node types whose inputs
// reference external files.
package loaders

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"comfydeps/internal/workflow"
	"comfydeps/pkg/models"
)

// Table is a tagged lookup table of loader specs sharing one root folder.
type Table struct {
	// Root is the fixed folder every logical path starts with.
	Root string
	// IncludeCategory inserts the file category between Root and the name.
	IncludeCategory bool
	Specs           map[string]models.LoaderSpec
}

// Lookup returns the spec for nodeType.
func (t Table) Lookup(nodeType string) (models.LoaderSpec, bool) {
	spec, ok := t.Specs[nodeType]
	return spec, ok
}

// Path builds the logical path of a referenced file.
func (t Table) Path(category, name string) string {
	if t.IncludeCategory {
		return path.Join(t.Root, category, name)
	}
	return path.Join(t.Root, name)
}

// Layouts returns the graph-shape widget order of every spec that has one.
func (t Table) Layouts() workflow.Layouts {
	out := make(workflow.Layouts, len(t.Specs))
	for nodeType, spec := range t.Specs {
		if len(spec.Widgets) > 0 {
			out[nodeType] = spec.Widgets
		}
	}
	return out
}

// With returns a copy of t with specs added or replaced.
func (t Table) With(specs ...models.LoaderSpec) Table {
	out := Table{Root: t.Root, IncludeCategory: t.IncludeCategory, Specs: make(map[string]models.LoaderSpec, len(t.Specs)+len(specs))}
	for k, v := range t.Specs {
		out.Specs[k] = v
	}
	for _, s := range specs {
		out.Specs[s.NodeType] = s
	}
	return out
}

func table(root string, includeCategory bool, specs ...models.LoaderSpec) Table {
	t := Table{Root: root, IncludeCategory: includeCategory}
	return t.With(specs...)
}

func single(nodeType, input, category string, widgets ...string) models.LoaderSpec {
	if len(widgets) == 0 {
		widgets = []string{input}
	}
	return models.LoaderSpec{
		NodeType: nodeType,
		Inputs:   []models.LoaderInput{{Name: input, Category: category}},
		Widgets:  widgets,
	}
}

// Models lists the builtin model loaders. Files resolve under
// models/<category>/<name>.
var Models = table("models", true,
	single("CheckpointLoaderSimple", "ckpt_name", models.CategoryCheckpoints),
	single("ImageOnlyCheckpointLoader", "ckpt_name", models.CategoryCheckpoints),
	single("unCLIPCheckpointLoader", "ckpt_name", models.CategoryCheckpoints),
	models.LoaderSpec{
		NodeType: "CheckpointLoader",
		Inputs: []models.LoaderInput{
			{Name: "config_name", Category: models.CategoryConfigs},
			{Name: "ckpt_name", Category: models.CategoryCheckpoints},
		},
		Widgets: []string{"config_name", "ckpt_name"},
	},
	single("LoraLoader", "lora_name", models.CategoryLoras, "lora_name", "strength_model", "strength_clip"),
	single("LoraLoaderModelOnly", "lora_name", models.CategoryLoras, "lora_name", "strength_model"),
	single("VAELoader", "vae_name", models.CategoryVAE),
	single("CLIPLoader", "clip_name", models.CategoryCLIP, "clip_name", "type"),
	models.LoaderSpec{
		NodeType: "DualCLIPLoader",
		Inputs: []models.LoaderInput{
			{Name: "clip_name1", Category: models.CategoryCLIP},
			{Name: "clip_name2", Category: models.CategoryCLIP},
		},
		Widgets: []string{"clip_name1", "clip_name2", "type"},
	},
	models.LoaderSpec{
		NodeType: "TripleCLIPLoader",
		Inputs: []models.LoaderInput{
			{Name: "clip_name1", Category: models.CategoryCLIP},
			{Name: "clip_name2", Category: models.CategoryCLIP},
			{Name: "clip_name3", Category: models.CategoryCLIP},
		},
		Widgets: []string{"clip_name1", "clip_name2", "clip_name3"},
	},
	single("UNETLoader", "unet_name", models.CategoryUNet, "unet_name", "weight_dtype"),
	single("ControlNetLoader", "control_net_name", models.CategoryControlNet),
	single("DiffControlNetLoader", "control_net_name", models.CategoryControlNet),
	single("UpscaleModelLoader", "model_name", models.CategoryUpscaleModels),
	single("CLIPVisionLoader", "clip_name", models.CategoryCLIPVision),
	single("StyleModelLoader", "style_model_name", models.CategoryStyleModels),
	single("GLIGENLoader", "gligen_name", models.CategoryGLIGEN),
	single("HypernetworkLoader", "hypernetwork_name", models.CategoryHypernetworks, "hypernetwork_name", "strength"),
	single("PhotoMakerLoader", "photomaker_model_name", models.CategoryPhotoMaker),
)

// Inputs lists the builtin loaders of user-supplied input files. Files
// resolve under input/<name>.
var Inputs = table("input", false,
	single("LoadImage", "image", models.CategoryImages, "image", "upload"),
	single("LoadImageMask", "image", models.CategoryImages, "image", "channel", "upload"),
	single("LoadImageOutput", "image", models.CategoryImages, "image", "refresh", "upload"),
	single("LoadAudio", "audio", models.CategoryAudio, "audio", "upload"),
	single("LoadVideo", "file", models.CategoryVideo, "file", "upload"),
)

// Overlay is the on-disk format for extra loader specs.
type Overlay struct {
	Models []models.LoaderSpec `yaml:"models"`
	Inputs []models.LoaderSpec `yaml:"inputs"`
}

// LoadOverlay reads a YAML overlay file and returns Models and Inputs
// extended with its specs. An empty path returns the builtin tables.
func LoadOverlay(file string) (Table, Table, error) {
	if file == "" {
		return Models, Inputs, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return Table{}, Table{}, fmt.Errorf("failed to read loader overlay: %w", err)
	}
	return ParseOverlay(data)
}

// ParseOverlay decodes overlay YAML and applies it to the builtin tables.
func ParseOverlay(data []byte) (Table, Table, error) {
	var o Overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Table{}, Table{}, fmt.Errorf("failed to parse loader overlay: %w", err)
	}
	for _, spec := range append(append([]models.LoaderSpec{}, o.Models...), o.Inputs...) {
		if spec.NodeType == "" || len(spec.Inputs) == 0 {
			return Table{}, Table{}, fmt.Errorf("invalid loader overlay entry %q: node_type and inputs are required", spec.NodeType)
		}
		for _, in := range spec.Inputs {
			if in.Name == "" || in.Category == "" {
				return Table{}, Table{}, fmt.Errorf("invalid loader overlay entry %q: input needs name and category", spec.NodeType)
			}
		}
	}
	return Models.With(o.Models...), Inputs.With(o.Inputs...), nil
}
