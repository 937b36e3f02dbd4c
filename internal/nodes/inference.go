package nodes

import (
	"comfydeps/internal/workflow"
	"comfydeps/pkg/models"
)

// InferredWarning marks dependencies derived from input values rather than
// from a node type.
const InferredWarning = "Inferred from scheduler value"

// SamplerLayouts names the widgets of the sampler nodes in graph-shaped
// workflows so their scheduler value can be inspected.
var SamplerLayouts = workflow.Layouts{
	"KSampler": {"seed", "control_after_generate", "steps", "cfg", "sampler_name", "scheduler", "denoise"},
	"KSamplerAdvanced": {"add_noise", "noise_seed", "control_after_generate", "steps", "cfg",
		"sampler_name", "scheduler", "start_at_step", "end_at_step", "return_with_leftover_noise"},
}

var coreSchedulers = toSet(
	"simple", "sgm_uniform", "karras", "exponential", "ddim_uniform",
	"beta", "normal", "linear_quadratic", "kl_optimal",
)

type injectedPackage struct {
	url  string
	name string
}

// schedulerPackages maps scheduler values that only third-party packages
// register on the builtin samplers.
var schedulerPackages = map[string]injectedPackage{
	"beta57": {url: "https://github.com/ClownsharkBatwing/RES4LYF", name: "RES4LYF"},
}

// inferFromSchedulers returns packages required by sampler scheduler values,
// in encounter order and without duplicates.
func inferFromSchedulers(nodes []models.WorkflowNode) []injectedPackage {
	var out []injectedPackage
	seen := make(map[string]struct{})
	for _, node := range nodes {
		if node.Type != "KSampler" && node.Type != "KSamplerAdvanced" {
			continue
		}
		v, ok := node.Input("scheduler")
		if !ok {
			continue
		}
		scheduler, ok := v.(string)
		if !ok || scheduler == "" {
			continue
		}
		if _, core := coreSchedulers[scheduler]; core {
			continue
		}
		pkg, known := schedulerPackages[scheduler]
		if !known {
			continue
		}
		if _, dup := seen[pkg.url]; dup {
			continue
		}
		seen[pkg.url] = struct{}{}
		out = append(out, pkg)
	}
	return out
}
