// Package models defines the domain models for the workflow dependency resolver
package models

import (
	"time"
)

// Hash is a content hash or a pinned source revision (commit SHA)
type Hash = string

// RuntimeURL is the canonical source URL of the workflow runtime itself.
// Its revision is reported as DependencyGraph.RuntimeRevision and never as a
// custom node.
const RuntimeURL = "https://github.com/comfyanonymous/ComfyUI"

// Category names used by the built-in loader tables
const (
	CategoryCheckpoints     = "checkpoints"
	CategoryConfigs         = "configs"
	CategoryLoras           = "loras"
	CategoryVAE             = "vae"
	CategoryCLIP            = "clip"
	CategoryUNet            = "unet"
	CategoryControlNet      = "controlnet"
	CategoryUpscaleModels   = "upscale_models"
	CategoryCLIPVision      = "clip_vision"
	CategoryStyleModels     = "style_models"
	CategoryGLIGEN          = "gligen"
	CategoryHypernetworks   = "hypernetworks"
	CategoryEmbeddings      = "embeddings"
	CategoryPhotoMaker      = "photomaker"
	CategoryImages          = "images"
	CategoryAudio           = "audio"
	CategoryVideo           = "video"
	CategoryDiffusionModels = "diffusion_models"
)

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
