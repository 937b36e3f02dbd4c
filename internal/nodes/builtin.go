package nodes

// builtinNodes are node types shipped with the runtime itself. A builtin that
// no extension claims is still satisfied by the runtime and never reported
// missing.
var builtinNodes = toSet(
	// sampling
	"KSampler", "KSamplerAdvanced", "SamplerCustom", "SamplerCustomAdvanced",
	"KSamplerSelect", "BasicScheduler", "KarrasScheduler", "ExponentialScheduler",
	"PolyexponentialScheduler", "SDTurboScheduler", "BetaSamplingScheduler",
	"AlignYourStepsScheduler", "SplitSigmas", "SplitSigmasDenoise", "FlipSigmas",
	"RandomNoise", "DisableNoise", "BasicGuider", "CFGGuider", "DualCFGGuider",
	"SamplerEulerAncestral", "SamplerDPMPP_2M_SDE", "SamplerDPMPP_SDE", "SamplerLMS",
	// loaders
	"CheckpointLoaderSimple", "CheckpointLoader", "ImageOnlyCheckpointLoader",
	"unCLIPCheckpointLoader", "LoraLoader", "LoraLoaderModelOnly", "VAELoader",
	"CLIPLoader", "DualCLIPLoader", "TripleCLIPLoader", "UNETLoader",
	"ControlNetLoader", "DiffControlNetLoader", "UpscaleModelLoader",
	"CLIPVisionLoader", "StyleModelLoader", "GLIGENLoader", "HypernetworkLoader",
	"PhotoMakerLoader", "LoadImage", "LoadImageMask", "LoadImageOutput",
	"LoadAudio", "LoadVideo", "LoadLatent",
	// conditioning
	"CLIPTextEncode", "CLIPTextEncodeSDXL", "CLIPTextEncodeSDXLRefiner",
	"CLIPTextEncodeFlux", "CLIPTextEncodeSD3", "CLIPSetLastLayer",
	"ConditioningCombine", "ConditioningAverage", "ConditioningConcat",
	"ConditioningSetArea", "ConditioningSetAreaPercentage", "ConditioningSetMask",
	"ConditioningSetTimestepRange", "ConditioningZeroOut", "ControlNetApply",
	"ControlNetApplyAdvanced", "ControlNetApplySD3", "CLIPVisionEncode",
	"StyleModelApply", "unCLIPConditioning", "GLIGENTextBoxApply",
	"InstructPixToPixConditioning", "FluxGuidance", "PhotoMakerEncode",
	// latent
	"EmptyLatentImage", "EmptySD3LatentImage", "EmptyHunyuanLatentVideo",
	"VAEDecode", "VAEEncode", "VAEDecodeTiled", "VAEEncodeTiled",
	"VAEEncodeForInpaint", "SetLatentNoiseMask", "LatentUpscale",
	"LatentUpscaleBy", "LatentComposite", "LatentBlend", "LatentCrop",
	"LatentFromBatch", "RepeatLatentBatch", "LatentRotate", "LatentFlip",
	"InpaintModelConditioning", "SaveLatent",
	// image
	"SaveImage", "PreviewImage", "SaveAnimatedWEBP", "SaveAnimatedPNG",
	"ImageScale", "ImageScaleBy", "ImageScaleToTotalPixels", "ImageUpscaleWithModel",
	"ImageInvert", "ImageBatch", "ImagePadForOutpaint", "ImageCrop",
	"ImageBlend", "ImageBlur", "ImageSharpen", "ImageQuantize",
	"ImageCompositeMasked", "EmptyImage", "RepeatImageBatch", "ImageFromBatch",
	"SaveVideo", "CreateVideo", "GetVideoComponents", "SaveAudio", "PreviewAudio",
	// mask
	"MaskToImage", "ImageToMask", "SolidMask", "InvertMask", "CropMask",
	"MaskComposite", "FeatherMask", "GrowMask", "ThresholdMask", "ImageColorToMask",
	// model patches
	"ModelSamplingDiscrete", "ModelSamplingContinuousEDM", "ModelSamplingSD3",
	"ModelSamplingFlux", "ModelSamplingAuraFlow", "ModelMergeSimple",
	"ModelMergeBlocks", "ModelMergeAdd", "ModelMergeSubtract", "CLIPMergeSimple",
	"CheckpointSave", "FreeU", "FreeU_V2", "HyperTile", "PatchModelAddDownscale",
	"RescaleCFG", "PerturbedAttentionGuidance", "SelfAttentionGuidance",
	"TomePatchModel", "DifferentialDiffusion",
	// utilities
	"Note", "MarkdownNote", "Reroute", "PrimitiveNode", "PrimitiveString",
	"PrimitiveInt", "PrimitiveFloat", "PrimitiveBoolean", "StringConcatenate",
)

// IsBuiltin reports whether nodeType ships with the runtime.
func IsBuiltin(nodeType string) bool {
	_, ok := builtinNodes[nodeType]
	return ok
}

func toSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
