package shaders

import (
	_ "embed"

	"github.com/gekko3d/envmap/envrt/rt/core"
	"github.com/gekko3d/envmap/envrt/rt/wgsltypes"
)

// EnvMapUpdateEntryPoint is the compute entry point of the update kernel.
const EnvMapUpdateEntryPoint = "updateEnvironmentMap"

// Bindings of the update kernel, group 0.
const (
	BindingFrame      = 0
	BindingLookup     = 1
	BindingEnvMap     = 2
	BindingFrameInfo  = 3
	BindingPrevMap    = 4
	BindingConfidence = 5
)

//go:embed envmap_update.wgsl
var envMapUpdateBody string

//go:embed blit.wgsl
var BlitWGSL string

// FrameInfoStruct is the WGSL declaration of core.FrameInfo.
var FrameInfoStruct = wgsltypes.MustNewStruct[core.FrameInfo]("FrameInfo")

// EnvMapUpdateWGSL is the complete update kernel source.
var EnvMapUpdateWGSL = FrameInfoStruct.ToWGSL() + "\n" + envMapUpdateBody
