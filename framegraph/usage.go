package framegraph

import vk "github.com/goki/vulkan"

// CommandRange is a half-open [Start, End) span of user-command indices
// within one frame. The frame-initial layout entry uses {-1, 0} as its
// sentinel range (spec §3 Layout-state entry).
type CommandRange struct {
	Start int
	End   int
}

// FrameInitialRange is the sentinel range for the "frame start" layout
// entry carried over (or defaulted) before any usage in the frame runs.
var FrameInitialRange = CommandRange{Start: -1, End: 0}

// Contains reports whether idx falls within [Start, End).
func (r CommandRange) Contains(idx int) bool { return idx >= r.Start && idx < r.End }

// Overlaps reports whether r and o share any command index.
func (r CommandRange) Overlaps(o CommandRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// UsageType is a closed enumeration of every way a pass can touch a
// resource. Per spec §9's "no virtual dispatch" design note, behaviour is
// an exhaustive switch on this tag rather than an interface with one
// implementation per usage kind.
type UsageType int

const (
	UsageRead UsageType = iota
	UsageWrite
	UsageReadWrite
	UsageConstantBuffer
	UsageVertexBuffer
	UsageIndexBuffer
	UsageIndirectBuffer
	UsageBlitSource
	UsageBlitDestination
	UsageBlitSynchronisation
	UsageSampler
	UsageInputAttachment
	UsageReadWriteRenderTarget
	UsageWriteOnlyRenderTarget
	UsageInputAttachmentRenderTarget
	UsageUnusedRenderTarget
	UsageUnusedArgumentBuffer
	UsageFrameStartLayoutTransitionCheck
)

// IsWrite reports whether the usage writes the resource.
func (u UsageType) IsWrite() bool {
	switch u {
	case UsageWrite, UsageReadWrite, UsageReadWriteRenderTarget, UsageWriteOnlyRenderTarget,
		UsageBlitDestination:
		return true
	default:
		return false
	}
}

// IsRead reports whether the usage reads the resource.
func (u UsageType) IsRead() bool {
	switch u {
	case UsageRead, UsageReadWrite, UsageConstantBuffer, UsageVertexBuffer, UsageIndexBuffer,
		UsageIndirectBuffer, UsageBlitSource, UsageBlitSynchronisation, UsageSampler,
		UsageInputAttachment, UsageReadWriteRenderTarget, UsageInputAttachmentRenderTarget:
		return true
	default:
		return false
	}
}

// IsRenderTarget reports whether the usage binds the resource as a render
// pass attachment (colour or depth/stencil), as opposed to a shader
// resource or a transfer endpoint.
func (u UsageType) IsRenderTarget() bool {
	switch u {
	case UsageReadWriteRenderTarget, UsageWriteOnlyRenderTarget, UsageInputAttachmentRenderTarget,
		UsageUnusedRenderTarget:
		return true
	default:
		return false
	}
}

// AccessMask returns the VkAccessFlagBits this usage contributes to a
// barrier/subpass-dependency; isDepthStencil selects between colour and
// depth/stencil attachment access for render-target usages.
func (u UsageType) AccessMask(isDepthStencil bool) vk.AccessFlagBits {
	switch u {
	case UsageRead, UsageSampler, UsageInputAttachment:
		return vk.AccessFlagBits(vk.AccessShaderReadBit)
	case UsageWrite:
		return vk.AccessFlagBits(vk.AccessShaderWriteBit)
	case UsageReadWrite:
		return vk.AccessFlagBits(vk.AccessShaderReadBit) | vk.AccessFlagBits(vk.AccessShaderWriteBit)
	case UsageConstantBuffer:
		return vk.AccessFlagBits(vk.AccessUniformReadBit)
	case UsageVertexBuffer:
		return vk.AccessFlagBits(vk.AccessVertexAttributeReadBit)
	case UsageIndexBuffer:
		return vk.AccessFlagBits(vk.AccessIndexReadBit)
	case UsageIndirectBuffer:
		return vk.AccessFlagBits(vk.AccessIndirectCommandReadBit)
	case UsageBlitSource, UsageBlitSynchronisation:
		return vk.AccessFlagBits(vk.AccessTransferReadBit)
	case UsageBlitDestination:
		return vk.AccessFlagBits(vk.AccessTransferWriteBit)
	case UsageReadWriteRenderTarget, UsageWriteOnlyRenderTarget:
		if isDepthStencil {
			return vk.AccessFlagBits(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlagBits(vk.AccessDepthStencilAttachmentWriteBit)
		}
		return vk.AccessFlagBits(vk.AccessColorAttachmentReadBit) | vk.AccessFlagBits(vk.AccessColorAttachmentWriteBit)
	case UsageInputAttachmentRenderTarget:
		return vk.AccessFlagBits(vk.AccessInputAttachmentReadBit)
	case UsageUnusedRenderTarget, UsageUnusedArgumentBuffer, UsageFrameStartLayoutTransitionCheck:
		return 0
	default:
		return 0
	}
}

// StageMask returns the VkPipelineStageFlagBits this usage executes in.
// stages carries the render-stage hint (vertex/fragment/compute) attached
// to the owning ResourceUsage, since usage-types like UsageRead don't by
// themselves determine a shader stage.
func (u UsageType) StageMask(isDepthStencil bool, stages vk.PipelineStageFlagBits) vk.PipelineStageFlagBits {
	switch u {
	case UsageRead, UsageWrite, UsageReadWrite, UsageConstantBuffer, UsageSampler, UsageInputAttachment:
		if stages != 0 {
			return stages
		}
		return vk.PipelineStageFlagBits(vk.PipelineStageFragmentShaderBit)
	case UsageVertexBuffer, UsageIndexBuffer:
		return vk.PipelineStageFlagBits(vk.PipelineStageVertexInputBit)
	case UsageIndirectBuffer:
		return vk.PipelineStageFlagBits(vk.PipelineStageDrawIndirectBit)
	case UsageBlitSource, UsageBlitDestination, UsageBlitSynchronisation:
		return vk.PipelineStageFlagBits(vk.PipelineStageTransferBit)
	case UsageReadWriteRenderTarget, UsageWriteOnlyRenderTarget:
		if isDepthStencil {
			return vk.PipelineStageFlagBits(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlagBits(vk.PipelineStageLateFragmentTestsBit)
		}
		return vk.PipelineStageFlagBits(vk.PipelineStageColorAttachmentOutputBit)
	case UsageInputAttachmentRenderTarget:
		return vk.PipelineStageFlagBits(vk.PipelineStageFragmentShaderBit)
	case UsageUnusedRenderTarget, UsageUnusedArgumentBuffer, UsageFrameStartLayoutTransitionCheck:
		return vk.PipelineStageFlagBits(vk.PipelineStageTopOfPipeBit)
	default:
		return vk.PipelineStageFlagBits(vk.PipelineStageTopOfPipeBit)
	}
}

// ImageLayout returns the VkImageLayout this usage requires, or ok=false
// if the usage has no required layout (the layout tracker then falls back
// to whatever layout the image currently holds — spec §4.1).
func (u UsageType) ImageLayout(isDepthStencil bool) (layout vk.ImageLayout, ok bool) {
	switch u {
	case UsageRead, UsageSampler:
		return vk.ImageLayoutShaderReadOnlyOptimal, true
	case UsageWrite, UsageReadWrite:
		return vk.ImageLayoutGeneral, true
	case UsageBlitSource, UsageBlitSynchronisation:
		return vk.ImageLayoutTransferSrcOptimal, true
	case UsageBlitDestination:
		return vk.ImageLayoutTransferDstOptimal, true
	case UsageInputAttachment:
		return vk.ImageLayoutShaderReadOnlyOptimal, true
	case UsageReadWriteRenderTarget:
		// Preserved per spec §9's open question: mixing storage-image and
		// colour-attachment roles on one attachment forces GENERAL and
		// logs a warning at the call site (planner.go).
		return vk.ImageLayoutGeneral, true
	case UsageWriteOnlyRenderTarget:
		if isDepthStencil {
			return vk.ImageLayoutDepthStencilAttachmentOptimal, true
		}
		return vk.ImageLayoutColorAttachmentOptimal, true
	case UsageInputAttachmentRenderTarget:
		if isDepthStencil {
			return vk.ImageLayoutDepthStencilReadOnlyOptimal, true
		}
		return vk.ImageLayoutShaderReadOnlyOptimal, true
	case UsageConstantBuffer, UsageVertexBuffer, UsageIndexBuffer, UsageIndirectBuffer,
		UsageUnusedRenderTarget, UsageUnusedArgumentBuffer, UsageFrameStartLayoutTransitionCheck:
		return 0, false
	default:
		return 0, false
	}
}

// ResourceUsage records one pass's touch of one resource.
type ResourceUsage struct {
	Resource     ResourceHandle
	Type         UsageType
	Stages       vk.PipelineStageFlagBits
	CommandRange CommandRange
	ActiveRange  ActiveRange
	// PassIndex identifies the owning PassRecord within FrameInputs.Passes.
	PassIndex int
}
