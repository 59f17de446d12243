package framegraph

import vk "github.com/goki/vulkan"

// ClearOp says whether a pass wants to clear an attachment slot when it is
// first bound in the planned render pass.
type ClearOp int

const (
	ClearNone ClearOp = iota
	ClearColor
	ClearDepthStencil
)

// AttachmentDescriptor names one texture subresource bound as a render
// pass attachment (spec §3).
type AttachmentDescriptor struct {
	Texture    ResourceHandle
	Slice      uint32
	Level      uint32
	DepthPlane uint32
	Clear      ClearOp
	ClearValue vk.ClearValue
	// FullyOverwrites marks that this pass's first write covers the whole
	// attachment, letting the planner choose DONT_CARE/ pseudo-clear
	// loadOp instead of LOAD even though an earlier usage exists.
	FullyOverwrites bool
}

// SameBinding reports whether a and b name the identical texture
// subresource (spec §4.2 "Identical").
func (a AttachmentDescriptor) SameBinding(b AttachmentDescriptor) bool {
	return a.Texture == b.Texture && a.Slice == b.Slice && a.Level == b.Level && a.DepthPlane == b.DepthPlane
}

// SubpassBinding is one subpass's view of one attachment slot: whether it
// binds it as a colour/depth target, reads it as an input attachment, or
// must merely preserve it across.
type SubpassBinding struct {
	IsColorTarget  bool
	IsDepthTarget  bool
	IsInput        bool
	IsPreserved    bool
}

// SubpassDescriptor mirrors one draw pass fused into a planned render
// pass: which attachment slots it binds, and how.
type SubpassDescriptor struct {
	// SourcePassIndices indexes back into FrameInputs.Passes for every
	// draw pass fused into this subpass. Usually one entry; more than one
	// when consecutive passes bind identical attachments and therefore
	// "share the previous subpass object" (spec §4.2 step 3).
	SourcePassIndices []int
	ColorBindings     []SubpassBinding // parallel to DrawRenderPassDescriptor.ColorAttachments
	DepthBinding      SubpassBinding
	InputAttachments    []int // indices into ColorAttachments/DepthAttachment (-1 == depth)
	PreserveAttachments []int
}

// SubpassDependencyKey identifies one accumulated VkSubpassDependency slot
// by the ordered pair of subpasses it connects. SrcSubpass/DstSubpass may
// be VK_SUBPASS_EXTERNAL-equivalent (see ExternalSubpass below).
type SubpassDependencyKey struct {
	Src, Dst int
}

// SubpassDependencyValue accumulates OR'd stage/access flags for one
// (src,dst) pair (spec §4.2 "accumulated ... by OR-ing stage/access/
// dependency flags").
type SubpassDependencyValue struct {
	SrcStageMask, DstStageMask   vk.PipelineStageFlagBits
	SrcAccessMask, DstAccessMask vk.AccessFlagBits
	ByRegion                     bool
	// SelfDependency marks Src==Dst transitions forced by an attachment
	// used as both input and output within one subpass (spec §4.2).
	SelfDependency bool
}

// ExternalSubpass is the sentinel subpass index representing
// VK_SUBPASS_EXTERNAL: work outside this render pass instance.
const ExternalSubpass = -1

// DrawRenderPassDescriptor is the planner's output: one or more fused
// draw passes sharing one Vulkan render pass instance.
type DrawRenderPassDescriptor struct {
	Width, Height uint32

	ColorAttachments []AttachmentDescriptor // slot with an invalid Texture handle == absent
	DepthAttachment  *AttachmentDescriptor

	Subpasses []SubpassDescriptor

	SubpassDependencies map[SubpassDependencyKey]*SubpassDependencyValue

	// ColorLoadOps/ColorStoreOps are parallel to ColorAttachments; the
	// depth/stencil attachment's ops are DepthLoadOp/DepthStoreOp.
	ColorLoadOps  []vk.AttachmentLoadOp
	ColorStoreOps []vk.AttachmentStoreOp
	DepthLoadOp   vk.AttachmentLoadOp
	DepthStoreOp  vk.AttachmentStoreOp

	// ColorInitialLayouts/ColorFinalLayouts and their depth counterparts are
	// resolved by the executor from each attachment's layout tracker once
	// trackers are available (spec §4.1), after planning; vk.Translator
	// reads them directly when building the VkRenderPass.
	ColorInitialLayouts []vk.ImageLayout
	ColorFinalLayouts   []vk.ImageLayout
	DepthInitialLayout  vk.ImageLayout
	DepthFinalLayout    vk.ImageLayout

	// PreviousUsageCommand/NextUsageCommand give, per attachment slot
	// (colour index, or len(ColorAttachments) for depth), the command
	// index of the usage immediately before/after this render-pass
	// instance; used by the layout tracker to infer initial/final
	// layouts (spec §3 Render-target descriptor).
	PreviousUsageCommand []int
	NextUsageCommand     []int
}

func (d *DrawRenderPassDescriptor) DepthSlotIndex() int { return len(d.ColorAttachments) }

// AddDependency OR's flags into the accumulated entry for (src, dst),
// creating it if absent. Exported for the planner, which derives subpass
// dependencies from attachment role overlap.
func (d *DrawRenderPassDescriptor) AddDependency(src, dst int, srcStage, dstStage vk.PipelineStageFlagBits, srcAccess, dstAccess vk.AccessFlagBits, byRegion bool) {
	d.addDependency(SubpassDependencyKey{Src: src, Dst: dst}, srcStage, dstStage, srcAccess, dstAccess, byRegion, src == dst)
}

// AddSelfDependency records a Src==Dst subpass dependency forced by an
// attachment bound as both input and output within one subpass (spec
// §4.2's self-dependency case).
func (d *DrawRenderPassDescriptor) AddSelfDependency(subpass int, srcStage, dstStage vk.PipelineStageFlagBits, srcAccess, dstAccess vk.AccessFlagBits) {
	d.addDependency(SubpassDependencyKey{Src: subpass, Dst: subpass}, srcStage, dstStage, srcAccess, dstAccess, true, true)
}

func (d *DrawRenderPassDescriptor) addDependency(key SubpassDependencyKey, srcStage, dstStage vk.PipelineStageFlagBits, srcAccess, dstAccess vk.AccessFlagBits, byRegion, self bool) {
	if d.SubpassDependencies == nil {
		d.SubpassDependencies = make(map[SubpassDependencyKey]*SubpassDependencyValue)
	}
	v, ok := d.SubpassDependencies[key]
	if !ok {
		v = &SubpassDependencyValue{}
		d.SubpassDependencies[key] = v
	}
	v.SrcStageMask |= srcStage
	v.DstStageMask |= dstStage
	v.SrcAccessMask |= srcAccess
	v.DstAccessMask |= dstAccess
	v.ByRegion = v.ByRegion || byRegion
	v.SelfDependency = v.SelfDependency || self
}
