package vk

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// RenderPass wraps one VkRenderPass built from a fused
// framegraph.DrawRenderPassDescriptor, with the attachment/subpass/
// dependency arrays derived from the descriptor instead of hard-coded to a
// single colour+depth pass.
type RenderPass struct {
	Handle vk.RenderPass
}

// AttachmentFormats gives BuildRenderPass the one piece of information the
// render-target descriptor itself doesn't carry: each attachment's pixel
// format and sample count, which only the registry's materialised texture
// descriptor knows.
type AttachmentFormats struct {
	Color       []vk.Format
	ColorSample []vk.SampleCountFlagBits
	Depth       vk.Format
	DepthSample vk.SampleCountFlagBits
}

// BuildRenderPass converts one DrawRenderPassDescriptor into a VkRenderPass:
// attachment description, attachment reference, subpass, dependency, in
// that order, generalised to N fused subpasses and N attachments instead
// of a fixed one-subpass/one-colour/one-depth layout.
func BuildRenderPass(d *Device, desc *framegraph.DrawRenderPassDescriptor, formats AttachmentFormats) (*RenderPass, error) {
	attachmentCount := len(desc.ColorAttachments)
	hasDepth := desc.DepthAttachment != nil
	if hasDepth {
		attachmentCount++
	}
	attachments := make([]vk.AttachmentDescription, attachmentCount)

	for i := range desc.ColorAttachments {
		sample := vk.SampleCount1Bit
		if i < len(formats.ColorSample) && formats.ColorSample[i] != 0 {
			sample = formats.ColorSample[i]
		}
		attachments[i] = vk.AttachmentDescription{
			Format:         formats.Color[i],
			Samples:        sample,
			LoadOp:         desc.ColorLoadOps[i],
			StoreOp:        desc.ColorStoreOps[i],
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  layoutOrUndefined(desc.ColorInitialLayouts, i),
			FinalLayout:    layoutOrUndefined(desc.ColorFinalLayouts, i),
		}
	}
	depthSlot := len(desc.ColorAttachments)
	if hasDepth {
		sample := formats.DepthSample
		if sample == 0 {
			sample = vk.SampleCount1Bit
		}
		attachments[depthSlot] = vk.AttachmentDescription{
			Format:         formats.Depth,
			Samples:        sample,
			LoadOp:         desc.DepthLoadOp,
			StoreOp:        desc.DepthStoreOp,
			StencilLoadOp:  desc.DepthLoadOp,
			StencilStoreOp: desc.DepthStoreOp,
			InitialLayout:  desc.DepthInitialLayout,
			FinalLayout:    desc.DepthFinalLayout,
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	// Every per-subpass reference/preserve slice must outlive CreateRenderPass,
	// so keep them rooted in a slice of slices rather than let them fall out
	// of scope at the end of each loop iteration.
	colorRefsPerSubpass := make([][]vk.AttachmentReference, len(desc.Subpasses))
	inputRefsPerSubpass := make([][]vk.AttachmentReference, len(desc.Subpasses))
	preservePerSubpass := make([][]uint32, len(desc.Subpasses))
	depthRefPerSubpass := make([]vk.AttachmentReference, len(desc.Subpasses))

	for s, sub := range desc.Subpasses {
		colorRefs := make([]vk.AttachmentReference, len(sub.ColorBindings))
		for i, binding := range sub.ColorBindings {
			if binding.IsColorTarget {
				colorRefs[i] = vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal}
			} else {
				colorRefs[i] = vk.AttachmentReference{Attachment: vk.AttachmentUnused, Layout: vk.ImageLayoutUndefined}
			}
		}
		colorRefsPerSubpass[s] = colorRefs

		var inputRefs []vk.AttachmentReference
		for _, idx := range sub.InputAttachments {
			if idx == -1 {
				inputRefs = append(inputRefs, vk.AttachmentReference{Attachment: uint32(depthSlot), Layout: vk.ImageLayoutDepthStencilReadOnlyOptimal})
			} else {
				inputRefs = append(inputRefs, vk.AttachmentReference{Attachment: uint32(idx), Layout: vk.ImageLayoutShaderReadOnlyOptimal})
			}
		}
		inputRefsPerSubpass[s] = inputRefs

		var preserve []uint32
		for _, idx := range sub.PreserveAttachments {
			preserve = append(preserve, uint32(idx))
		}
		preservePerSubpass[s] = preserve

		sp := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorRefs)),
			PColorAttachments:    colorRefs,
		}
		if len(inputRefs) > 0 {
			sp.InputAttachmentCount = uint32(len(inputRefs))
			sp.PInputAttachments = inputRefs
		}
		if len(preserve) > 0 {
			sp.PreserveAttachmentCount = uint32(len(preserve))
			sp.PPreserveAttachments = preserve
		}
		if sub.DepthBinding.IsDepthTarget && hasDepth {
			depthRefPerSubpass[s] = vk.AttachmentReference{Attachment: uint32(depthSlot), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
			sp.PDepthStencilAttachment = &depthRefPerSubpass[s]
		}
		subpasses[s] = sp
	}

	dependencies := make([]vk.SubpassDependency, 0, len(desc.SubpassDependencies))
	for key, val := range desc.SubpassDependencies {
		dep := vk.SubpassDependency{
			SrcSubpass:    vkSubpassIndex(key.Src),
			DstSubpass:    vkSubpassIndex(key.Dst),
			SrcStageMask:  vk.PipelineStageFlags(val.SrcStageMask),
			DstStageMask:  vk.PipelineStageFlags(val.DstStageMask),
			SrcAccessMask: vk.AccessFlags(val.SrcAccessMask),
			DstAccessMask: vk.AccessFlags(val.DstAccessMask),
		}
		if val.ByRegion || val.SelfDependency {
			dep.DependencyFlags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
		dependencies = append(dependencies, dep)
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	rp := &RenderPass{}
	if res := vk.CreateRenderPass(d.Logical, &info, d.Allocator, &rp.Handle); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateRenderPass: result %d", res)
	}
	return rp, nil
}

func (rp *RenderPass) Destroy(d *Device) {
	if rp.Handle != nil {
		vk.DestroyRenderPass(d.Logical, rp.Handle, d.Allocator)
		rp.Handle = nil
	}
}

func layoutOrUndefined(layouts []vk.ImageLayout, i int) vk.ImageLayout {
	if i < len(layouts) {
		return layouts[i]
	}
	return vk.ImageLayoutUndefined
}

func vkSubpassIndex(i int) uint32 {
	if i == framegraph.ExternalSubpass {
		return vk.SubpassExternal
	}
	return uint32(i)
}

// Framebuffer wraps one VkFramebuffer.
type Framebuffer struct {
	Handle vk.Framebuffer
}

// BuildFramebuffer creates the framebuffer for one render-pass instance;
// views is parallel to attachments (colour attachments first, depth last).
func BuildFramebuffer(d *Device, rp *RenderPass, desc *framegraph.DrawRenderPassDescriptor, views []vk.ImageView) (*Framebuffer, error) {
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.Handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          1,
	}
	fb := &Framebuffer{}
	if res := vk.CreateFramebuffer(d.Logical, &info, d.Allocator, &fb.Handle); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateFramebuffer: result %d", res)
	}
	return fb, nil
}

func (fb *Framebuffer) Destroy(d *Device) {
	if fb.Handle != nil {
		vk.DestroyFramebuffer(d.Logical, fb.Handle, d.Allocator)
		fb.Handle = nil
	}
}
