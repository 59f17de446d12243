package planner

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

func colorTexture(idx uint32) framegraph.ResourceHandle {
	return framegraph.ResourceHandle{Kind: framegraph.KindTexture, Index: idx}
}

// TestFusesIdenticalAttachmentsIntoOneSubpass covers scenario S3 and
// testable property #4: two consecutive draw passes binding the exact
// same colour attachment fuse into a single render pass, sharing one
// subpass object.
func TestFusesIdenticalAttachmentsIntoOneSubpass(t *testing.T) {
	rt := colorTexture(1)
	passes := []framegraph.PassRecord{
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 0, End: 1},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 1920, Height: 1080,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt, Clear: framegraph.ClearColor}},
			},
		},
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 1, End: 2},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 1920, Height: 1080,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt}},
			},
		},
	}
	usages := map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
		rt: {
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, PassIndex: 0},
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, PassIndex: 1},
		},
	}

	descriptors, placement := Plan(passes, usages)
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 fused render pass, got %d", len(descriptors))
	}
	if len(descriptors[0].Subpasses) != 1 {
		t.Fatalf("expected passes to share one subpass, got %d", len(descriptors[0].Subpasses))
	}
	if len(descriptors[0].Subpasses[0].SourcePassIndices) != 2 {
		t.Fatalf("expected both passes recorded in SourcePassIndices, got %v", descriptors[0].Subpasses[0].SourcePassIndices)
	}
	if placement[0].DescriptorIndex != placement[1].DescriptorIndex || placement[0].SubpassIndex != placement[1].SubpassIndex {
		t.Fatalf("expected both passes to land in the same descriptor/subpass, got %+v %+v", placement[0], placement[1])
	}
}

// TestIncompatibleAttachmentsStartNewRenderPass: a later pass that clears
// an attachment already bound in the open render pass cannot be fused in.
func TestIncompatibleAttachmentsStartNewRenderPass(t *testing.T) {
	rt := colorTexture(2)
	passes := []framegraph.PassRecord{
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 0, End: 1},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 512, Height: 512,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt}},
			},
		},
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 1, End: 2},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 512, Height: 512,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt, Clear: framegraph.ClearColor}},
			},
		},
	}
	usages := map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
		rt: {
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, PassIndex: 0},
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, PassIndex: 1},
		},
	}

	descriptors, placement := Plan(passes, usages)
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 separate render passes, got %d", len(descriptors))
	}
	if placement[0].DescriptorIndex == placement[1].DescriptorIndex {
		t.Fatalf("clearing pass must not fuse into the prior render pass")
	}
}

// TestDifferentSizeStartsNewRenderPass: render passes are keyed by
// framebuffer size; a size change always breaks fusion.
func TestDifferentSizeStartsNewRenderPass(t *testing.T) {
	a, b := colorTexture(3), colorTexture(4)
	passes := []framegraph.PassRecord{
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 0, End: 1},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 256, Height: 256,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: a}},
			},
		},
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 1, End: 2},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 512, Height: 512,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: b}},
			},
		},
	}
	usages := map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
		a: {{Resource: a, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, PassIndex: 0}},
		b: {{Resource: b, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, PassIndex: 1}},
	}

	descriptors, _ := Plan(passes, usages)
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 render passes for differing sizes, got %d", len(descriptors))
	}
}

// TestNonDrawPassBreaksOpenRenderPass: a compute pass between two draw
// passes that bind the same attachment closes the open render pass, so the
// two draws land in separate render passes.
func TestNonDrawPassBreaksOpenRenderPass(t *testing.T) {
	rt := colorTexture(5)
	passes := []framegraph.PassRecord{
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 0, End: 1},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{Width: 64, Height: 64, ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt}}},
		},
		{
			Kind:         framegraph.PassCompute,
			CommandRange: framegraph.CommandRange{Start: 1, End: 2},
		},
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 2, End: 3},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{Width: 64, Height: 64, ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt}}},
		},
	}
	usages := map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
		rt: {
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, PassIndex: 0},
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 2, End: 3}, PassIndex: 2},
		},
	}

	descriptors, placement := Plan(passes, usages)
	if len(descriptors) != 2 {
		t.Fatalf("expected the compute pass to break render-pass fusion, got %d descriptors", len(descriptors))
	}
	if placement[0].DescriptorIndex == placement[2].DescriptorIndex {
		t.Fatalf("passes separated by a non-draw pass must not share a render pass")
	}
}

// TestLoadStoreOpsFollowUsageTimeline covers testable property #5: an
// attachment with no prior usage in the frame gets DONT_CARE (never LOAD),
// and an attachment with a later usage gets STORE rather than DONT_CARE.
func TestLoadStoreOpsFollowUsageTimeline(t *testing.T) {
	rt := colorTexture(6)
	passes := []framegraph.PassRecord{
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 0, End: 1},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 128, Height: 128,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: rt}},
			},
		},
	}
	usages := map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
		rt: {
			{Resource: rt, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, PassIndex: 0},
			{Resource: rt, Type: framegraph.UsageRead, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, PassIndex: 1},
		},
	}

	descriptors, _ := Plan(passes, usages)
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 render pass, got %d", len(descriptors))
	}
	d := descriptors[0]
	if d.ColorLoadOps[0] != vk.AttachmentLoadOpDontCare {
		t.Fatalf("expected DONT_CARE load op with no prior frame usage, got %v", d.ColorLoadOps[0])
	}
	if d.ColorStoreOps[0] != vk.AttachmentStoreOpStore {
		t.Fatalf("expected STORE since a later usage reads the result, got %v", d.ColorStoreOps[0])
	}
}

// TestInputAttachmentBindingReachesSubpassList: a second draw pass reading
// the first pass's colour attachment as an input attachment shares the
// first pass's subpass (the bindings are identical), and that subpass must
// list the slot in its input attachments, not just flag the binding.
func TestInputAttachmentBindingReachesSubpassList(t *testing.T) {
	a := colorTexture(7)
	passes := []framegraph.PassRecord{
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 0, End: 1},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 640, Height: 360,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: a}},
			},
		},
		{
			Kind:         framegraph.PassDraw,
			CommandRange: framegraph.CommandRange{Start: 1, End: 2},
			RenderTarget: &framegraph.DrawRenderPassDescriptor{
				Width: 640, Height: 360,
				ColorAttachments: []framegraph.AttachmentDescriptor{{Texture: a}},
			},
		},
	}
	usages := map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
		a: {
			{Resource: a, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, PassIndex: 0},
			{Resource: a, Type: framegraph.UsageInputAttachmentRenderTarget, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, PassIndex: 1},
		},
	}

	descriptors, _ := Plan(passes, usages)
	if len(descriptors) != 1 {
		t.Fatalf("expected 1 fused render pass, got %d", len(descriptors))
	}
	d := descriptors[0]
	if len(d.Subpasses) != 1 {
		// Identical bindings share a subpass; the input role merges into it.
		t.Fatalf("expected shared subpass for identical attachments, got %d", len(d.Subpasses))
	}
	sp := d.Subpasses[0]
	if len(sp.InputAttachments) != 1 || sp.InputAttachments[0] != 0 {
		t.Fatalf("expected colour slot 0 in the input attachment list, got %v", sp.InputAttachments)
	}
	if !sp.ColorBindings[0].IsColorTarget || !sp.ColorBindings[0].IsInput {
		t.Fatalf("expected merged colour+input binding, got %+v", sp.ColorBindings[0])
	}
}

func TestSelfDependencyAddedForMixedRoleAttachment(t *testing.T) {
	d := &framegraph.DrawRenderPassDescriptor{}
	d.AddSelfDependency(0,
		vk.PipelineStageFlagBits(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlagBits(vk.PipelineStageFragmentShaderBit),
		vk.AccessFlagBits(vk.AccessColorAttachmentWriteBit),
		vk.AccessFlagBits(vk.AccessInputAttachmentReadBit),
	)
	v, ok := d.SubpassDependencies[framegraph.SubpassDependencyKey{Src: 0, Dst: 0}]
	if !ok || !v.SelfDependency {
		t.Fatalf("expected a recorded self-dependency entry")
	}
}
