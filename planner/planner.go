// Package planner implements the render-target planner: fusing
// consecutive draw passes that bind compatible attachments into one
// Vulkan render pass with one subpass per draw pass, then assigning
// load/store ops and subpass dependencies (spec §4.2).
package planner

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// compat is the three-way result of comparing one attachment slot across
// two candidate passes.
type compat int

const (
	compatIdentical compat = iota
	compatCompatible
	compatIncompatible
)

// Plan fuses passes into render-pass descriptors. It returns one
// *framegraph.DrawRenderPassDescriptor per fused group, in pass order, and
// a parallel slice giving each PassRecord's (descriptor index, subpass
// index) so the executor knows which descriptor to open/continue for a
// given pass. A pass that opens no render pass (a non-draw pass, or a draw
// pass without a RenderTarget) gets DescriptorIndex -1.
type PlannedPass struct {
	DescriptorIndex int
	SubpassIndex    int
}

func Plan(passes []framegraph.PassRecord, usages map[framegraph.ResourceHandle][]framegraph.ResourceUsage) ([]*framegraph.DrawRenderPassDescriptor, []PlannedPass) {
	var descriptors []*framegraph.DrawRenderPassDescriptor
	placement := make([]PlannedPass, len(passes))

	var open *framegraph.DrawRenderPassDescriptor
	openIdx := -1

	finalize := func() {
		if open == nil {
			return
		}
		assignRoles(open, passes, usages)
		assignLoadStoreOps(open, passes, usages)
		open = nil
		openIdx = -1
	}

	for i, p := range passes {
		if p.Kind != framegraph.PassDraw || p.RenderTarget == nil {
			placement[i] = PlannedPass{DescriptorIndex: -1, SubpassIndex: -1}
			finalize()
			continue
		}

		if open != nil && sizesMatch(open, p.RenderTarget) {
			result, shareSubpass := tryMerge(open, p.RenderTarget)
			if result != compatIncompatible {
				subIdx := mergeIntoOpen(open, p.RenderTarget, i, shareSubpass)
				placement[i] = PlannedPass{DescriptorIndex: openIdx, SubpassIndex: subIdx}
				continue
			}
			finalize()
		} else if open != nil {
			finalize()
		}

		// Open a new descriptor for this pass.
		open = &framegraph.DrawRenderPassDescriptor{
			Width:  p.RenderTarget.Width,
			Height: p.RenderTarget.Height,
		}
		descriptors = append(descriptors, open)
		openIdx = len(descriptors) - 1
		subIdx := mergeIntoOpen(open, p.RenderTarget, i, false)
		placement[i] = PlannedPass{DescriptorIndex: openIdx, SubpassIndex: subIdx}
	}
	finalize()

	return descriptors, placement
}

func sizesMatch(open *framegraph.DrawRenderPassDescriptor, next *framegraph.DrawRenderPassDescriptor) bool {
	return open.Width == next.Width && open.Height == next.Height
}

// tryMerge compares every attachment slot of `next` against `open`'s most
// recent binding. shareSubpass reports whether *every* slot was Identical
// (spec: "sharing the previous subpass object if all attachments are
// Identical").
func tryMerge(open, next *framegraph.DrawRenderPassDescriptor) (compat, bool) {
	allIdentical := true
	overall := compatIdentical

	colorCount := len(next.ColorAttachments)
	if len(open.ColorAttachments) > colorCount {
		colorCount = len(open.ColorAttachments)
	}
	for i := 0; i < colorCount; i++ {
		var oldAtt, newAtt *framegraph.AttachmentDescriptor
		if i < len(open.ColorAttachments) {
			oldAtt = &open.ColorAttachments[i]
		}
		if i < len(next.ColorAttachments) {
			newAtt = &next.ColorAttachments[i]
		}
		c := tryUpdate(oldAtt, newAtt)
		if c == compatIncompatible {
			return compatIncompatible, false
		}
		if c != compatIdentical {
			allIdentical = false
			overall = compatCompatible
		}
	}

	c := tryUpdate(open.DepthAttachment, next.DepthAttachment)
	if c == compatIncompatible {
		return compatIncompatible, false
	}
	if c != compatIdentical {
		allIdentical = false
		overall = compatCompatible
	}

	return overall, allIdentical
}

// tryUpdate implements spec §4.2 step 2: Identical (same texture/slice/
// level/plane), Compatible (one side absent, or identical after a
// one-sided addition), or Incompatible (a clear on an already-bound
// attachment, or a genuinely different binding).
func tryUpdate(old, next *framegraph.AttachmentDescriptor) compat {
	if old == nil && next == nil {
		return compatIdentical
	}
	if old == nil || next == nil {
		return compatCompatible
	}
	if !old.SameBinding(*next) {
		return compatIncompatible
	}
	if next.Clear != framegraph.ClearNone {
		// Clearing an attachment that's already bound would overwrite
		// in-progress contents.
		return compatIncompatible
	}
	return compatIdentical
}

// mergeIntoOpen appends the pass's attachments into open (growing slots
// for any newly-added attachment) and returns the subpass index the pass
// landed in: either a brand new subpass, or — when shareSubpass is true —
// the previous subpass, appended to its SourcePassIndices.
func mergeIntoOpen(open *framegraph.DrawRenderPassDescriptor, rt *framegraph.DrawRenderPassDescriptor, passIndex int, shareSubpass bool) int {
	// Grow color attachment slots to match.
	for i := 0; i < len(rt.ColorAttachments); i++ {
		if i >= len(open.ColorAttachments) {
			open.ColorAttachments = append(open.ColorAttachments, rt.ColorAttachments[i])
		} else if !open.ColorAttachments[i].Texture.IsValid() {
			open.ColorAttachments[i] = rt.ColorAttachments[i]
		}
	}
	if rt.DepthAttachment != nil && open.DepthAttachment == nil {
		d := *rt.DepthAttachment
		open.DepthAttachment = &d
	}

	if shareSubpass && len(open.Subpasses) > 0 {
		idx := len(open.Subpasses) - 1
		open.Subpasses[idx].SourcePassIndices = append(open.Subpasses[idx].SourcePassIndices, passIndex)
		return idx
	}

	open.Subpasses = append(open.Subpasses, framegraph.SubpassDescriptor{
		SourcePassIndices: []int{passIndex},
	})
	return len(open.Subpasses) - 1
}

// assignRoles walks every attachment's frame-wide usage timeline to
// classify each subpass's binding (colour/depth/input), mark
// preserve-attachments for subpasses that don't touch a slot between its
// first and last local use, and record previous/next usage command
// indices for initial/final layout inference (spec §4.2 "Subpass role
// assignment").
func assignRoles(desc *framegraph.DrawRenderPassDescriptor, passes []framegraph.PassRecord, usages map[framegraph.ResourceHandle][]framegraph.ResourceUsage) {
	slotCount := len(desc.ColorAttachments)
	if desc.DepthAttachment != nil {
		slotCount++
	}
	desc.PreviousUsageCommand = make([]int, slotCount)
	desc.NextUsageCommand = make([]int, slotCount)

	rangeOfPass := func(idx int) framegraph.CommandRange { return passes[idx].CommandRange }

	passStart := len(passes)
	passEnd := -1
	for _, sp := range desc.Subpasses {
		for _, pi := range sp.SourcePassIndices {
			if pi < passStart {
				passStart = pi
			}
			if pi > passEnd {
				passEnd = pi
			}
		}
	}
	instanceRange := framegraph.CommandRange{Start: rangeOfPass(passStart).Start, End: rangeOfPass(passEnd).End}

	assignSlot := func(slot int, att framegraph.AttachmentDescriptor, isDepth bool) {
		all := usages[att.Texture]
		prev, next := -1, -1
		for _, u := range all {
			if u.CommandRange.End <= instanceRange.Start && (prev < 0 || u.CommandRange.End > prev) {
				prev = u.CommandRange.End - 1
			}
			if u.CommandRange.Start >= instanceRange.End && (next < 0 || u.CommandRange.Start < next) {
				next = u.CommandRange.Start
			}
		}
		desc.PreviousUsageCommand[slot] = prev
		desc.NextUsageCommand[slot] = next

		// Per-subpass binding classification, within the instance.
		var firstLocal, lastLocal = -1, -1
		for si, sp := range desc.Subpasses {
			touched := false
			for _, pi := range sp.SourcePassIndices {
				for _, u := range all {
					if u.PassIndex != pi {
						continue
					}
					touched = true
					binding := bindingFor(u.Type, isDepth)
					if isDepth {
						desc.Subpasses[si].DepthBinding = mergeBinding(desc.Subpasses[si].DepthBinding, binding)
						if u.Type == framegraph.UsageReadWriteRenderTarget {
							core.LogWarn("planner: readWrite usage as render-target attachment forces GENERAL layout (spec open question, flagged for review)")
						}
					} else {
						for len(desc.Subpasses[si].ColorBindings) <= slot {
							desc.Subpasses[si].ColorBindings = append(desc.Subpasses[si].ColorBindings, framegraph.SubpassBinding{})
						}
						desc.Subpasses[si].ColorBindings[slot] = mergeBinding(desc.Subpasses[si].ColorBindings[slot], binding)
						if u.Type == framegraph.UsageReadWriteRenderTarget {
							core.LogWarn("planner: readWrite usage as render-target attachment forces GENERAL layout (spec open question, flagged for review)")
						}
					}
				}
			}
			if touched {
				if firstLocal < 0 {
					firstLocal = si
				}
				lastLocal = si
			}
		}
		for si := firstLocal + 1; si < lastLocal; si++ {
			already := false
			for _, pi := range desc.Subpasses[si].PreserveAttachments {
				if pi == slot {
					already = true
					break
				}
			}
			touched := isDepth && desc.Subpasses[si].DepthBinding != (framegraph.SubpassBinding{}) ||
				!isDepth && slot < len(desc.Subpasses[si].ColorBindings) && desc.Subpasses[si].ColorBindings[slot] != (framegraph.SubpassBinding{})
			if !already && !touched {
				desc.Subpasses[si].PreserveAttachments = append(desc.Subpasses[si].PreserveAttachments, slot)
			}
		}
	}

	for i, att := range desc.ColorAttachments {
		assignSlot(i, att, false)
	}
	if desc.DepthAttachment != nil {
		assignSlot(desc.DepthSlotIndex(), *desc.DepthAttachment, true)
	}

	// Flatten the per-binding input bits into each subpass's input
	// attachment list (-1 names the depth slot), which is what the render
	// pass builder consumes.
	for si := range desc.Subpasses {
		sp := &desc.Subpasses[si]
		sp.InputAttachments = sp.InputAttachments[:0]
		for slot, b := range sp.ColorBindings {
			if b.IsInput {
				sp.InputAttachments = append(sp.InputAttachments, slot)
			}
		}
		if sp.DepthBinding.IsInput {
			sp.InputAttachments = append(sp.InputAttachments, -1)
		}
	}

	buildSubpassDependencies(desc)
}

// assignLoadStoreOps derives each attachment slot's VkAttachmentLoadOp/
// VkAttachmentStoreOp from its usage timeline (spec §4.2): CLEAR when the
// binding requested it, DONT_CARE when there's no prior usage this frame
// (or the pass's first write fully overwrites it), otherwise LOAD; STORE
// when a later usage depends on the result, otherwise DONT_CARE.
func assignLoadStoreOps(desc *framegraph.DrawRenderPassDescriptor, passes []framegraph.PassRecord, usages map[framegraph.ResourceHandle][]framegraph.ResourceUsage) {
	desc.ColorLoadOps = make([]vk.AttachmentLoadOp, len(desc.ColorAttachments))
	desc.ColorStoreOps = make([]vk.AttachmentStoreOp, len(desc.ColorAttachments))

	for i, att := range desc.ColorAttachments {
		desc.ColorLoadOps[i] = loadOpFor(att, desc.PreviousUsageCommand[i])
		desc.ColorStoreOps[i] = storeOpFor(desc.NextUsageCommand[i])
	}
	if desc.DepthAttachment != nil {
		slot := desc.DepthSlotIndex()
		desc.DepthLoadOp = loadOpFor(*desc.DepthAttachment, desc.PreviousUsageCommand[slot])
		desc.DepthStoreOp = storeOpFor(desc.NextUsageCommand[slot])
	}
}

func loadOpFor(att framegraph.AttachmentDescriptor, prevCmd int) vk.AttachmentLoadOp {
	switch {
	case att.Clear != framegraph.ClearNone:
		return vk.AttachmentLoadOpClear
	case prevCmd < 0, att.FullyOverwrites:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpLoad
	}
}

func storeOpFor(nextCmd int) vk.AttachmentStoreOp {
	if nextCmd < 0 {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func bindingFor(u framegraph.UsageType, isDepth bool) framegraph.SubpassBinding {
	b := framegraph.SubpassBinding{}
	switch u {
	case framegraph.UsageWriteOnlyRenderTarget, framegraph.UsageReadWriteRenderTarget:
		if isDepth {
			b.IsDepthTarget = true
		} else {
			b.IsColorTarget = true
		}
		if u == framegraph.UsageReadWriteRenderTarget {
			b.IsInput = true
		}
	case framegraph.UsageInputAttachmentRenderTarget, framegraph.UsageRead, framegraph.UsageInputAttachment:
		b.IsInput = true
	}
	return b
}

func mergeBinding(a, b framegraph.SubpassBinding) framegraph.SubpassBinding {
	return framegraph.SubpassBinding{
		IsColorTarget: a.IsColorTarget || b.IsColorTarget,
		IsDepthTarget: a.IsDepthTarget || b.IsDepthTarget,
		IsInput:       a.IsInput || b.IsInput,
		IsPreserved:   a.IsPreserved || b.IsPreserved,
	}
}

// buildSubpassDependencies walks every pair of subpasses within desc and
// accumulates a VkSubpassDependency whenever one subpass writes an
// attachment another subpass reads or writes (spec §4.2's closing
// paragraph; actual stage/access math happens in rescmd, which updates
// these entries via framegraph's exported AddDependency through the
// DrawRenderPassDescriptor value itself — the planner only seeds the
// self-dependency case it can detect purely from attachment bindings:
// an attachment used as both input and output within one subpass).
func buildSubpassDependencies(desc *framegraph.DrawRenderPassDescriptor) {
	for si, sp := range desc.Subpasses {
		mixedRole := sp.DepthBinding.IsInput && sp.DepthBinding.IsDepthTarget
		for _, b := range sp.ColorBindings {
			if b.IsInput && b.IsColorTarget {
				mixedRole = true
			}
		}
		if mixedRole {
			desc.AddSelfDependency(si,
				vk.PipelineStageFlagBits(vk.PipelineStageColorAttachmentOutputBit),
				vk.PipelineStageFlagBits(vk.PipelineStageFragmentShaderBit),
				vk.AccessFlagBits(vk.AccessColorAttachmentWriteBit),
				vk.AccessFlagBits(vk.AccessInputAttachmentReadBit),
			)
		}
	}
}
