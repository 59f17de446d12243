// Package rescmd implements the resource-command generator: from each
// resource's per-frame usage timeline it emits materialise, dispose, and
// synchronisation commands (spec §4.3).
package rescmd

import (
	"sort"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/layout"
	"github.com/spaghettifunk/vkframegraph/mask"
)

// CommandContext answers the scheduling questions the generator needs but
// doesn't own: which encoder and queue family a command index runs on, and
// whether it falls inside a planned render pass instance. The executor
// implements this once it has built its encoder manager for the frame.
type CommandContext interface {
	EncoderID(commandIndex int) framegraph.EncoderID
	QueueFamily(commandIndex int) uint32
	// Subpass reports the render pass descriptor and subpass index owning
	// commandIndex, if any.
	Subpass(commandIndex int) (desc *framegraph.DrawRenderPassDescriptor, subpassIndex int, ok bool)
}

// bufferUsageFor maps a usage type to the VkBufferUsageFlagBits it
// contributes to a buffer's aggregated creation flags. Exhaustive switch
// per the no-virtual-dispatch design note (spec §9), mirroring
// framegraph.UsageType's own AccessMask/StageMask methods.
func bufferUsageFor(u framegraph.UsageType) vk.BufferUsageFlagBits {
	switch u {
	case framegraph.UsageRead, framegraph.UsageWrite, framegraph.UsageReadWrite:
		return vk.BufferUsageFlagBits(vk.BufferUsageStorageBufferBit)
	case framegraph.UsageConstantBuffer:
		return vk.BufferUsageFlagBits(vk.BufferUsageUniformBufferBit)
	case framegraph.UsageVertexBuffer:
		return vk.BufferUsageFlagBits(vk.BufferUsageVertexBufferBit)
	case framegraph.UsageIndexBuffer:
		return vk.BufferUsageFlagBits(vk.BufferUsageIndexBufferBit)
	case framegraph.UsageIndirectBuffer:
		return vk.BufferUsageFlagBits(vk.BufferUsageIndirectBufferBit)
	case framegraph.UsageBlitSource, framegraph.UsageBlitSynchronisation:
		return vk.BufferUsageFlagBits(vk.BufferUsageTransferSrcBit)
	case framegraph.UsageBlitDestination:
		return vk.BufferUsageFlagBits(vk.BufferUsageTransferDstBit)
	default:
		return 0
	}
}

// imageUsageFor is bufferUsageFor's texture counterpart.
func imageUsageFor(u framegraph.UsageType) vk.ImageUsageFlagBits {
	switch u {
	case framegraph.UsageRead, framegraph.UsageWrite, framegraph.UsageReadWrite, framegraph.UsageSampler:
		return vk.ImageUsageFlagBits(vk.ImageUsageStorageBit)
	case framegraph.UsageBlitSource, framegraph.UsageBlitSynchronisation:
		return vk.ImageUsageFlagBits(vk.ImageUsageTransferSrcBit)
	case framegraph.UsageBlitDestination:
		return vk.ImageUsageFlagBits(vk.ImageUsageTransferDstBit)
	case framegraph.UsageInputAttachment, framegraph.UsageInputAttachmentRenderTarget:
		return vk.ImageUsageFlagBits(vk.ImageUsageInputAttachmentBit)
	case framegraph.UsageReadWriteRenderTarget, framegraph.UsageWriteOnlyRenderTarget:
		return vk.ImageUsageFlagBits(vk.ImageUsageColorAttachmentBit)
	default:
		return 0
	}
}

// ResourceTrackers supplies the per-texture layout.Tracker the generator
// consults for image barriers; absent for buffer handles.
type ResourceTrackers map[framegraph.ResourceHandle]*layout.Tracker

// IsDepthStencil reports, for a texture handle, whether it carries a
// depth/stencil aspect (affects access/stage/layout derivation).
type IsDepthStencil func(framegraph.ResourceHandle) bool

// StoreWait is recorded for persistent/history resources written this
// frame: the owning encoder a future frame's first usage must synchronise
// against (spec S6 — the actual semaphore value is filled in by the
// executor once the submit is known).
type StoreWait struct {
	Resource framegraph.ResourceHandle
	Encoder  framegraph.EncoderID
}

// Generate walks every resource's active usage timeline in inputs and
// produces the unsorted-then-sorted ResourceCommand sequence for the
// frame (spec §4.3's three numbered steps, finished by the ordering
// rule).
func Generate(inputs framegraph.FrameInputs, trackers ResourceTrackers, isDepthStencil IsDepthStencil, ctx CommandContext) ([]framegraph.ResourceCommand, []StoreWait, error) {
	passKind := make(map[int]framegraph.PassKind, len(inputs.Passes))
	for i, p := range inputs.Passes {
		passKind[i] = p.Kind
	}

	var out []framegraph.ResourceCommand
	var waits []StoreWait

	for resource, usages := range inputs.ResourceUsages {
		active := activeUsages(usages, passKind)
		if len(active) == 0 {
			continue
		}
		cmds, wait, err := generateForResource(resource, active, trackers[resource], isDepthStencil, ctx)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, cmds...)
		if wait != nil {
			waits = append(waits, *wait)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return framegraph.Less(out[i], out[j]) })
	return out, waits, nil
}

// activeUsages drops unusedArgumentBuffer/unusedRenderTarget usages and
// usages owned by a CPU-only pass (spec §4.3's opening sentence).
func activeUsages(usages []framegraph.ResourceUsage, passKind map[int]framegraph.PassKind) []framegraph.ResourceUsage {
	var out []framegraph.ResourceUsage
	for _, u := range usages {
		if u.Type == framegraph.UsageUnusedArgumentBuffer || u.Type == framegraph.UsageUnusedRenderTarget {
			continue
		}
		if passKind[u.PassIndex] == framegraph.PassCPU {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CommandRange.Start < out[j].CommandRange.Start })
	return out
}

func generateForResource(resource framegraph.ResourceHandle, usages []framegraph.ResourceUsage, tracker *layout.Tracker, isDepthStencil IsDepthStencil, ctx CommandContext) ([]framegraph.ResourceCommand, *StoreWait, error) {
	var out []framegraph.ResourceCommand
	isTexture := resource.Kind == framegraph.KindTexture
	depthStencil := false
	if isTexture && isDepthStencil != nil {
		depthStencil = isDepthStencil(resource)
	}

	// Step 1: materialise at the first active usage.
	first := usages[0]
	matCmd := framegraph.ResourceCommand{
		CommandIndex: first.CommandRange.Start,
		Order:        framegraph.OrderBefore,
		Resource:     resource,
	}
	if isTexture {
		matCmd.Kind = framegraph.CmdMaterialiseTexture
		for _, u := range usages {
			matCmd.AggregatedImageUsage |= imageUsageFor(u.Type)
		}
	} else {
		matCmd.Kind = framegraph.CmdMaterialiseBuffer
		for _, u := range usages {
			matCmd.AggregatedBufferUsage |= bufferUsageFor(u.Type)
		}
	}
	out = append(out, matCmd)

	// Step 2: adjacent-pair dependency emission. A virtual frame-initial
	// usage is prepended for textures so the UNDEFINED (or carried-over)
	// starting layout participates in the same pairwise walk as every
	// other transition, rather than needing special-cased handling.
	pairs := usages
	if isTexture {
		initial := framegraph.ResourceUsage{
			Resource: resource, Type: framegraph.UsageFrameStartLayoutTransitionCheck,
			CommandRange: framegraph.FrameInitialRange, ActiveRange: framegraph.Full(),
			PassIndex: -1,
		}
		pairs = append([]framegraph.ResourceUsage{initial}, usages...)
	}
	for i := 0; i+1 < len(pairs); i++ {
		prev, next := pairs[i], pairs[i+1]
		needsDep := prev.Type.IsWrite() || next.Type.IsWrite() ||
			(prev.Type.IsRenderTarget() && next.Type.IsRenderTarget() && prev.Type != next.Type)
		if prev.Type == framegraph.UsageFrameStartLayoutTransitionCheck {
			needsDep = true
		}
		if !needsDep {
			continue
		}
		cmds, err := emitDependency(resource, isTexture, depthStencil, prev, next, tracker, ctx)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, cmds...)
	}

	// Step 3: end-of-life command.
	last := usages[len(usages)-1]
	var wait *StoreWait
	if resource.Flags.Has(framegraph.FlagPersistent) {
		if last.Type.IsWrite() {
			storeCmd := framegraph.ResourceCommand{
				CommandIndex: last.CommandRange.End,
				Order:        framegraph.OrderAfter,
				Kind:         framegraph.CmdStoreResource,
				Resource:     resource,
				EncoderID:    ctx.EncoderID(last.CommandRange.End - 1),
			}
			// Persisted textures always report finalLayout=GENERAL, since
			// the consuming frame resolves the carried layout from the
			// tracker snapshot rather than a render-pass finalLayout field
			// (spec S6).
			if isTexture {
				storeCmd.Barrier = framegraph.BarrierInfo{Resource: resource, NewLayout: vk.ImageLayoutGeneral}
			}
			out = append(out, storeCmd)
			wait = &StoreWait{Resource: resource, Encoder: ctx.EncoderID(last.CommandRange.End - 1)}
		}
	} else {
		disposeKind := framegraph.CmdDisposeBuffer
		if isTexture {
			disposeKind = framegraph.CmdDisposeTexture
		}
		out = append(out, framegraph.ResourceCommand{
			CommandIndex: last.CommandRange.End,
			Order:        framegraph.OrderAfter,
			Kind:         disposeKind,
			Resource:     resource,
		})
	}

	return out, wait, nil
}

// emitDependency implements spec §4.3 step 2's strategy selection between
// one adjacent (prev, next) usage pair.
func emitDependency(resource framegraph.ResourceHandle, isTexture, depthStencil bool, prev, next framegraph.ResourceUsage, tracker *layout.Tracker, ctx CommandContext) ([]framegraph.ResourceCommand, error) {
	srcAccess := prev.Type.AccessMask(depthStencil)
	dstAccess := next.Type.AccessMask(depthStencil)
	srcStage := prev.Type.StageMask(depthStencil, prev.Stages)
	dstStage := next.Type.StageMask(depthStencil, next.Stages)

	var oldLayout, newLayout vk.ImageLayout
	var subresources []mask.Rect
	if isTexture && tracker != nil {
		activeMask := tracker.FullMask()
		if prev.ActiveRange.Kind == framegraph.RangeTexture {
			activeMask = prev.ActiveRange.Subresources
		}
		oldLayout = tracker.Layout(prev.CommandRange.Start, activeMask)
		newLayout = tracker.Layout(next.CommandRange.Start, activeMask)
		subresources = activeMask.Iterate()
	}

	// The frame-start virtual usage never crosses an encoder or queue —
	// nothing produced the resource's UNDEFINED/carried layout — so it
	// always resolves to a plain pipeline barrier, never an event or
	// semaphore (spec S1).
	if prev.Type == framegraph.UsageFrameStartLayoutTransitionCheck {
		if !isTexture || oldLayout == newLayout {
			return nil, nil
		}
		return []framegraph.ResourceCommand{{
			CommandIndex: next.CommandRange.Start,
			Order:        framegraph.OrderBefore,
			Kind:         framegraph.CmdPipelineBarrier,
			Resource:     resource,
			Barrier: framegraph.BarrierInfo{
				SrcStageMask: vk.PipelineStageFlagBits(vk.PipelineStageTopOfPipeBit), DstStageMask: dstStage,
				SrcAccessMask: 0, DstAccessMask: dstAccess,
				OldLayout: oldLayout, NewLayout: newLayout,
				Resource:       resource,
				Subresources:   toSubresourceRects(subresources),
				SrcQueueFamily: uint32(vk.QueueFamilyIgnored),
				DstQueueFamily: uint32(vk.QueueFamilyIgnored),
			},
			EncoderID: ctx.EncoderID(next.CommandRange.Start),
		}}, nil
	}

	prevDesc, prevSubpass, prevIn := ctx.Subpass(prev.CommandRange.Start)
	nextDesc, nextSubpass, nextIn := ctx.Subpass(next.CommandRange.Start)
	sameRenderPass := prevIn && nextIn && prevDesc == nextDesc

	if sameRenderPass {
		prevDesc.AddDependency(prevSubpass, nextSubpass, srcStage, dstStage, srcAccess, dstAccess, true)
		if prevSubpass == nextSubpass {
			// Intra-subpass: records a self-dependency on the subpass. The
			// layouts on both sides stay as the tracker resolved them; no
			// GENERAL layout is forced here.
			prevDesc.AddSelfDependency(prevSubpass, srcStage, dstStage, srcAccess, dstAccess)
			core.LogWarn("rescmd: intra-subpass dependency on %v recorded as a subpass self-dependency", resource)
		}
		return nil, nil
	}

	prevQueue := ctx.QueueFamily(prev.CommandRange.Start)
	nextQueue := ctx.QueueFamily(next.CommandRange.Start)
	prevEncoder := ctx.EncoderID(prev.CommandRange.Start)
	nextEncoder := ctx.EncoderID(next.CommandRange.Start)

	barrier := framegraph.BarrierInfo{
		SrcStageMask: srcStage, DstStageMask: dstStage,
		SrcAccessMask: srcAccess, DstAccessMask: dstAccess,
		Resource:       resource,
		Subresources:   toSubresourceRects(subresources),
		SrcQueueFamily: uint32(vk.QueueFamilyIgnored),
		DstQueueFamily: uint32(vk.QueueFamilyIgnored),
	}
	if isTexture {
		barrier.OldLayout, barrier.NewLayout = oldLayout, newLayout
	}

	if prevQueue != nextQueue {
		barrier.SrcQueueFamily, barrier.DstQueueFamily = prevQueue, nextQueue
		cmds := []framegraph.ResourceCommand{
			{
				CommandIndex: prev.CommandRange.End,
				Order:        framegraph.OrderAfter,
				Kind:         framegraph.CmdSignalSemaphore,
				Resource:     resource,
				EventStages:  srcStage,
				EncoderID:    prevEncoder,
			},
			{
				CommandIndex: next.CommandRange.Start,
				Order:        framegraph.OrderBefore,
				Kind:         framegraph.CmdWaitForSemaphore,
				Resource:     resource,
				Barrier:      barrier,
				EventStages:  dstStage,
				EncoderID:    nextEncoder,
			},
		}
		return cmds, nil
	}

	if prevEncoder != nextEncoder && (prev.Type.IsWrite() || next.Type.IsWrite()) {
		cmds := []framegraph.ResourceCommand{
			{
				CommandIndex: prev.CommandRange.End,
				Order:        framegraph.OrderAfter,
				Kind:         framegraph.CmdSignalEvent,
				Resource:     resource,
				EventStages:  srcStage,
				EncoderID:    prevEncoder,
				PairEncoderID: nextEncoder,
			},
			{
				CommandIndex: next.CommandRange.Start,
				Order:        framegraph.OrderBefore,
				Kind:         framegraph.CmdWaitForEvent,
				Resource:     resource,
				Barrier:      barrier,
				EncoderID:    nextEncoder,
				PairEncoderID: prevEncoder,
			},
		}
		return cmds, nil
	}

	if isTexture && oldLayout != newLayout {
		return []framegraph.ResourceCommand{{
			CommandIndex: next.CommandRange.Start,
			Order:        framegraph.OrderBefore,
			Kind:         framegraph.CmdPipelineBarrier,
			Resource:     resource,
			Barrier:      barrier,
			EncoderID:    nextEncoder,
		}}, nil
	}

	return nil, nil
}

func toSubresourceRects(rects []mask.Rect) []framegraph.SubresourceRect {
	out := make([]framegraph.SubresourceRect, len(rects))
	for i, r := range rects {
		out[i] = framegraph.SubresourceRect{
			BaseLayer: r.BaseLayer, LayerCount: r.LayerCount,
			BaseLevel: r.BaseLevel, LevelCount: r.LevelCount,
		}
	}
	return out
}
