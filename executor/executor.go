package executor

import (
	"sort"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/compactor"
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/planner"
	"github.com/spaghettifunk/vkframegraph/registry"
	"github.com/spaghettifunk/vkframegraph/rescmd"
)

// Executor drives one frame through plan -> generate -> compact -> record,
// per spec §4.5. It owns no Vulkan state directly; every vkCmd* call goes
// through Translator, and every resource lookup through Registries.
type Executor struct {
	Registries *registry.Registries
	Translator Translator
}

func New(registries *registry.Registries, t Translator) *Executor {
	return &Executor{Registries: registries, Translator: t}
}

// pendingWork accumulates the resource-command closures due immediately
// before/after a given command index, mirroring spec §4.5 step 4's
// "advance a resource-command cursor" description.
type pendingWork struct {
	before []func() error
	after  []func() error
}

func (p *pendingWork) add(order framegraph.CommandOrder, fn func() error) {
	if order == framegraph.OrderBefore {
		p.before = append(p.before, fn)
	} else {
		p.after = append(p.after, fn)
	}
}

// SubmitFrame runs the full frame compile-and-record pipeline and submits
// the resulting command buffers.
func (e *Executor) SubmitFrame(inputs framegraph.FrameInputs) error {
	// The registries' per-frame reset drops every transient entry, so it
	// runs once this frame is recorded and submitted: the transient handles
	// the caller declared for this frame must resolve while it compiles.
	defer e.Registries.PrepareFrame()
	if err := e.Translator.PrepareFrame(); err != nil {
		return err
	}

	descriptors, placement := planner.Plan(inputs.Passes, inputs.ResourceUsages)
	encMgr := BuildEncoders(inputs.Passes, descriptors, placement)

	trackers, isDepthStencil := e.prepareTrackers(inputs.ResourceUsages)
	resolveRenderPassLayouts(descriptors, trackers)

	cmds, storeWaits, err := rescmd.Generate(inputs, trackers, isDepthStencil, encMgr)
	if err != nil {
		return err
	}

	compacted := compactor.Compact(cmds, inputs.EncoderDependencies, encMgr)

	cursor := make(map[int]*pendingWork)
	at := func(idx int) *pendingWork {
		pw := cursor[idx]
		if pw == nil {
			pw = &pendingWork{}
			cursor[idx] = pw
		}
		return pw
	}

	for _, raw := range cmds {
		c := raw
		switch c.Kind {
		case framegraph.CmdMaterialiseBuffer:
			entry := e.Registries.Entry(c.Resource)
			at(c.CommandIndex).add(c.Order, func() error {
				return e.Translator.MaterialiseBuffer(c.Resource, *entry.Buffer, c.AggregatedBufferUsage)
			})
		case framegraph.CmdMaterialiseTexture:
			entry := e.Registries.Entry(c.Resource)
			isWindow := c.Resource.Flags.Has(framegraph.FlagWindowHandle)
			at(c.CommandIndex).add(c.Order, func() error {
				return e.Translator.MaterialiseTexture(c.Resource, *entry.Texture, c.AggregatedImageUsage, isWindow)
			})
		case framegraph.CmdDisposeBuffer:
			at(c.CommandIndex).add(c.Order, func() error { e.Translator.DisposeBuffer(c.Resource); return nil })
		case framegraph.CmdDisposeTexture:
			at(c.CommandIndex).add(c.Order, func() error { e.Translator.DisposeTexture(c.Resource); return nil })
		case framegraph.CmdStoreResource:
			at(c.CommandIndex).add(c.Order, func() error {
				value, err := e.Translator.StoreResource(c.Resource, c.Barrier)
				if err != nil {
					return err
				}
				e.Registries.Persistent.RecordStoreWait(c.Resource, value)
				return nil
			})
		case framegraph.CmdSignalSemaphore:
			at(c.CommandIndex).add(c.Order, func() error { return e.Translator.SignalSemaphore(c.EncoderID, c.Resource) })
		case framegraph.CmdWaitForSemaphore:
			at(c.CommandIndex).add(c.Order, func() error { return e.Translator.WaitSemaphore(c.EncoderID, c.Resource, c.Barrier.DstStageMask) })
		default:
			// CmdSignalEvent/CmdWaitForEvent/CmdPipelineBarrier are consumed
			// by the compactor above; nothing to schedule from the raw form.
		}
	}
	if len(storeWaits) > 0 {
		core.LogDebug("executor: %d persistent resource(s) stored this frame", len(storeWaits))
	}

	for _, raw := range compacted {
		c := raw
		var fn func() error
		switch c.Kind {
		case framegraph.CompactSignalEvent:
			fn = func() error { return e.Translator.SignalEvent(encMgr.EncoderID(c.CommandIndex), c.Event, c.AfterStages) }
		case framegraph.CompactWaitForEvents:
			fn = func() error {
				return e.Translator.WaitEvents(encMgr.EncoderID(c.CommandIndex), c.Events, c.WaitSrcStages, c.WaitDstStages, c.BufferBarriers, c.ImageBarriers)
			}
		case framegraph.CompactPipelineBarrier:
			fn = func() error {
				return e.Translator.PipelineBarrier(encMgr.EncoderID(c.CommandIndex), c.WaitSrcStages, c.WaitDstStages, c.BufferBarriers, c.ImageBarriers)
			}
		}
		if fn != nil {
			at(c.CommandIndex).add(c.Order, fn)
		}
	}

	if err := e.recordPasses(inputs.Passes, placement, descriptors, encMgr, cursor); err != nil {
		return err
	}

	return e.Translator.Submit(inputs.OnComplete)
}

// recordPasses walks passes in order, opening/closing encoders and render
// passes as spec §4.5 step 3 describes, interleaving each command index's
// due resource-command work around the pass's own recorded commands.
func (e *Executor) recordPasses(passes []framegraph.PassRecord, placement []planner.PlannedPass, descriptors []*framegraph.DrawRenderPassDescriptor, encMgr *EncoderManager, cursor map[int]*pendingWork) error {
	var openEncoder framegraph.EncoderID = -1
	openDescIdx := -1
	openIsDraw := false

	runAt := func(idx int, which func(*pendingWork) []func() error) error {
		pw, ok := cursor[idx]
		if !ok {
			return nil
		}
		for _, fn := range which(pw) {
			if err := fn(); err != nil {
				return err
			}
		}
		return nil
	}
	consume := func(idx int) {
		delete(cursor, idx)
	}

	for i, p := range passes {
		encID := encMgr.EncoderOf(i)
		if encID != openEncoder {
			if openEncoder >= 0 {
				if openIsDraw {
					if err := e.Translator.EndRenderPass(openEncoder); err != nil {
						return err
					}
				}
				if err := e.Translator.EndEncoder(openEncoder); err != nil {
					return err
				}
			}
			if err := e.Translator.BeginEncoder(encID, p.Kind, p.QueueFamily); err != nil {
				return err
			}
			openEncoder = encID
			openDescIdx = -1
			openIsDraw = false
		}

		if p.Kind == framegraph.PassDraw && p.RenderTarget != nil {
			pl := placement[i]
			openIsDraw = true
			if pl.DescriptorIndex != openDescIdx {
				if err := e.Translator.BeginRenderPass(encID, descriptors[pl.DescriptorIndex], pl.DescriptorIndex); err != nil {
					return err
				}
				openDescIdx = pl.DescriptorIndex
			} else if err := e.Translator.NextSubpass(encID); err != nil {
				return err
			}
		}

		cmdAt := make(map[int]framegraph.EncodedCommand, len(p.Commands))
		for _, c := range p.Commands {
			cmdAt[c.Index()] = c
		}

		for idx := p.CommandRange.Start; idx < p.CommandRange.End; idx++ {
			if err := runAt(idx, func(pw *pendingWork) []func() error { return pw.before }); err != nil {
				return err
			}
			if cmd, ok := cmdAt[idx]; ok {
				if err := e.Translator.RecordUserCommand(encID, cmd); err != nil {
					return err
				}
			}
			if err := runAt(idx, func(pw *pendingWork) []func() error { return pw.after }); err != nil {
				return err
			}
			consume(idx)
		}
	}

	if openEncoder >= 0 {
		if openIsDraw {
			if err := e.Translator.EndRenderPass(openEncoder); err != nil {
				return err
			}
		}
		if err := e.Translator.EndEncoder(openEncoder); err != nil {
			return err
		}
	}

	// Anything left (end-of-frame dispose/store past the last pass's
	// command range) runs after every encoder has closed.
	var remaining []int
	for idx := range cursor {
		remaining = append(remaining, idx)
	}
	sort.Ints(remaining)
	for _, idx := range remaining {
		pw := cursor[idx]
		for _, fn := range pw.before {
			if err := fn(); err != nil {
				return err
			}
		}
		for _, fn := range pw.after {
			if err := fn(); err != nil {
				return err
			}
		}
	}

	return nil
}

// resolveRenderPassLayouts fills in each planned render pass's per-attachment
// initial/final layouts from its texture's tracker, once trackers have been
// recomputed for the frame (spec §4.1/§4.2 interaction: the planner builds
// the subpass structure before any tracker exists for this frame, so the
// layouts themselves can only be resolved afterward).
func resolveRenderPassLayouts(descriptors []*framegraph.DrawRenderPassDescriptor, trackers rescmd.ResourceTrackers) {
	for _, d := range descriptors {
		d.ColorInitialLayouts = make([]vk.ImageLayout, len(d.ColorAttachments))
		d.ColorFinalLayouts = make([]vk.ImageLayout, len(d.ColorAttachments))
		for i, att := range d.ColorAttachments {
			tr := trackers[att.Texture]
			if tr == nil {
				continue
			}
			isSwapchain := att.Texture.Flags.Has(framegraph.FlagWindowHandle)
			d.ColorInitialLayouts[i], d.ColorFinalLayouts[i] = tr.RenderPassLayouts(
				d.PreviousUsageCommand[i], d.NextUsageCommand[i], att.Slice, att.Level, isSwapchain)
		}
		if d.DepthAttachment != nil {
			if tr := trackers[d.DepthAttachment.Texture]; tr != nil {
				slot := len(d.ColorAttachments)
				d.DepthInitialLayout, d.DepthFinalLayout = tr.RenderPassLayouts(
					d.PreviousUsageCommand[slot], d.NextUsageCommand[slot], d.DepthAttachment.Slice, d.DepthAttachment.Level, false)
			}
		}
	}
}

// prepareTrackers recomputes every referenced texture's layout tracker for
// this frame (spec §4.1) and builds the per-resource depth/stencil
// predicate rescmd.Generate needs for layout resolution.
func (e *Executor) prepareTrackers(usages map[framegraph.ResourceHandle][]framegraph.ResourceUsage) (rescmd.ResourceTrackers, rescmd.IsDepthStencil) {
	trackers := make(rescmd.ResourceTrackers)
	depthStencil := make(map[framegraph.ResourceHandle]bool)

	for h, us := range usages {
		if h.Kind != framegraph.KindTexture {
			continue
		}
		entry := e.Registries.Entry(h)
		if entry == nil || entry.Tracker == nil {
			core.LogWarn("executor: texture handle %v has no registry entry/tracker; skipping layout tracking", h)
			continue
		}
		isDS := entry.Texture != nil && entry.Texture.IsDepthStencil()
		depthStencil[h] = isDS
		preserveLast := h.Flags.Has(framegraph.FlagPersistent) || h.Flags.Has(framegraph.FlagHistoryBuffer)
		entry.Tracker.RecomputeForFrame(us, preserveLast, isDS)
		trackers[h] = entry.Tracker
	}

	return trackers, func(h framegraph.ResourceHandle) bool { return depthStencil[h] }
}
