// Package compactor implements the command compactor: it collapses the
// resource-command generator's raw per-resource signal/wait/barrier
// commands into the minimum number of Vulkan calls (spec §4.4).
package compactor

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"slices"
)

// EncoderContext answers which encoder owns a command index and whether
// that encoder has a render-target bound, so the barrier phase can apply
// the "never barrier inside a render pass" rule (spec §4.2/§4.4).
type EncoderContext interface {
	EncoderID(commandIndex int) framegraph.EncoderID
	// EncoderBounds returns [first, last] command index recorded by enc.
	EncoderBounds(enc framegraph.EncoderID) (first, last int)
	// InRenderPass reports whether commandIndex falls inside an open
	// VkRenderPass instance.
	InRenderPass(commandIndex int) bool
}

// Compact runs the two-phase algorithm spec §4.4 describes: first the
// event phase (cross-encoder hazards, transitively reduced to one
// signal/wait pair each), then the barrier phase (same-encoder hazards,
// batched into as few vkCmdPipelineBarrier calls as possible).
func Compact(cmds []framegraph.ResourceCommand, deps framegraph.DependencyTable, ctx EncoderContext) []framegraph.CompactedCommand {
	var out []framegraph.CompactedCommand
	out = append(out, eventPhase(cmds, deps, ctx)...)
	out = append(out, barrierPhase(cmds, ctx)...)

	slices.SortStableFunc(out, func(a, b framegraph.CompactedCommand) int {
		if a.CommandIndex != b.CommandIndex {
			return a.CommandIndex - b.CommandIndex
		}
		return int(a.Order) - int(b.Order)
	})
	return out
}

// pairCmds accumulates the raw signal/wait commands the generator emitted
// for one encoder-pair hazard, ahead of transitive reduction.
type pairCmds struct {
	signal    framegraph.ResourceCommand
	hasSignal bool
	waits     []framegraph.ResourceCommand
}

// eventPhase handles every CmdSignalEvent/CmdWaitForEvent the generator
// emitted, transitively reducing the encoder pair graph so a hazard
// already implied by another surviving pair doesn't also get its own
// event (spec §4.4 "transitive reduction").
func eventPhase(cmds []framegraph.ResourceCommand, deps framegraph.DependencyTable, ctx EncoderContext) []framegraph.CompactedCommand {
	pairs := make(map[framegraph.EncoderPair]*pairCmds)

	for _, c := range cmds {
		switch c.Kind {
		case framegraph.CmdSignalEvent:
			key := framegraph.EncoderPair{Src: c.EncoderID, Dst: c.PairEncoderID}
			p := pairs[key]
			if p == nil {
				p = &pairCmds{}
				pairs[key] = p
			}
			p.signal = c
			p.hasSignal = true
		case framegraph.CmdWaitForEvent:
			key := framegraph.EncoderPair{Src: c.PairEncoderID, Dst: c.EncoderID}
			p := pairs[key]
			if p == nil {
				p = &pairCmds{}
				pairs[key] = p
			}
			p.waits = append(p.waits, c)
		}
	}

	reduced := transitiveReduce(pairs)

	var out []framegraph.CompactedCommand
	for key, p := range pairs {
		if !reduced[key] {
			continue
		}
		if !p.hasSignal && len(p.waits) == 0 {
			continue
		}
		if subpassResolved(key, deps, ctx) {
			// Already carried entirely by a subpass dependency; nothing to
			// emit at the event level (spec §4.4 "skip entirely").
			continue
		}

		_, srcLast := ctx.EncoderBounds(key.Src)
		dstFirst, _ := ctx.EncoderBounds(key.Dst)

		signalIdx := p.signal.CommandIndex
		if ctx.InRenderPass(signalIdx) {
			// Signalling inside a render pass is forbidden; move to the
			// encoder's last command instead (spec §4.4).
			signalIdx = srcLast
		}
		out = append(out, framegraph.CompactedCommand{
			Kind:         framegraph.CompactSignalEvent,
			CommandIndex: signalIdx,
			Order:        framegraph.OrderAfter,
			Event:        eventKey(key),
			AfterStages:  p.signal.EventStages,
		})

		var bufBarriers, imgBarriers []framegraph.BarrierInfo
		var dstStages vk.PipelineStageFlagBits
		waitIdx := dstFirst
		for _, w := range p.waits {
			dstStages |= w.Barrier.SrcStageMask | w.Barrier.DstStageMask
			if w.Barrier.OldLayout == 0 && w.Barrier.NewLayout == 0 {
				bufBarriers = append(bufBarriers, w.Barrier)
			} else {
				imgBarriers = append(imgBarriers, w.Barrier)
			}
			if ctx.InRenderPass(w.CommandIndex) {
				continue
			}
			if w.CommandIndex < waitIdx {
				waitIdx = w.CommandIndex
			}
		}
		out = append(out, framegraph.CompactedCommand{
			Kind:           framegraph.CompactWaitForEvents,
			CommandIndex:   waitIdx,
			Order:          framegraph.OrderBefore,
			Events:         []uint64{eventKey(key)},
			WaitSrcStages:  p.signal.EventStages,
			WaitDstStages:  dstStages,
			BufferBarriers: bufBarriers,
			ImageBarriers:  imgBarriers,
		})
	}
	return out
}

// subpassResolved reports whether every fine-grained dependency behind
// this encoder pair is already carried by a subpass dependency the
// planner recorded — i.e. both ends are render-target usages inside the
// same planned render pass (spec §4.4's skip condition).
func subpassResolved(key framegraph.EncoderPair, deps framegraph.DependencyTable, ctx EncoderContext) bool {
	fine := deps[key]
	if len(fine) == 0 {
		return false
	}
	for _, f := range fine {
		if !f.SrcUsage.Type.IsRenderTarget() || !f.DstUsage.Type.IsRenderTarget() {
			return false
		}
	}
	return true
}

// transitiveReduce marks, for each encoder pair with a recorded hazard,
// whether it must still be represented as its own event — false when a
// longer chain through another encoder already enforces the ordering.
func transitiveReduce(pairs map[framegraph.EncoderPair]*pairCmds) map[framegraph.EncoderPair]bool {
	edges := make(map[framegraph.EncoderID]map[framegraph.EncoderID]bool)
	for k := range pairs {
		if edges[k.Src] == nil {
			edges[k.Src] = make(map[framegraph.EncoderID]bool)
		}
		edges[k.Src][k.Dst] = true
	}

	reachableExcluding := func(src, excludeDst framegraph.EncoderID) map[framegraph.EncoderID]bool {
		seen := make(map[framegraph.EncoderID]bool)
		var visit func(framegraph.EncoderID)
		visit = func(n framegraph.EncoderID) {
			for next := range edges[n] {
				if n == src && next == excludeDst {
					continue
				}
				if seen[next] {
					continue
				}
				seen[next] = true
				visit(next)
			}
		}
		visit(src)
		return seen
	}

	keep := make(map[framegraph.EncoderPair]bool, len(pairs))
	for k := range pairs {
		reach := reachableExcluding(k.Src, k.Dst)
		keep[k] = !reach[k.Dst]
	}
	return keep
}

func eventKey(p framegraph.EncoderPair) uint64 {
	return uint64(p.Src)<<32 | uint64(uint32(p.Dst))
}

// barrierPhase handles every CmdPipelineBarrier the generator emitted for
// same-encoder hazards, batching adjacent ones into a single
// vkCmdPipelineBarrier per spec §4.4's barrier-phase rules.
func barrierPhase(cmds []framegraph.ResourceCommand, ctx EncoderContext) []framegraph.CompactedCommand {
	var pending []framegraph.ResourceCommand
	var out []framegraph.CompactedCommand

	flush := func() {
		if len(pending) == 0 {
			return
		}
		var bufBarriers, imgBarriers []framegraph.BarrierInfo
		var srcStages, dstStages vk.PipelineStageFlagBits
		idx := pending[0].CommandIndex
		for _, c := range pending {
			srcStages |= c.Barrier.SrcStageMask
			dstStages |= c.Barrier.DstStageMask
			if c.Barrier.OldLayout == 0 && c.Barrier.NewLayout == 0 {
				bufBarriers = append(bufBarriers, c.Barrier)
			} else {
				imgBarriers = append(imgBarriers, c.Barrier)
			}
			if c.CommandIndex < idx {
				idx = c.CommandIndex
			}
		}
		out = append(out, framegraph.CompactedCommand{
			Kind:            framegraph.CompactPipelineBarrier,
			CommandIndex:    idx,
			Order:           framegraph.OrderBefore,
			WaitSrcStages:   srcStages,
			WaitDstStages:   dstStages,
			DependencyFlags: 0,
			BufferBarriers:  bufBarriers,
			ImageBarriers:   imgBarriers,
		})
		pending = nil
	}

	for _, c := range cmds {
		if c.Kind != framegraph.CmdPipelineBarrier {
			continue
		}
		if ctx.InRenderPass(c.CommandIndex) {
			// Buffers are never barriered inside a render pass (spec
			// §4.2); image layout-transition-only barriers inside a draw
			// encoder are deferred to the encoder boundary.
			_, last := ctx.EncoderBounds(ctx.EncoderID(c.CommandIndex))
			deferred := c
			deferred.CommandIndex = last
			pending = append(pending, deferred)
			continue
		}
		if len(pending) > 0 && c.CommandIndex > pending[0].CommandIndex {
			flush()
		}
		pending = append(pending, c)
	}
	flush()
	return out
}
