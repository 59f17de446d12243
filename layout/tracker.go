// Package layout implements the per-image layout tracker: the timeline of
// (command-range, VkImageLayout, subresource-range) entries a texture
// moves through across a frame, plus the read-run coalescing pass and the
// render-pass initial/final layout queries the planner and resource-
// command generator depend on.
package layout

import (
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/mask"

	vk "github.com/goki/vulkan"
)

type entry struct {
	Range        framegraph.CommandRange
	Layout       vk.ImageLayout
	Subresources mask.Mask
}

// isReadLayout reports whether l is one of the read-only layouts the
// coalescing pass watches for disagreement: TRANSFER_SRC_OPTIMAL,
// SHADER_READ_ONLY_OPTIMAL, or GENERAL.
func isReadLayout(l vk.ImageLayout) bool {
	switch l {
	case vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutGeneral:
		return true
	default:
		return false
	}
}

// Tracker owns one image's layout timeline across one frame, plus whatever
// state it carries into the next frame for persistent/history resources.
type Tracker struct {
	layers, levels int
	entries        []entry
	carried        []entry // snapshot of the final state, used when preserveLastLayout
}

// NewTracker constructs an empty tracker sized for a texture with the
// given array length and mip-level count.
func NewTracker(layers, levels int) *Tracker {
	return &Tracker{layers: layers, levels: levels}
}

// RecomputeForFrame resets the timeline and replays usages in declaration
// order.
func (t *Tracker) RecomputeForFrame(usages []framegraph.ResourceUsage, preserveLastLayout bool, isDepthStencil bool) {
	t.entries = nil

	initial := entry{
		Range:        framegraph.FrameInitialRange,
		Layout:       vk.ImageLayoutUndefined,
		Subresources: mask.Full(t.layers, t.levels),
	}
	if preserveLastLayout && t.carried != nil {
		for _, c := range t.carried {
			t.entries = append(t.entries, entry{
				Range:        framegraph.FrameInitialRange,
				Layout:       c.Layout,
				Subresources: c.Subresources,
			})
		}
	} else {
		t.entries = append(t.entries, initial)
	}

	usageEntryStart := make([]int, len(usages)+1)
	for i, u := range usages {
		usageEntryStart[i] = len(t.entries)
		active := t.activeMask(u)
		layout, hasReq := u.Type.ImageLayout(isDepthStencil)
		if hasReq {
			t.entries = append(t.entries, entry{Range: u.CommandRange, Layout: layout, Subresources: active})
		} else {
			t.inheritLayout(u.CommandRange, active)
		}
	}
	usageEntryStart[len(usages)] = len(t.entries)

	t.coalesceReadRuns(usages, usageEntryStart)
	t.carried = t.snapshotFinal()
}

// activeMask extracts the subresource mask a usage touches; a FullResource
// active range expands to every subresource of this texture.
func (t *Tracker) activeMask(u framegraph.ResourceUsage) mask.Mask {
	switch u.ActiveRange.Kind {
	case framegraph.RangeFull:
		return mask.Full(t.layers, t.levels)
	case framegraph.RangeTexture:
		return u.ActiveRange.Subresources
	default:
		return mask.New(t.layers, t.levels)
	}
}

// inheritLayout appends entries carrying forward whatever layout each
// subresource in `active` currently holds, by scanning previously
// appended entries in reverse declaration order — the most recent entry
// touching a subresource is authoritative. This is how a usage with no
// required layout is recorded: it inherits whatever layout currently
// holds over the intersecting subresource, without forcing artificial
// uniformity across heterogeneous regions.
func (t *Tracker) inheritLayout(r framegraph.CommandRange, active mask.Mask) {
	remaining := active
	n := len(t.entries)
	for i := n - 1; i >= 0 && !remaining.IsEmpty(); i-- {
		e := t.entries[i]
		overlap := mask.Intersect(e.Subresources, remaining)
		if overlap.IsEmpty() {
			continue
		}
		t.entries = append(t.entries, entry{Range: r, Layout: e.Layout, Subresources: overlap})
		remaining = mask.Subtract(remaining, overlap)
	}
	if !remaining.IsEmpty() {
		// Full-resource coverage invariant should make this unreachable;
		// fall back to UNDEFINED rather than silently dropping bits.
		t.entries = append(t.entries, entry{Range: r, Layout: vk.ImageLayoutUndefined, Subresources: remaining})
	}
}

// coalesceReadRuns implements read-run coalescing: a maximal run of
// consecutive usages that are all pure reads with a layout drawn from the
// read set, where overlapping subresources across the run disagree on
// layout, collapses into one GENERAL entry spanning the run.
func (t *Tracker) coalesceReadRuns(usages []framegraph.ResourceUsage, starts []int) {
	n := len(usages)
	runStart := -1
	flush := func(runEnd int) {
		if runStart < 0 || runEnd-runStart < 2 {
			runStart = -1
			return
		}
		if !t.runDisagrees(usages, starts, runStart, runEnd) {
			runStart = -1
			return
		}
		t.collapseRun(usages, starts, runStart, runEnd)
		runStart = -1
	}
	for i := 0; i < n; i++ {
		u := usages[i]
		l, hasReq := u.Type.ImageLayout(false)
		qualifies := u.Type.IsRead() && !u.Type.IsWrite() && hasReq && isReadLayout(l)
		if qualifies {
			if runStart < 0 {
				runStart = i
			}
		} else {
			flush(i)
		}
	}
	flush(n)
}

// runDisagrees reports whether, among usages[start:end], any two overlap
// in subresources while requiring different layouts.
func (t *Tracker) runDisagrees(usages []framegraph.ResourceUsage, starts []int, start, end int) bool {
	for i := start; i < end; i++ {
		li, _ := usages[i].Type.ImageLayout(false)
		mi := t.activeMask(usages[i])
		for j := i + 1; j < end; j++ {
			lj, _ := usages[j].Type.ImageLayout(false)
			if li == lj {
				continue
			}
			mj := t.activeMask(usages[j])
			if mask.Intersects(mi, mj) {
				return true
			}
		}
	}
	return false
}

// collapseRun replaces the per-usage entries for usages[start:end] with a
// single GENERAL entry spanning their combined command range and
// subresource union.
func (t *Tracker) collapseRun(usages []framegraph.ResourceUsage, starts []int, start, end int) {
	lo := starts[start]
	hi := starts[end]
	combined := usages[start].CommandRange
	union := mask.New(t.layers, t.levels)
	for i := start; i < end; i++ {
		if usages[i].CommandRange.Start < combined.Start {
			combined.Start = usages[i].CommandRange.Start
		}
		if usages[i].CommandRange.End > combined.End {
			combined.End = usages[i].CommandRange.End
		}
		union = mask.Union(union, t.activeMask(usages[i]))
	}
	replacement := entry{Range: combined, Layout: vk.ImageLayoutGeneral, Subresources: union}
	t.entries = append(t.entries[:lo], append([]entry{replacement}, t.entries[hi:]...)...)
	core.LogWarn("layout: overlapping usages on the same resource forced a GENERAL layout for command range [%d, %d)", combined.Start, combined.End)

	// Shift every starts[] entry from `end` onward, including the sentinel
	// at len(usages), to account for the shrink, so later runs still index
	// the right entries.
	shift := hi - lo - 1
	for i := end; i < len(starts); i++ {
		starts[i] -= shift
	}
}

// FullMask returns a mask spanning every subresource this tracker's
// texture has, for callers (e.g. rescmd) that need to resolve a usage
// whose ActiveRange is FullResource into a concrete mask.
func (t *Tracker) FullMask() mask.Mask { return mask.Full(t.layers, t.levels) }

// FrameInitialLayout returns the layout held at frame start over
// `subresources`, plus the covered and uncovered-remainder subsets (spec
// §4.1). Call repeatedly over the remainder to cover heterogeneous
// frame-initial layouts.
func (t *Tracker) FrameInitialLayout(subresources mask.Mask) (layoutOut vk.ImageLayout, covered, remaining mask.Mask) {
	for _, e := range t.entries {
		if e.Range != framegraph.FrameInitialRange {
			continue
		}
		overlap := mask.Intersect(e.Subresources, subresources)
		if overlap.IsEmpty() {
			continue
		}
		return e.Layout, overlap, mask.Subtract(subresources, overlap)
	}
	return vk.ImageLayoutUndefined, mask.New(t.layers, t.levels), subresources
}

// Layout looks up the layout active at commandIndex over subresources. A
// single entry must fully contain both the command index and the
// requested subresource mask; if none does, this is a programmer error
// and panics via core.Panic naming the offending pair.
func (t *Tracker) Layout(commandIndex int, subresources mask.Mask) vk.ImageLayout {
	for _, e := range t.entries {
		if !e.Range.Contains(commandIndex) {
			continue
		}
		if mask.Subtract(subresources, e.Subresources).IsEmpty() {
			return e.Layout
		}
	}
	core.Panic(&core.Fault{
		Component:    "layout.Tracker",
		CommandIndex: commandIndex,
		Detail:       "no layout entry covers the requested subresource range",
	})
	return vk.ImageLayoutUndefined // unreachable; core.Panic never returns
}

// layoutForBit scans entries in reverse for the first whose subresource
// mask contains (layer, level); used where the caller only cares about a
// single subresource and heterogeneous neighbours are irrelevant.
func (t *Tracker) layoutForBit(layer, level int) (vk.ImageLayout, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Subresources.Test(layer, level) {
			return t.entries[i].Layout, true
		}
	}
	return vk.ImageLayoutUndefined, false
}

// RenderPassLayouts resolves the initial/final VkImageLayout a planned
// render pass instance should declare for one attachment subresource.
func (t *Tracker) RenderPassLayouts(previousCmd, nextCmd int, slice, level uint32, isSwapchain bool) (initial, final vk.ImageLayout) {
	if previousCmd < 0 {
		initial = vk.ImageLayoutUndefined
	} else {
		initial = t.Layout(previousCmd, singleBit(int(slice), int(level), t.layers, t.levels))
	}
	if nextCmd < 0 {
		if isSwapchain {
			final = vk.ImageLayoutPresentSrc
		} else if l, ok := t.layoutForBit(int(slice), int(level)); ok {
			final = l
		} else {
			final = vk.ImageLayoutUndefined
		}
	} else {
		final = t.Layout(nextCmd, singleBit(int(slice), int(level), t.layers, t.levels))
	}
	return initial, final
}

func singleBit(layer, level, layers, levels int) mask.Mask {
	m := mask.New(layers, levels)
	m.Set(layer, level)
	return m
}

// snapshotFinal captures, for every subresource, the layout it holds at
// the end of the frame, to be carried into next frame's frame-initial
// state for persistent/history resources.
func (t *Tracker) snapshotFinal() []entry {
	remaining := mask.Full(t.layers, t.levels)
	var out []entry
	for i := len(t.entries) - 1; i >= 0 && !remaining.IsEmpty(); i-- {
		e := t.entries[i]
		overlap := mask.Intersect(e.Subresources, remaining)
		if overlap.IsEmpty() {
			continue
		}
		out = append(out, entry{Range: framegraph.FrameInitialRange, Layout: e.Layout, Subresources: overlap})
		remaining = mask.Subtract(remaining, overlap)
	}
	return out
}
