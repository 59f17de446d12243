package executor

import (
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/planner"
)

// encoderSpan records one assigned encoder's extent: the command-index
// range it covers and which passes landed in it.
type encoderSpan struct {
	id          framegraph.EncoderID
	kind        framegraph.PassKind
	queueFamily uint32
	first, last int
}

// EncoderManager assigns EncoderIDs to passes per spec §4.5 step 3:
// switching pass kind, queue family, or (for draws) render-target
// descriptor instance ends the current encoder and opens a new one. It
// implements both rescmd.CommandContext and compactor.EncoderContext so
// the executor builds it once per frame and hands it to every stage.
type EncoderManager struct {
	spans       []encoderSpan
	passEncoder []framegraph.EncoderID
	descriptors []*framegraph.DrawRenderPassDescriptor
	placement   []planner.PlannedPass
}

// BuildEncoders walks passes in order, assigning one EncoderID per maximal
// run of passes sharing kind, queue family, and (for draws) descriptor
// instance.
func BuildEncoders(passes []framegraph.PassRecord, descriptors []*framegraph.DrawRenderPassDescriptor, placement []planner.PlannedPass) *EncoderManager {
	m := &EncoderManager{
		passEncoder: make([]framegraph.EncoderID, len(passes)),
		descriptors: descriptors,
		placement:   placement,
	}

	haveCurrent := false
	var cur encoderSpan
	var curDescIdx int

	flush := func() {
		if haveCurrent {
			m.spans = append(m.spans, cur)
		}
	}

	for i, p := range passes {
		descIdx := -1
		if p.Kind == framegraph.PassDraw {
			descIdx = placement[i].DescriptorIndex
		}

		needsNew := !haveCurrent || p.Kind != cur.kind || p.QueueFamily != cur.queueFamily ||
			(p.Kind == framegraph.PassDraw && descIdx != curDescIdx)

		if needsNew {
			flush()
			id := framegraph.EncoderID(len(m.spans))
			cur = encoderSpan{id: id, kind: p.Kind, queueFamily: p.QueueFamily, first: p.CommandRange.Start, last: p.CommandRange.End - 1}
			curDescIdx = descIdx
			haveCurrent = true
		} else {
			if p.CommandRange.Start < cur.first {
				cur.first = p.CommandRange.Start
			}
			if p.CommandRange.End-1 > cur.last {
				cur.last = p.CommandRange.End - 1
			}
		}
		m.passEncoder[i] = cur.id
	}
	flush()

	return m
}

// EncoderOf returns the encoder a given pass index was assigned to.
func (m *EncoderManager) EncoderOf(passIndex int) framegraph.EncoderID {
	return m.passEncoder[passIndex]
}

func (m *EncoderManager) spanFor(commandIndex int) encoderSpan {
	for _, s := range m.spans {
		if commandIndex >= s.first && commandIndex <= s.last {
			return s
		}
	}
	// Falls outside every recorded pass range only for programmer error —
	// the generator only ever queries indices it read out of a PassRecord.
	return encoderSpan{id: -1}
}

// EncoderID implements both rescmd.CommandContext and
// compactor.EncoderContext.
func (m *EncoderManager) EncoderID(commandIndex int) framegraph.EncoderID {
	return m.spanFor(commandIndex).id
}

func (m *EncoderManager) QueueFamily(commandIndex int) uint32 {
	return m.spanFor(commandIndex).queueFamily
}

// EncoderBounds implements compactor.EncoderContext.
func (m *EncoderManager) EncoderBounds(enc framegraph.EncoderID) (first, last int) {
	for _, s := range m.spans {
		if s.id == enc {
			return s.first, s.last
		}
	}
	return 0, 0
}

// InRenderPass implements compactor.EncoderContext: true iff the owning
// encoder is a draw encoder (every draw encoder has exactly one open
// VkRenderPass instance for its whole span, per §4.5 step 3).
func (m *EncoderManager) InRenderPass(commandIndex int) bool {
	return m.spanFor(commandIndex).kind == framegraph.PassDraw
}

// Subpass implements rescmd.CommandContext: resolves commandIndex to the
// planned render-target descriptor and subpass index it falls within, if
// any pass at that command index is a fused draw pass.
func (m *EncoderManager) Subpass(commandIndex int) (*framegraph.DrawRenderPassDescriptor, int, bool) {
	for i, pl := range m.placement {
		// placement is parallel to passes; passEncoder gives us each
		// pass's span, so reuse spanFor's containment test per-pass here
		// instead of re-deriving ranges.
		if m.passEncoder[i] != m.spanFor(commandIndex).id {
			continue
		}
		if pl.DescriptorIndex < 0 || pl.DescriptorIndex >= len(m.descriptors) {
			continue
		}
		return m.descriptors[pl.DescriptorIndex], pl.SubpassIndex, true
	}
	return nil, 0, false
}
