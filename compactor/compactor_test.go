package compactor

import (
	"testing"

	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// fakeEncoderContext is a minimal EncoderContext: encoders map 1:1 to
// command indices, with configurable render-pass membership.
type fakeEncoderContext struct {
	encoderOf func(int) framegraph.EncoderID
	bounds    map[framegraph.EncoderID][2]int
	inRP      func(int) bool
}

func (f fakeEncoderContext) EncoderID(i int) framegraph.EncoderID { return f.encoderOf(i) }

func (f fakeEncoderContext) EncoderBounds(e framegraph.EncoderID) (int, int) {
	b := f.bounds[e]
	return b[0], b[1]
}

func (f fakeEncoderContext) InRenderPass(i int) bool {
	if f.inRP == nil {
		return false
	}
	return f.inRP(i)
}

func texHandle(idx uint32) framegraph.ResourceHandle {
	return framegraph.ResourceHandle{Kind: framegraph.KindTexture, Index: idx}
}

// TestSignalWaitUniqueness covers testable property #6: a hazard already
// implied by a longer chain through another encoder must not also get its
// own signal/wait event pair after transitive reduction.
func TestSignalWaitUniqueness(t *testing.T) {
	cmds := []framegraph.ResourceCommand{
		{Kind: framegraph.CmdSignalEvent, EncoderID: 0, PairEncoderID: 1, CommandIndex: 0},
		{Kind: framegraph.CmdWaitForEvent, EncoderID: 1, PairEncoderID: 0, CommandIndex: 1},
		{Kind: framegraph.CmdSignalEvent, EncoderID: 1, PairEncoderID: 2, CommandIndex: 1},
		{Kind: framegraph.CmdWaitForEvent, EncoderID: 2, PairEncoderID: 1, CommandIndex: 2},
		// Redundant: 0->2 is already implied by 0->1->2.
		{Kind: framegraph.CmdSignalEvent, EncoderID: 0, PairEncoderID: 2, CommandIndex: 0},
		{Kind: framegraph.CmdWaitForEvent, EncoderID: 2, PairEncoderID: 0, CommandIndex: 2},
	}
	ctx := fakeEncoderContext{
		encoderOf: func(i int) framegraph.EncoderID { return framegraph.EncoderID(i) },
		bounds: map[framegraph.EncoderID][2]int{
			0: {0, 0}, 1: {1, 1}, 2: {2, 2},
		},
	}

	out := Compact(cmds, nil, ctx)

	var signals int
	for _, c := range out {
		if c.Kind == framegraph.CompactSignalEvent {
			signals++
		}
	}
	if signals != 2 {
		t.Fatalf("expected exactly 2 signal events (0->1, 1->2) after transitive reduction, got %d: %+v", signals, out)
	}
}

// TestBarrierNonOverlap covers testable property #7: distinct subresource
// barriers targeting the same image must survive the batching pass as
// separate entries, never folded into one barrier covering their union.
func TestBarrierNonOverlap(t *testing.T) {
	tex := texHandle(9)
	rectA := []framegraph.SubresourceRect{{BaseLayer: 0, LayerCount: 1, BaseLevel: 0, LevelCount: 1}}
	rectB := []framegraph.SubresourceRect{{BaseLayer: 1, LayerCount: 1, BaseLevel: 0, LevelCount: 1}}
	cmds := []framegraph.ResourceCommand{
		{
			Kind: framegraph.CmdPipelineBarrier, CommandIndex: 0,
			Barrier: framegraph.BarrierInfo{Resource: tex, OldLayout: 1, NewLayout: 2, Subresources: rectA},
		},
		{
			Kind: framegraph.CmdPipelineBarrier, CommandIndex: 0,
			Barrier: framegraph.BarrierInfo{Resource: tex, OldLayout: 1, NewLayout: 2, Subresources: rectB},
		},
	}
	ctx := fakeEncoderContext{
		encoderOf: func(int) framegraph.EncoderID { return 0 },
		bounds:    map[framegraph.EncoderID][2]int{0: {0, 0}},
	}

	out := Compact(cmds, nil, ctx)

	var barrier *framegraph.CompactedCommand
	for i := range out {
		if out[i].Kind == framegraph.CompactPipelineBarrier {
			barrier = &out[i]
		}
	}
	if barrier == nil {
		t.Fatalf("expected one batched pipeline barrier, got %+v", out)
	}
	if len(barrier.ImageBarriers) != 2 {
		t.Fatalf("expected both disjoint subresource barriers preserved separately, got %d: %+v", len(barrier.ImageBarriers), barrier.ImageBarriers)
	}
	if barrier.ImageBarriers[0].Subresources[0] == barrier.ImageBarriers[1].Subresources[0] {
		t.Fatalf("expected the two barriers to cover disjoint subresources, both got %+v", barrier.ImageBarriers[0].Subresources[0])
	}
}

// TestNoBufferBarrierInsideRenderPass covers testable property #8: a
// barrier recorded while the owning encoder has a render pass open must
// never be emitted at that command index — it is deferred to the
// encoder's boundary instead (spec §4.2 "buffers are never barriered
// inside a render pass").
func TestNoBufferBarrierInsideRenderPass(t *testing.T) {
	buf := framegraph.ResourceHandle{Kind: framegraph.KindBuffer, Index: 3}
	cmds := []framegraph.ResourceCommand{
		{
			Kind: framegraph.CmdPipelineBarrier, CommandIndex: 2,
			Barrier: framegraph.BarrierInfo{Resource: buf},
		},
	}
	ctx := fakeEncoderContext{
		encoderOf: func(int) framegraph.EncoderID { return 0 },
		bounds:    map[framegraph.EncoderID][2]int{0: {0, 4}},
		inRP:      func(i int) bool { return i == 2 },
	}

	out := Compact(cmds, nil, ctx)

	if len(out) != 1 || out[0].Kind != framegraph.CompactPipelineBarrier {
		t.Fatalf("expected one compacted barrier, got %+v", out)
	}
	if out[0].CommandIndex == 2 {
		t.Fatalf("barrier must not land inside the open render pass at index 2, got %+v", out[0])
	}
	if out[0].CommandIndex != 4 {
		t.Fatalf("expected barrier deferred to the encoder's last command index (4), got %d", out[0].CommandIndex)
	}
	if len(out[0].BufferBarriers) != 1 {
		t.Fatalf("expected the deferred barrier to still be classified as a buffer barrier, got %+v", out[0])
	}
}
