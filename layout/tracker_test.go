package layout

import (
	"testing"

	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/mask"

	vk "github.com/goki/vulkan"
)

func fullRangeUsage(cmd framegraph.CommandRange, t framegraph.UsageType) framegraph.ResourceUsage {
	return framegraph.ResourceUsage{
		Type:         t,
		CommandRange: cmd,
		ActiveRange:  framegraph.Full(),
	}
}

func TestLayoutCoverageNoPanic(t *testing.T) {
	tr := NewTracker(1, 1)
	usages := []framegraph.ResourceUsage{
		fullRangeUsage(framegraph.CommandRange{Start: 0, End: 1}, framegraph.UsageBlitDestination),
		fullRangeUsage(framegraph.CommandRange{Start: 1, End: 2}, framegraph.UsageBlitSource),
	}
	tr.RecomputeForFrame(usages, false, false)

	for i := 0; i < 2; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("unexpected panic at command %d: %v", i, r)
				}
			}()
			tr.Layout(i, mask.Full(1, 1))
		}()
	}
}

func TestS1SingleBlit(t *testing.T) {
	tr := NewTracker(1, 1)
	usages := []framegraph.ResourceUsage{
		fullRangeUsage(framegraph.CommandRange{Start: 0, End: 1}, framegraph.UsageBlitDestination),
	}
	tr.RecomputeForFrame(usages, false, false)

	init, cov, rem := tr.FrameInitialLayout(mask.Full(1, 1))
	if init != vk.ImageLayoutUndefined {
		t.Fatalf("expected UNDEFINED initial layout, got %v", init)
	}
	if cov.Count() != 1 || !rem.IsEmpty() {
		t.Fatalf("expected full coverage of the single subresource")
	}
	got := tr.Layout(0, mask.Full(1, 1))
	if got != vk.ImageLayoutTransferDstOptimal {
		t.Fatalf("expected TRANSFER_DST_OPTIMAL, got %v", got)
	}
}

func TestReadRunCoalescing(t *testing.T) {
	tr := NewTracker(1, 1)
	usages := []framegraph.ResourceUsage{
		fullRangeUsage(framegraph.CommandRange{Start: 0, End: 1}, framegraph.UsageSampler),        // SHADER_READ_ONLY_OPTIMAL
		fullRangeUsage(framegraph.CommandRange{Start: 1, End: 2}, framegraph.UsageBlitSource),      // TRANSFER_SRC_OPTIMAL
		fullRangeUsage(framegraph.CommandRange{Start: 2, End: 3}, framegraph.UsageBlitSource),
	}
	tr.RecomputeForFrame(usages, false, false)

	for i := 0; i < 3; i++ {
		l := tr.Layout(i, mask.Full(1, 1))
		if l != vk.ImageLayoutGeneral {
			t.Fatalf("command %d: expected coalesced GENERAL layout, got %v", i, l)
		}
	}
}

func TestRenderPassLayoutsSwapchainFinal(t *testing.T) {
	tr := NewTracker(1, 1)
	usages := []framegraph.ResourceUsage{
		fullRangeUsage(framegraph.CommandRange{Start: 0, End: 1}, framegraph.UsageWriteOnlyRenderTarget),
	}
	tr.RecomputeForFrame(usages, false, false)

	initial, final := tr.RenderPassLayouts(-1, -1, 0, 0, true)
	if initial != vk.ImageLayoutUndefined {
		t.Fatalf("expected UNDEFINED initial, got %v", initial)
	}
	if final != vk.ImageLayoutPresentSrc {
		t.Fatalf("expected PRESENT_SRC_KHR final, got %v", final)
	}
}

func TestHistoryBufferCarriesAcrossFrames(t *testing.T) {
	tr := NewTracker(1, 1)
	frameN := []framegraph.ResourceUsage{
		fullRangeUsage(framegraph.CommandRange{Start: 0, End: 1}, framegraph.UsageWrite),
	}
	tr.RecomputeForFrame(frameN, false, false)

	// frame n+1: preserve last layout, no usages before the first read.
	tr.RecomputeForFrame(nil, true, false)
	l, cov, rem := tr.FrameInitialLayout(mask.Full(1, 1))
	if l != vk.ImageLayoutGeneral {
		t.Fatalf("expected carried GENERAL layout, got %v", l)
	}
	if cov.Count() != 1 || !rem.IsEmpty() {
		t.Fatalf("expected full coverage from carried state")
	}
}
