package rescmd

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/layout"
)

// fakeContext is a minimal CommandContext: every command index maps to a
// fixed (encoder, queue family) pair, with no render-pass instances; no
// scenario test below gives its draw pass a render target.
type fakeContext struct {
	encoderFor func(int) framegraph.EncoderID
	queueFor   func(int) uint32
}

func (f fakeContext) EncoderID(i int) framegraph.EncoderID { return f.encoderFor(i) }
func (f fakeContext) QueueFamily(i int) uint32             { return f.queueFor(i) }
func (f fakeContext) Subpass(int) (*framegraph.DrawRenderPassDescriptor, int, bool) {
	return nil, 0, false
}

func texHandle(idx uint32) framegraph.ResourceHandle {
	return framegraph.ResourceHandle{Kind: framegraph.KindTexture, Index: idx}
}
func bufHandle(idx uint32) framegraph.ResourceHandle {
	return framegraph.ResourceHandle{Kind: framegraph.KindBuffer, Index: idx}
}

// TestS1SingleBlitMaterialiseBarrierDispose covers scenario S1: a single
// blit-destination usage should materialise, barrier UNDEFINED->TRANSFER_
// DST_OPTIMAL, and dispose — no events or semaphores since it never
// crosses an encoder/queue boundary relative to itself.
func TestS1SingleBlitMaterialiseBarrierDispose(t *testing.T) {
	tex := texHandle(1)
	usage := framegraph.ResourceUsage{
		Resource: tex, Type: framegraph.UsageBlitDestination,
		CommandRange: framegraph.CommandRange{Start: 0, End: 1},
		ActiveRange:  framegraph.Full(),
		PassIndex:    0,
	}
	tracker := layout.NewTracker(1, 1)
	tracker.RecomputeForFrame([]framegraph.ResourceUsage{usage}, false, false)

	inputs := framegraph.FrameInputs{
		Passes:         []framegraph.PassRecord{{Kind: framegraph.PassBlit, CommandRange: framegraph.CommandRange{Start: 0, End: 1}}},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{tex: {usage}},
	}
	ctx := fakeContext{
		encoderFor: func(int) framegraph.EncoderID { return 0 },
		queueFor:   func(int) uint32 { return 0 },
	}

	cmds, waits, err := Generate(inputs, ResourceTrackers{tex: tracker}, nil, ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(waits) != 0 {
		t.Fatalf("non-persistent resource must not record a store wait")
	}

	var hasMaterialise, hasBarrier, hasDispose, hasEvent, hasSemaphore bool
	for _, c := range cmds {
		switch c.Kind {
		case framegraph.CmdMaterialiseTexture:
			hasMaterialise = true
		case framegraph.CmdPipelineBarrier:
			hasBarrier = c.Barrier.OldLayout == vk.ImageLayoutUndefined && c.Barrier.NewLayout == vk.ImageLayoutTransferDstOptimal
		case framegraph.CmdDisposeTexture:
			hasDispose = true
		case framegraph.CmdSignalEvent, framegraph.CmdWaitForEvent:
			hasEvent = true
		case framegraph.CmdSignalSemaphore, framegraph.CmdWaitForSemaphore:
			hasSemaphore = true
		}
	}
	if !hasMaterialise || !hasDispose {
		t.Fatalf("expected materialise+dispose, got %+v", cmds)
	}
	if !hasBarrier {
		t.Fatalf("expected an UNDEFINED->TRANSFER_DST_OPTIMAL pipeline barrier, got %+v", cmds)
	}
	if hasEvent || hasSemaphore {
		t.Fatalf("single-usage resource must not emit events/semaphores, got %+v", cmds)
	}
}

// TestS2DrawThenComputeSameQueueEmitsEvent covers scenario S2's structural
// shape: a write usage followed by a read usage on a different encoder but
// the same queue family must emit SignalEvent/WaitForEvent with a
// SHADER_WRITE->SHADER_READ barrier.
func TestS2DrawThenComputeSameQueueEmitsEvent(t *testing.T) {
	buf := bufHandle(1)
	write := framegraph.ResourceUsage{
		Resource: buf, Type: framegraph.UsageWrite,
		CommandRange: framegraph.CommandRange{Start: 0, End: 1},
		ActiveRange:  framegraph.BufferRange(0, 64),
		PassIndex:    0,
	}
	read := framegraph.ResourceUsage{
		Resource: buf, Type: framegraph.UsageRead,
		CommandRange: framegraph.CommandRange{Start: 1, End: 2},
		ActiveRange:  framegraph.BufferRange(0, 64),
		PassIndex:    1,
	}
	inputs := framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{Kind: framegraph.PassDraw, CommandRange: framegraph.CommandRange{Start: 0, End: 1}},
			{Kind: framegraph.PassCompute, CommandRange: framegraph.CommandRange{Start: 1, End: 2}},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{buf: {write, read}},
	}
	ctx := fakeContext{
		encoderFor: func(i int) framegraph.EncoderID {
			if i < 1 {
				return 0
			}
			return 1
		},
		queueFor: func(int) uint32 { return 0 },
	}

	cmds, _, err := Generate(inputs, nil, nil, ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var signal, wait *framegraph.ResourceCommand
	for i := range cmds {
		switch cmds[i].Kind {
		case framegraph.CmdSignalEvent:
			signal = &cmds[i]
		case framegraph.CmdWaitForEvent:
			wait = &cmds[i]
		}
	}
	if signal == nil || wait == nil {
		t.Fatalf("expected a signal/wait event pair, got %+v", cmds)
	}
	if wait.Barrier.SrcAccessMask&vk.AccessFlagBits(vk.AccessShaderWriteBit) == 0 {
		t.Fatalf("expected SHADER_WRITE in src access, got %v", wait.Barrier.SrcAccessMask)
	}
	if wait.Barrier.DstAccessMask&vk.AccessFlagBits(vk.AccessShaderReadBit) == 0 {
		t.Fatalf("expected SHADER_READ in dst access, got %v", wait.Barrier.DstAccessMask)
	}
}

// TestS5CrossQueueFamilyEmitsSemaphore covers scenario S5: usages on
// different queue families synchronise via binary semaphore, not an
// event.
func TestS5CrossQueueFamilyEmitsSemaphore(t *testing.T) {
	buf := bufHandle(2)
	write := framegraph.ResourceUsage{
		Resource: buf, Type: framegraph.UsageBlitDestination,
		CommandRange: framegraph.CommandRange{Start: 0, End: 1},
		ActiveRange:  framegraph.BufferRange(0, 64),
		PassIndex:    0,
	}
	read := framegraph.ResourceUsage{
		Resource: buf, Type: framegraph.UsageRead,
		CommandRange: framegraph.CommandRange{Start: 1, End: 2},
		ActiveRange:  framegraph.BufferRange(0, 64),
		PassIndex:    1,
	}
	inputs := framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{Kind: framegraph.PassBlit, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, QueueFamily: 2},
			{Kind: framegraph.PassCompute, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, QueueFamily: 1},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{buf: {write, read}},
	}
	ctx := fakeContext{
		encoderFor: func(i int) framegraph.EncoderID {
			if i < 1 {
				return 0
			}
			return 1
		},
		queueFor: func(i int) uint32 {
			if i < 1 {
				return 2
			}
			return 1
		},
	}

	cmds, _, err := Generate(inputs, nil, nil, ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var hasSignal, hasWait, hasEvent bool
	for _, c := range cmds {
		switch c.Kind {
		case framegraph.CmdSignalSemaphore:
			hasSignal = true
		case framegraph.CmdWaitForSemaphore:
			hasWait = true
		case framegraph.CmdSignalEvent, framegraph.CmdWaitForEvent:
			hasEvent = true
		}
	}
	if !hasSignal || !hasWait {
		t.Fatalf("expected a semaphore signal/wait pair, got %+v", cmds)
	}
	if hasEvent {
		t.Fatalf("cross-queue-family dependency must not use events, got %+v", cmds)
	}
}

// TestS6PersistentWriteEmitsStoreResource covers scenario S6: a persistent
// resource's last write emits StoreResource (not Dispose) and a StoreWait
// is recorded for the next frame.
func TestS6PersistentWriteEmitsStoreResource(t *testing.T) {
	hist := framegraph.ResourceHandle{Kind: framegraph.KindTexture, Flags: framegraph.FlagPersistent | framegraph.FlagHistoryBuffer, Index: 5}
	write := framegraph.ResourceUsage{
		Resource: hist, Type: framegraph.UsageWriteOnlyRenderTarget,
		CommandRange: framegraph.CommandRange{Start: 0, End: 1},
		ActiveRange:  framegraph.Full(),
		PassIndex:    0,
	}
	tracker := layout.NewTracker(1, 1)
	tracker.RecomputeForFrame([]framegraph.ResourceUsage{write}, false, false)

	inputs := framegraph.FrameInputs{
		Passes:         []framegraph.PassRecord{{Kind: framegraph.PassDraw, CommandRange: framegraph.CommandRange{Start: 0, End: 1}}},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{hist: {write}},
	}
	ctx := fakeContext{
		encoderFor: func(int) framegraph.EncoderID { return 0 },
		queueFor:   func(int) uint32 { return 0 },
	}

	cmds, waits, err := Generate(inputs, ResourceTrackers{hist: tracker}, nil, ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(waits) != 1 || waits[0].Resource != hist {
		t.Fatalf("expected one store wait recorded for the history buffer, got %+v", waits)
	}
	var hasStore, hasDispose bool
	for _, c := range cmds {
		if c.Kind == framegraph.CmdStoreResource {
			hasStore = true
		}
		if c.Kind == framegraph.CmdDisposeTexture {
			hasDispose = true
		}
	}
	if !hasStore {
		t.Fatalf("expected CmdStoreResource, got %+v", cmds)
	}
	if hasDispose {
		t.Fatalf("persistent resource must never be disposed, got %+v", cmds)
	}
}
