package executor

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/registry"
)

// fakeCommand is the minimal EncodedCommand: its Index() is whatever the
// test wants it to be, matching its position in the owning pass's
// CommandRange.
type fakeCommand struct{ idx int }

func (c fakeCommand) Index() int { return c.idx }

// call records one Translator method invocation, for assertions that don't
// care about every argument.
type call struct {
	name string
}

// fakeTranslator is an in-memory recorder implementing Translator, so the
// scenario tests below run without a GPU.
type fakeTranslator struct {
	calls         []call
	storeWaitNext uint64
}

func (f *fakeTranslator) record(name string) { f.calls = append(f.calls, call{name: name}) }

func (f *fakeTranslator) PrepareFrame() error {
	f.record("PrepareFrame")
	return nil
}

func (f *fakeTranslator) BeginEncoder(framegraph.EncoderID, framegraph.PassKind, uint32) error {
	f.record("BeginEncoder")
	return nil
}
func (f *fakeTranslator) EndEncoder(framegraph.EncoderID) error {
	f.record("EndEncoder")
	return nil
}
func (f *fakeTranslator) BeginRenderPass(framegraph.EncoderID, *framegraph.DrawRenderPassDescriptor, int) error {
	f.record("BeginRenderPass")
	return nil
}
func (f *fakeTranslator) NextSubpass(framegraph.EncoderID) error {
	f.record("NextSubpass")
	return nil
}
func (f *fakeTranslator) EndRenderPass(framegraph.EncoderID) error {
	f.record("EndRenderPass")
	return nil
}
func (f *fakeTranslator) RecordUserCommand(framegraph.EncoderID, framegraph.EncodedCommand) error {
	f.record("RecordUserCommand")
	return nil
}
func (f *fakeTranslator) MaterialiseBuffer(framegraph.ResourceHandle, framegraph.BufferDescriptor, vk.BufferUsageFlagBits) error {
	f.record("MaterialiseBuffer")
	return nil
}
func (f *fakeTranslator) MaterialiseTexture(framegraph.ResourceHandle, framegraph.TextureDescriptor, vk.ImageUsageFlagBits, bool) error {
	f.record("MaterialiseTexture")
	return nil
}
func (f *fakeTranslator) DisposeBuffer(framegraph.ResourceHandle) { f.record("DisposeBuffer") }
func (f *fakeTranslator) DisposeTexture(framegraph.ResourceHandle) { f.record("DisposeTexture") }
func (f *fakeTranslator) StoreResource(framegraph.ResourceHandle, framegraph.BarrierInfo) (uint64, error) {
	f.record("StoreResource")
	f.storeWaitNext++
	return f.storeWaitNext, nil
}
func (f *fakeTranslator) SignalEvent(framegraph.EncoderID, uint64, vk.PipelineStageFlagBits) error {
	f.record("SignalEvent")
	return nil
}
func (f *fakeTranslator) WaitEvents(framegraph.EncoderID, []uint64, vk.PipelineStageFlagBits, vk.PipelineStageFlagBits, []framegraph.BarrierInfo, []framegraph.BarrierInfo) error {
	f.record("WaitEvents")
	return nil
}
func (f *fakeTranslator) PipelineBarrier(framegraph.EncoderID, vk.PipelineStageFlagBits, vk.PipelineStageFlagBits, []framegraph.BarrierInfo, []framegraph.BarrierInfo) error {
	f.record("PipelineBarrier")
	return nil
}
func (f *fakeTranslator) SignalSemaphore(framegraph.EncoderID, framegraph.ResourceHandle) error {
	f.record("SignalSemaphore")
	return nil
}
func (f *fakeTranslator) WaitSemaphore(framegraph.EncoderID, framegraph.ResourceHandle, vk.PipelineStageFlagBits) error {
	f.record("WaitSemaphore")
	return nil
}
func (f *fakeTranslator) Submit(onComplete func()) error {
	f.record("Submit")
	if onComplete != nil {
		onComplete()
	}
	return nil
}

func (f *fakeTranslator) has(name string) bool {
	for _, c := range f.calls {
		if c.name == name {
			return true
		}
	}
	return false
}

func (f *fakeTranslator) count(name string) int {
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

// TestS1SingleBlitMaterialiseBarrierDispose covers scenario S1: a single
// blit destination materialises, barriers, records the user blit, then
// disposes — no events or semaphores.
func TestS1SingleBlitMaterialiseBarrierDispose(t *testing.T) {
	reg := registry.New(nil)
	tex := reg.Transient.DeclareTexture(framegraph.TextureDescriptor{Width: 64, Height: 64, ArrayLength: 1, MipLevels: 1}, 0)

	inputs := framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{Kind: framegraph.PassBlit, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, Commands: []framegraph.EncodedCommand{fakeCommand{idx: 0}}},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
			tex: {{Resource: tex, Type: framegraph.UsageBlitDestination, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, ActiveRange: framegraph.Full(), PassIndex: 0}},
		},
	}

	tr := &fakeTranslator{}
	if err := New(reg, tr).SubmitFrame(inputs); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}

	if !tr.has("MaterialiseTexture") || !tr.has("PipelineBarrier") || !tr.has("DisposeTexture") || !tr.has("RecordUserCommand") {
		t.Fatalf("expected materialise+barrier+record+dispose, got %+v", tr.calls)
	}
	if tr.has("SignalEvent") || tr.has("WaitEvents") || tr.has("SignalSemaphore") || tr.has("WaitSemaphore") {
		t.Fatalf("single-usage resource must not synchronise across encoders, got %+v", tr.calls)
	}
}

// TestS2DrawThenComputeSameQueueEmitsEvent covers scenario S2: a
// write-then-read pair across encoders on the same queue family
// synchronises with exactly one signal/wait event pair.
func TestS2DrawThenComputeSameQueueEmitsEvent(t *testing.T) {
	reg := registry.New(nil)
	buf := reg.Transient.DeclareBuffer(framegraph.BufferDescriptor{Length: 256})

	inputs := framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{Kind: framegraph.PassDraw, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, Commands: []framegraph.EncodedCommand{fakeCommand{idx: 0}}},
			{Kind: framegraph.PassCompute, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, Commands: []framegraph.EncodedCommand{fakeCommand{idx: 1}}},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
			buf: {
				{Resource: buf, Type: framegraph.UsageWrite, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, ActiveRange: framegraph.BufferRange(0, 64), PassIndex: 0},
				{Resource: buf, Type: framegraph.UsageRead, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, ActiveRange: framegraph.BufferRange(0, 64), PassIndex: 1},
			},
		},
	}

	tr := &fakeTranslator{}
	if err := New(reg, tr).SubmitFrame(inputs); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}

	if tr.count("SignalEvent") != 1 || tr.count("WaitEvents") != 1 {
		t.Fatalf("expected exactly one signal/wait event pair, got %+v", tr.calls)
	}
	if tr.has("SignalSemaphore") || tr.has("WaitSemaphore") {
		t.Fatalf("same-queue dependency must not use semaphores, got %+v", tr.calls)
	}
}

// TestS5CrossQueueFamilyEmitsSemaphore covers scenario S5: usages on
// different queue families synchronise via semaphore, not an event.
func TestS5CrossQueueFamilyEmitsSemaphore(t *testing.T) {
	reg := registry.New(nil)
	buf := reg.Transient.DeclareBuffer(framegraph.BufferDescriptor{Length: 256})

	inputs := framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{Kind: framegraph.PassBlit, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, QueueFamily: 2, Commands: []framegraph.EncodedCommand{fakeCommand{idx: 0}}},
			{Kind: framegraph.PassCompute, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, QueueFamily: 1, Commands: []framegraph.EncodedCommand{fakeCommand{idx: 1}}},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
			buf: {
				{Resource: buf, Type: framegraph.UsageBlitDestination, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, ActiveRange: framegraph.BufferRange(0, 64), PassIndex: 0},
				{Resource: buf, Type: framegraph.UsageRead, CommandRange: framegraph.CommandRange{Start: 1, End: 2}, ActiveRange: framegraph.BufferRange(0, 64), PassIndex: 1},
			},
		},
	}

	tr := &fakeTranslator{}
	if err := New(reg, tr).SubmitFrame(inputs); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}

	if !tr.has("SignalSemaphore") || !tr.has("WaitSemaphore") {
		t.Fatalf("expected a semaphore signal/wait pair, got %+v", tr.calls)
	}
	if tr.has("SignalEvent") || tr.has("WaitEvents") {
		t.Fatalf("cross-queue-family dependency must not use events, got %+v", tr.calls)
	}
}

// TestS6PersistentWriteEmitsStoreResource covers scenario S6: a persistent
// texture's last write in the frame stores rather than disposes, and the
// returned wait value reaches the persistent registry.
func TestS6PersistentWriteEmitsStoreResource(t *testing.T) {
	reg := registry.New(nil)
	hist, err := reg.Persistent.AllocateTexture(
		framegraph.TextureDescriptor{Width: 32, Height: 32, ArrayLength: 1, MipLevels: 1},
		framegraph.FlagWindowHandle, // skips real image creation; device is nil in this test
		vk.ImageAspectColorBit,
	)
	if err != nil {
		t.Fatalf("AllocateTexture: %v", err)
	}

	inputs := framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{Kind: framegraph.PassDraw, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, Commands: []framegraph.EncodedCommand{fakeCommand{idx: 0}}},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
			hist: {{Resource: hist, Type: framegraph.UsageWriteOnlyRenderTarget, CommandRange: framegraph.CommandRange{Start: 0, End: 1}, ActiveRange: framegraph.Full(), PassIndex: 0}},
		},
	}

	tr := &fakeTranslator{}
	if err := New(reg, tr).SubmitFrame(inputs); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}

	if !tr.has("StoreResource") {
		t.Fatalf("expected StoreResource for the persistent texture, got %+v", tr.calls)
	}
	if tr.has("DisposeTexture") {
		t.Fatalf("persistent resource must never be disposed, got %+v", tr.calls)
	}
	if _, ok := reg.Persistent.TakeStoreWait(hist); !ok {
		t.Fatalf("expected the store wait value to reach the persistent registry")
	}
}
