// Package executor plans, generates, and compacts one frame's resource
// commands, then walks the frame's passes interleaving compacted
// synchronisation commands with the caller's own vkCmd* calls via a
// Translator.
package executor

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// Translator is the seam between the frame-graph core and real Vulkan
// calls. The concrete implementation lives in vk.Translator, one thin
// wrapper type per Vulkan object; scenario tests substitute a fake
// in-memory recorder so S1-S6 run without a GPU.
type Translator interface {
	// PrepareFrame runs the translator's own start-of-frame bookkeeping
	// (descriptor-pool rotation, recycled-primitive expiry) before any
	// planning or recording happens.
	PrepareFrame() error

	// BeginEncoder opens a new command buffer for the given queue kind,
	// returning nothing — translators track their own current handle per
	// EncoderID internally, the same way a command buffer tracks its own
	// recording state.
	BeginEncoder(enc framegraph.EncoderID, kind framegraph.PassKind, queueFamily uint32) error
	EndEncoder(enc framegraph.EncoderID) error

	BeginRenderPass(enc framegraph.EncoderID, desc *framegraph.DrawRenderPassDescriptor, descIndex int) error
	NextSubpass(enc framegraph.EncoderID) error
	EndRenderPass(enc framegraph.EncoderID) error

	// RecordUserCommand hands one opaque EncodedCommand to the caller's own
	// vkCmd* dispatch; the frame compiler never inspects its contents.
	RecordUserCommand(enc framegraph.EncoderID, cmd framegraph.EncodedCommand) error

	// MaterialiseBuffer/MaterialiseTexture carry the full descriptor because
	// the translator keeps its own handle -> backing-object table rather
	// than reaching into the registry (vk would have to import registry,
	// which already imports vk for Device/Image/Buffer — a cycle).
	MaterialiseBuffer(h framegraph.ResourceHandle, desc framegraph.BufferDescriptor, usage vk.BufferUsageFlagBits) error
	MaterialiseTexture(h framegraph.ResourceHandle, desc framegraph.TextureDescriptor, usage vk.ImageUsageFlagBits, isWindowHandle bool) error
	DisposeBuffer(h framegraph.ResourceHandle)
	DisposeTexture(h framegraph.ResourceHandle)
	StoreResource(h framegraph.ResourceHandle, barrier framegraph.BarrierInfo) (storeWaitValue uint64, err error)

	SignalEvent(enc framegraph.EncoderID, eventKey uint64, afterStages vk.PipelineStageFlagBits) error
	WaitEvents(enc framegraph.EncoderID, eventKeys []uint64, srcStages, dstStages vk.PipelineStageFlagBits, buffers, images []framegraph.BarrierInfo) error
	PipelineBarrier(enc framegraph.EncoderID, srcStages, dstStages vk.PipelineStageFlagBits, buffers, images []framegraph.BarrierInfo) error

	SignalSemaphore(enc framegraph.EncoderID, resource framegraph.ResourceHandle) error
	WaitSemaphore(enc framegraph.EncoderID, resource framegraph.ResourceHandle, dstStages vk.PipelineStageFlagBits) error

	// Submit flushes every encoder opened since the previous call, then
	// arranges for onComplete to run once the GPU has finished the frame
	// (from a background worker, never inline). The concrete translator
	// owns the swapchain and resolves its own acquire/present semaphores
	// around this call; the frame compiler never sees raw semaphore
	// handles.
	Submit(onComplete func()) error
}
