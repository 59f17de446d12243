package vk

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// Recordable is the payload a real EncodedCommand carries beyond its
// Index(): the caller's own vkCmd* dispatch for that command. The frame
// compiler's own types (executor, rescmd, compactor) never reference this
// interface — only Translator.RecordUserCommand type-asserts against it, so
// the frame compiler stays fully oblivious to command contents while real
// application code still gets its draws/dispatches/blits onto the command
// buffer.
type Recordable interface {
	Record(cmdBuffer vk.CommandBuffer)
}

// encoderState is the open (or most-recently-closed, until Submit flushes
// it) command buffer for one EncoderID, plus the semaphores its submission
// must wait on/signal.
type encoderState struct {
	queueFamily uint32
	queue       vk.Queue
	cmd         *CommandBuffer

	waitSemaphores   []vk.Semaphore
	waitStages       []vk.PipelineStageFlags
	signalSemaphores []vk.Semaphore
	// recycleSemaphores are the pool-owned subset of waitSemaphores,
	// returned to the pool by the collector once this submit's fence
	// signals. The swapchain's acquisition semaphore is deliberately
	// absent — it belongs to the swapchain.
	recycleSemaphores []vk.Semaphore

	activeRenderPass   *RenderPass
	activeFramebuffer  *Framebuffer
}

// Translator is the concrete Vulkan 1.1 implementation of
// executor.Translator. It owns no frame-graph state of its own — only the
// Vulkan objects backing whatever the registries hand it through
// MaterialiseBuffer/MaterialiseTexture, splitting device/queue/pool
// ownership (on Device) from the per-frame recording state tracked here,
// the way spaghettifunk-anima separates VulkanContext from the renderer
// backend that drives it frame to frame.
type Translator struct {
	device *Device
	pools  *QueuePools

	cmdPools map[uint32]vk.CommandPool

	encoders map[framegraph.EncoderID]*encoderState
	order    []framegraph.EncoderID

	// store is the shared handle -> backing-object table; the registries
	// hold the same pointer, so persistent backings they allocate are
	// visible here and transients materialised here are visible to their
	// CPU-upload helpers.
	store *BackingStore

	// respool recycles disposed transient backings when aliasing is
	// enabled, carrying each one's disposal events until reuse.
	respool *ResourcePool

	// descriptors rotates one descriptor-pool chain per frame-in-flight
	// slot; the application's descriptor-set writer allocates from it.
	descriptors *DescriptorPoolRing

	// eventKeys maps the opaque uint64 keys CompactedCommand carries to the
	// VkEvent acquired for them, so SignalEvent and the later WaitEvents
	// resolve to the same object; every signal has at most one wait.
	eventKeys       map[uint64]vk.Event
	eventQueueFamily map[uint64]uint32

	// pendingSemaphore holds, per resource, the binary semaphore acquired
	// by SignalSemaphore until the paired WaitSemaphore consumes and
	// releases it back to the pool; this is the cross-queue-family signal
	// path, where an event/barrier alone can't bridge queues.
	pendingSemaphore map[framegraph.ResourceHandle]vk.Semaphore

	storeCounter uint64
	// storeDone maps each StoreResource token to a channel closed when
	// the frame that recorded the store has completed on the GPU; the
	// frame's resource bag closes them from the collector worker.
	storeDone     map[uint64]chan struct{}
	pendingStores []uint64

	// collector owns the background fence-wait worker and the
	// frames-in-flight slots.
	collector  *BagCollector
	frameIndex int

	// acquireSem/presentSem gate the graphics submit around the current
	// swapchain image; set per frame by the host via SetSwapchainSync.
	acquireSem vk.Semaphore
	presentSem vk.Semaphore
}

// New builds a Translator bound to d, preallocating one event pool per
// queue family lazily (via QueuePools) and one command pool per
// queue family eagerly, since BeginEncoder must never fail on first use.
func New(d *Device, cfg core.Config) (*Translator, error) {
	t := &Translator{
		device:           d,
		pools:            NewQueuePools(d, cfg.EventPoolPreallocate),
		cmdPools:         make(map[uint32]vk.CommandPool),
		encoders:         make(map[framegraph.EncoderID]*encoderState),
		store:            NewBackingStore(),
		respool:          NewResourcePool(cfg.EnableAliasing),
		eventKeys:        make(map[uint64]vk.Event),
		eventQueueFamily: make(map[uint64]uint32),
		pendingSemaphore: make(map[framegraph.ResourceHandle]vk.Semaphore),
		storeDone:        make(map[uint64]chan struct{}),
	}
	t.collector = NewBagCollector(d, t.pools, cfg.FramesInFlight)

	ring, err := NewDescriptorPoolRing(d, cfg.FramesInFlight)
	if err != nil {
		return nil, err
	}
	t.descriptors = ring

	for _, family := range []uint32{d.GraphicsQueueFamily, d.ComputeQueueFamily, d.TransferQueueFamily} {
		if _, ok := t.cmdPools[family]; ok {
			continue
		}
		pool, err := t.createCommandPool(family)
		if err != nil {
			return nil, err
		}
		t.cmdPools[family] = pool
	}
	return t, nil
}

func (t *Translator) createCommandPool(family uint32) (vk.CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(t.device.Logical, &info, t.device.Allocator, &pool); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateCommandPool(family %d): result %d", family, res)
	}
	return pool, nil
}

func (t *Translator) poolFor(family uint32) (vk.CommandPool, error) {
	if p, ok := t.cmdPools[family]; ok {
		return p, nil
	}
	p, err := t.createCommandPool(family)
	if err != nil {
		return nil, err
	}
	t.cmdPools[family] = p
	return p, nil
}

func (t *Translator) queueFor(family uint32) vk.Queue {
	switch family {
	case t.device.GraphicsQueueFamily:
		return t.device.GraphicsQueue
	case t.device.ComputeQueueFamily:
		return t.device.ComputeQueue
	case t.device.TransferQueueFamily:
		return t.device.TransferQueue
	default:
		core.LogWarn("vk.Translator: unrecognised queue family %d, defaulting to graphics queue", family)
		return t.device.GraphicsQueue
	}
}

// SetSwapchainImage is called once per frame by the host application
// before SubmitFrame, after vkAcquireNextImageKHR — the frame graph itself
// has no swapchain concept; materialisation of a window-handle texture is
// deferred until the first render-pass instance that uses it.
func (t *Translator) SetSwapchainImage(img *Image) { t.store.SetSwapchainImage(img) }

// SetSwapchainSync is called alongside SetSwapchainImage with the frame's
// acquisition and presentation semaphores. Submit attaches the first to
// the graphics submit's wait list at COLOR_ATTACHMENT_OUTPUT and the
// second to its signal list.
func (t *Translator) SetSwapchainSync(acquire, present vk.Semaphore) {
	t.acquireSem = acquire
	t.presentSem = present
}

// Store exposes the shared backing-object table so the registries can be
// constructed over the same one.
func (t *Translator) Store() *BackingStore { return t.store }

// Descriptors exposes the rotated descriptor-pool ring to the
// application's descriptor-set writer.
func (t *Translator) Descriptors() *DescriptorPoolRing { return t.descriptors }

// PrepareFrame blocks until a frame-in-flight slot frees up, then rotates
// the descriptor ring into that slot. The slot was last current
// FramesInFlight frames ago and the collector has confirmed that frame's
// fences, so resetting its descriptor pools can no longer pull sets out
// from under the GPU.
func (t *Translator) PrepareFrame() error {
	t.collector.AcquireSlot()
	t.frameIndex++
	return t.descriptors.PrepareFrame(t.frameIndex)
}

// BeginEncoder allocates and begins a fresh primary command buffer for enc.
func (t *Translator) BeginEncoder(enc framegraph.EncoderID, kind framegraph.PassKind, queueFamily uint32) error {
	pool, err := t.poolFor(queueFamily)
	if err != nil {
		return err
	}
	cmd, err := AllocateCommandBuffer(t.device, pool)
	if err != nil {
		return err
	}
	if err := cmd.Begin(true, false); err != nil {
		return err
	}
	t.encoders[enc] = &encoderState{queueFamily: queueFamily, queue: t.queueFor(queueFamily), cmd: cmd}
	t.order = append(t.order, enc)
	return nil
}

func (t *Translator) EndEncoder(enc framegraph.EncoderID) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: EndEncoder on unknown encoder %d", enc)
	}
	return st.cmd.End()
}

// BeginRenderPass builds a fresh VkRenderPass/VkFramebuffer for this
// instance and issues vkCmdBeginRenderPass, generalising spaghettifunk-anima's
// single-colour/single-depth RenderpassBegin to N attachments and N fused
// subpasses.
func (t *Translator) BeginRenderPass(enc framegraph.EncoderID, desc *framegraph.DrawRenderPassDescriptor, descIndex int) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: BeginRenderPass on unknown encoder %d", enc)
	}

	formats := AttachmentFormats{}
	views := make([]vk.ImageView, 0, len(desc.ColorAttachments)+1)
	for _, att := range desc.ColorAttachments {
		img := t.resolveImage(att.Texture)
		if img == nil {
			return fmt.Errorf("vk.Translator: colour attachment %v has no materialised image", att.Texture)
		}
		formats.Color = append(formats.Color, img.Desc.Format)
		formats.ColorSample = append(formats.ColorSample, img.Desc.SampleCount)
		views = append(views, img.View)
	}
	if desc.DepthAttachment != nil {
		img := t.resolveImage(desc.DepthAttachment.Texture)
		if img == nil {
			return fmt.Errorf("vk.Translator: depth attachment %v has no materialised image", desc.DepthAttachment.Texture)
		}
		formats.Depth = img.Desc.Format
		formats.DepthSample = img.Desc.SampleCount
		views = append(views, img.View)
	}

	rp, err := BuildRenderPass(t.device, desc, formats)
	if err != nil {
		return err
	}
	fb, err := BuildFramebuffer(t.device, rp, desc, views)
	if err != nil {
		rp.Destroy(t.device)
		return err
	}

	clearValues := make([]vk.ClearValue, len(views))
	for i, att := range desc.ColorAttachments {
		if att.Clear == framegraph.ClearColor {
			clearValues[i].SetColor([]float32{0, 0, 0, 0})
		}
	}
	if desc.DepthAttachment != nil && desc.DepthAttachment.Clear == framegraph.ClearDepthStencil {
		clearValues[len(desc.ColorAttachments)].SetDepthStencil(1.0, 0)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:      vk.StructureTypeRenderPassBeginInfo,
		RenderPass: rp.Handle,
		Framebuffer: fb.Handle,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: desc.Width, Height: desc.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(st.cmd.Handle, &beginInfo, vk.SubpassContentsInline)
	st.cmd.State = CommandBufferInRenderPass
	st.activeRenderPass = rp
	st.activeFramebuffer = fb
	return nil
}

func (t *Translator) NextSubpass(enc framegraph.EncoderID) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: NextSubpass on unknown encoder %d", enc)
	}
	vk.CmdNextSubpass(st.cmd.Handle, vk.SubpassContentsInline)
	return nil
}

// EndRenderPass ends the render pass instance. The VkRenderPass/
// VkFramebuffer objects created for it go into the frame's resource bag
// at Submit; the collector destroys them once the submit fences confirm
// the GPU is done referencing them.
func (t *Translator) EndRenderPass(enc framegraph.EncoderID) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: EndRenderPass on unknown encoder %d", enc)
	}
	vk.CmdEndRenderPass(st.cmd.Handle)
	st.cmd.State = CommandBufferRecording
	return nil
}

// RecordUserCommand dispatches the opaque command if it implements
// Recordable; any other EncodedCommand reaching here is a caller bug, not
// something the frame compiler can have caused (it never constructs
// EncodedCommand values itself).
func (t *Translator) RecordUserCommand(enc framegraph.EncoderID, cmd framegraph.EncodedCommand) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: RecordUserCommand on unknown encoder %d", enc)
	}
	r, ok := cmd.(Recordable)
	if !ok {
		return fmt.Errorf("vk.Translator: command at index %d does not implement Recordable", cmd.Index())
	}
	r.Record(st.cmd.Handle)
	return nil
}

func (t *Translator) resolveImage(h framegraph.ResourceHandle) *Image {
	return t.store.Image(h)
}

// openEncoder returns the most recently begun encoder still recording
// outside a render pass — the only place disposal events and aliasing
// waits may legally be recorded. Returns nil between frames or while a
// render pass instance is open.
func (t *Translator) openEncoder() *encoderState {
	if len(t.order) == 0 {
		return nil
	}
	st := t.encoders[t.order[len(t.order)-1]]
	if st == nil || st.cmd.State != CommandBufferRecording {
		return nil
	}
	return st
}

// recordAliasWaits records the vkCmdWaitEvents guarding a recycled
// backing's first use, then releases the disposal events back to their
// pools. Returns false when no encoder can legally take the wait — the
// caller must then allocate fresh instead of reusing.
func (t *Translator) recordAliasWaits(waits []DisposalWait) bool {
	if len(waits) == 0 {
		return true
	}
	st := t.openEncoder()
	if st == nil {
		return false
	}
	events := make([]vk.Event, len(waits))
	for i, w := range waits {
		events[i] = w.Event
	}
	vk.CmdWaitEvents(st.cmd.Handle, uint32(len(events)), events,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, nil, 0, nil, 0, nil)
	for _, w := range waits {
		if pool, err := t.pools.EventsFor(w.QueueFamily); err == nil {
			pool.Release(w.Event)
		}
	}
	return true
}

// MaterialiseBuffer binds a backing VkBuffer to h if it doesn't already
// have one (persistent resources already materialised by the registry are
// left untouched), preferring a recycled backing from the aliasing pool.
func (t *Translator) MaterialiseBuffer(h framegraph.ResourceHandle, desc framegraph.BufferDescriptor, usage vk.BufferUsageFlagBits) error {
	if t.store.Buffer(h) != nil {
		return nil
	}
	desc.UsageHint |= usage
	if buf, waits, ok := t.respool.AcquireBuffer(desc); ok {
		if t.recordAliasWaits(waits) {
			t.store.InstallBuffer(h, buf)
			return nil
		}
		// No legal place to record the aliasing wait; park the backing
		// again and fall through to a fresh allocation.
		t.respool.ReleaseBuffer(buf, waits)
	}
	buf, err := t.device.CreateBuffer(desc.Named())
	if err != nil {
		return err
	}
	t.store.InstallBuffer(h, buf)
	return nil
}

// MaterialiseTexture binds a backing VkImage/VkImageView to h, unless it
// names the current swapchain image — a window handle's backing object is
// resolved by the host application, not allocated here.
func (t *Translator) MaterialiseTexture(h framegraph.ResourceHandle, desc framegraph.TextureDescriptor, usage vk.ImageUsageFlagBits, isWindowHandle bool) error {
	if isWindowHandle {
		return nil
	}
	if t.store.Image(h) != nil {
		return nil
	}
	desc.UsageHint |= usage
	if img, waits, ok := t.respool.AcquireImage(desc); ok {
		if t.recordAliasWaits(waits) {
			t.store.InstallImage(h, img)
			return nil
		}
		t.respool.ReleaseImage(img, waits)
	}
	aspect := aspectFlagBitsFor(desc)
	img, err := t.device.CreateImage(desc.Named(), aspect)
	if err != nil {
		return err
	}
	t.store.InstallImage(h, img)
	return nil
}

func aspectFlagBitsFor(desc framegraph.TextureDescriptor) vk.ImageAspectFlagBits {
	switch {
	case desc.AllAspects&framegraph.AspectDepth != 0 && desc.AllAspects&framegraph.AspectStencil != 0:
		return vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	case desc.AllAspects&framegraph.AspectDepth != 0:
		return vk.ImageAspectDepthBit
	case desc.AllAspects&framegraph.AspectStencil != 0:
		return vk.ImageAspectStencilBit
	default:
		return vk.ImageAspectColorBit
	}
}

// disposalWaits signals a disposal event at the current recording point,
// so a later aliasing allocation reusing this backing waits for the
// disposed resource's last GPU access. When no encoder can legally take
// the signal (the dispose landed past the frame's last encoder), no event
// is needed: the next frame's fence wait already orders any cross-frame
// reuse behind this frame's completion.
func (t *Translator) disposalWaits() []DisposalWait {
	st := t.openEncoder()
	if st == nil {
		return nil
	}
	pool, err := t.pools.EventsFor(st.queueFamily)
	if err != nil {
		return nil
	}
	ev, err := pool.Acquire()
	if err != nil {
		return nil
	}
	vk.CmdSetEvent(st.cmd.Handle, ev, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit))
	return []DisposalWait{{Event: ev, QueueFamily: st.queueFamily}}
}

func (t *Translator) DisposeBuffer(h framegraph.ResourceHandle) {
	buf := t.store.RemoveBuffer(h)
	if buf == nil {
		return
	}
	if t.respool.Enabled() && t.respool.ReleaseBuffer(buf, t.disposalWaits()) {
		return
	}
	t.device.DestroyBuffer(buf)
}

func (t *Translator) DisposeTexture(h framegraph.ResourceHandle) {
	if h.Flags.Has(framegraph.FlagWindowHandle) {
		return
	}
	img := t.store.RemoveImage(h)
	if img == nil {
		return
	}
	if t.respool.Enabled() && t.respool.ReleaseImage(img, t.disposalWaits()) {
		return
	}
	t.device.DestroyImage(img)
}

// StoreResource barriers a persistent/history resource to the layout and
// access mask a later frame expects to find it in, and hands back a token
// the persistent registry can later wait on before reusing the resource —
// this replaces a dispose for resources that outlive the frame. The token
// resolves when the owning frame's fences signal.
func (t *Translator) StoreResource(h framegraph.ResourceHandle, barrier framegraph.BarrierInfo) (uint64, error) {
	enc, ok := t.currentEncoderFor(h)
	if ok {
		t.recordImageBarrier(enc, vk.PipelineStageFlags(barrier.SrcStageMask), vk.PipelineStageFlags(barrier.DstStageMask), barrier)
	}
	t.storeCounter++
	t.storeDone[t.storeCounter] = make(chan struct{})
	t.pendingStores = append(t.pendingStores, t.storeCounter)
	return t.storeCounter, nil
}

// WaitStore blocks until the store recorded under value has completed on
// the GPU, or timeout elapses. Not part of executor.Translator — callers
// that reacquire a persistent resource across frames use this directly,
// the same way a fence wait guards reuse of an in-flight frame slot.
func (t *Translator) WaitStore(value uint64, timeout time.Duration) bool {
	ch, ok := t.storeDone[value]
	if !ok {
		return true
	}
	select {
	case <-ch:
		delete(t.storeDone, value)
		return true
	case <-time.After(timeout):
		return false
	}
}

func (t *Translator) currentEncoderFor(framegraph.ResourceHandle) (framegraph.EncoderID, bool) {
	if len(t.order) == 0 {
		return 0, false
	}
	return t.order[len(t.order)-1], true
}

func (t *Translator) recordImageBarrier(enc framegraph.EncoderID, srcStage, dstStage vk.PipelineStageFlags, b framegraph.BarrierInfo) {
	st := t.encoders[enc]
	if st == nil {
		return
	}
	img := t.resolveImage(b.Resource)
	if img == nil {
		return
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(b.SrcAccessMask),
		DstAccessMask:       vk.AccessFlags(b.DstAccessMask),
		OldLayout:           b.OldLayout,
		NewLayout:           b.NewLayout,
		SrcQueueFamilyIndex: b.SrcQueueFamily,
		DstQueueFamilyIndex: b.DstQueueFamily,
		Image:               img.Handle,
		SubresourceRange:    subresourceRangeFor(img, b),
	}
	vk.CmdPipelineBarrier(st.cmd.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func subresourceRangeFor(img *Image, b framegraph.BarrierInfo) vk.ImageSubresourceRange {
	rng := vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(aspectFlagBitsFor(img.Desc)),
		BaseMipLevel:   0,
		LevelCount:     img.Desc.MipLevels,
		BaseArrayLayer: 0,
		LayerCount:     img.Desc.ArrayLength,
	}
	if len(b.Subresources) > 0 {
		sr := b.Subresources[0]
		rng.BaseArrayLayer = uint32(sr.BaseLayer)
		rng.LayerCount = uint32(sr.LayerCount)
		rng.BaseMipLevel = uint32(sr.BaseLevel)
		rng.LevelCount = uint32(sr.LevelCount)
	}
	return rng
}

// SignalEvent acquires a VkEvent for eventKey from the encoder's queue
// family pool and sets it. The compactor guarantees at most one signal per
// key, so no reference counting is needed here.
func (t *Translator) SignalEvent(enc framegraph.EncoderID, eventKey uint64, afterStages vk.PipelineStageFlagBits) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: SignalEvent on unknown encoder %d", enc)
	}
	pool, err := t.pools.EventsFor(st.queueFamily)
	if err != nil {
		return err
	}
	ev, err := pool.Acquire()
	if err != nil {
		return err
	}
	t.eventKeys[eventKey] = ev
	t.eventQueueFamily[eventKey] = st.queueFamily
	vk.CmdSetEvent(st.cmd.Handle, ev, vk.PipelineStageFlags(afterStages))
	return nil
}

// WaitEvents resolves eventKeys to their VkEvents and issues
// vkCmdWaitEvents with the accumulated barriers, then releases every event
// back to its pool — the paired signal/wait has now both run.
func (t *Translator) WaitEvents(enc framegraph.EncoderID, eventKeys []uint64, srcStages, dstStages vk.PipelineStageFlagBits, buffers, images []framegraph.BarrierInfo) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: WaitEvents on unknown encoder %d", enc)
	}
	events := make([]vk.Event, 0, len(eventKeys))
	for _, key := range eventKeys {
		ev, ok := t.eventKeys[key]
		if !ok {
			return fmt.Errorf("vk.Translator: WaitEvents on unknown event key %d", key)
		}
		events = append(events, ev)
	}

	bufBarriers := t.bufferBarriers(buffers)
	imgBarriers := t.imageBarriers(images)

	vk.CmdWaitEvents(st.cmd.Handle, uint32(len(events)), events,
		vk.PipelineStageFlags(srcStages), vk.PipelineStageFlags(dstStages),
		uint32(0), nil,
		uint32(len(bufBarriers)), bufBarriers,
		uint32(len(imgBarriers)), imgBarriers)

	for _, key := range eventKeys {
		ev := t.eventKeys[key]
		family := t.eventQueueFamily[key]
		if pool, err := t.pools.EventsFor(family); err == nil {
			pool.Release(ev)
		}
		delete(t.eventKeys, key)
		delete(t.eventQueueFamily, key)
	}
	return nil
}

// PipelineBarrier issues a direct vkCmdPipelineBarrier with no event —
// used inside a render pass (where events are never legal) and for
// same-encoder hazards the compactor decided not to promote to an event.
func (t *Translator) PipelineBarrier(enc framegraph.EncoderID, srcStages, dstStages vk.PipelineStageFlagBits, buffers, images []framegraph.BarrierInfo) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: PipelineBarrier on unknown encoder %d", enc)
	}
	bufBarriers := t.bufferBarriers(buffers)
	imgBarriers := t.imageBarriers(images)
	vk.CmdPipelineBarrier(st.cmd.Handle,
		vk.PipelineStageFlags(srcStages), vk.PipelineStageFlags(dstStages), 0,
		uint32(0), nil,
		uint32(len(bufBarriers)), bufBarriers,
		uint32(len(imgBarriers)), imgBarriers)
	return nil
}

func (t *Translator) bufferBarriers(infos []framegraph.BarrierInfo) []vk.BufferMemoryBarrier {
	if len(infos) == 0 {
		return nil
	}
	out := make([]vk.BufferMemoryBarrier, len(infos))
	for i, b := range infos {
		buf := t.store.Buffer(b.Resource)
		if buf == nil {
			continue
		}
		size := b.BufferSize
		if size == 0 {
			size = buf.Desc.Length - b.BufferOffset
		}
		out[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccessMask),
			DstAccessMask:       vk.AccessFlags(b.DstAccessMask),
			SrcQueueFamilyIndex: b.SrcQueueFamily,
			DstQueueFamilyIndex: b.DstQueueFamily,
			Buffer:              buf.Handle,
			Offset:              vk.DeviceSize(b.BufferOffset),
			Size:                vk.DeviceSize(size),
		}
	}
	return out
}

func (t *Translator) imageBarriers(infos []framegraph.BarrierInfo) []vk.ImageMemoryBarrier {
	if len(infos) == 0 {
		return nil
	}
	out := make([]vk.ImageMemoryBarrier, 0, len(infos))
	for _, b := range infos {
		img := t.resolveImage(b.Resource)
		if img == nil {
			continue
		}
		out = append(out, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccessMask),
			DstAccessMask:       vk.AccessFlags(b.DstAccessMask),
			OldLayout:           b.OldLayout,
			NewLayout:           b.NewLayout,
			SrcQueueFamilyIndex: b.SrcQueueFamily,
			DstQueueFamilyIndex: b.DstQueueFamily,
			Image:               img.Handle,
			SubresourceRange:    subresourceRangeFor(img, b),
		})
	}
	return out
}

// SignalSemaphore acquires a binary semaphore for resource from the shared
// pool and remembers it for the paired WaitSemaphore — this is the
// cross-queue-family handoff path; the actual vkSemaphoreSignal happens at
// Submit time, via this encoder's VkSubmitInfo.pSignalSemaphores.
func (t *Translator) SignalSemaphore(enc framegraph.EncoderID, resource framegraph.ResourceHandle) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: SignalSemaphore on unknown encoder %d", enc)
	}
	sem, err := t.pools.Semaphores.Acquire()
	if err != nil {
		return err
	}
	t.pendingSemaphore[resource] = sem
	st.signalSemaphores = append(st.signalSemaphores, sem)
	return nil
}

// WaitSemaphore consumes the semaphore SignalSemaphore acquired for
// resource, adding it to this encoder's VkSubmitInfo.pWaitSemaphores.
func (t *Translator) WaitSemaphore(enc framegraph.EncoderID, resource framegraph.ResourceHandle, dstStages vk.PipelineStageFlagBits) error {
	st := t.encoders[enc]
	if st == nil {
		return fmt.Errorf("vk.Translator: WaitSemaphore on unknown encoder %d", enc)
	}
	sem, ok := t.pendingSemaphore[resource]
	if !ok {
		return fmt.Errorf("vk.Translator: WaitSemaphore for resource %v with no pending signal", resource)
	}
	st.waitSemaphores = append(st.waitSemaphores, sem)
	st.waitStages = append(st.waitStages, vk.PipelineStageFlags(dstStages))
	st.recycleSemaphores = append(st.recycleSemaphores, sem)
	delete(t.pendingSemaphore, resource)
	return nil
}

// Submit flushes every encoder opened this frame to its queue in open
// order, allocating one fence per submit, then posts the frame's resource
// bag — command buffers, render-pass objects, consumed semaphores, the
// fences — to the background collector. Nothing is freed inline; the
// collector releases the bag and invokes onComplete once every fence has
// signalled (spec §4.5 step 5).
func (t *Translator) Submit(onComplete func()) error {
	// Store tokens recorded this frame resolve alongside the frame itself.
	stores := make([]chan struct{}, 0, len(t.pendingStores))
	for _, v := range t.pendingStores {
		stores = append(stores, t.storeDone[v])
	}
	t.pendingStores = nil

	bag := &frameBag{onComplete: func() {
		for _, ch := range stores {
			close(ch)
		}
		if onComplete != nil {
			onComplete()
		}
	}}

	// Attach the swapchain's acquisition/presentation semaphores to the
	// first and last graphics-family submits respectively (spec S4). The
	// semaphores belong to the swapchain, not the pool, so they never go
	// in the bag.
	firstGraphics, lastGraphics := framegraph.EncoderID(-1), framegraph.EncoderID(-1)
	for _, enc := range t.order {
		if t.encoders[enc].queueFamily != t.device.GraphicsQueueFamily {
			continue
		}
		if firstGraphics < 0 {
			firstGraphics = enc
		}
		lastGraphics = enc
	}
	if t.acquireSem != nil && firstGraphics >= 0 {
		st := t.encoders[firstGraphics]
		st.waitSemaphores = append(st.waitSemaphores, t.acquireSem)
		st.waitStages = append(st.waitStages, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
	}
	if t.presentSem != nil && lastGraphics >= 0 {
		st := t.encoders[lastGraphics]
		st.signalSemaphores = append(st.signalSemaphores, t.presentSem)
	}
	t.acquireSem, t.presentSem = nil, nil

	for _, enc := range t.order {
		st := t.encoders[enc]
		fence, err := NewFence(t.device, false)
		if err != nil {
			return err
		}
		info := SubmitInfo{
			WaitSemaphores:   st.waitSemaphores,
			WaitDstStages:    st.waitStages,
			SignalSemaphores: st.signalSemaphores,
			Fence:            fence.Handle,
		}
		if err := Submit(st.queue, []*CommandBuffer{st.cmd}, info); err != nil {
			fence.Destroy(t.device)
			return err
		}
		bag.fences = append(bag.fences, fence)
		bag.cmds = append(bag.cmds, st.cmd)
		if st.activeFramebuffer != nil {
			bag.framebuffers = append(bag.framebuffers, st.activeFramebuffer)
		}
		if st.activeRenderPass != nil {
			bag.renderPasses = append(bag.renderPasses, st.activeRenderPass)
		}
		// Pool semaphores whose wait ran this frame are done once the
		// fences signal; the collector recycles them.
		bag.semaphores = append(bag.semaphores, st.recycleSemaphores...)
		delete(t.encoders, enc)
	}
	t.order = t.order[:0]

	t.collector.Post(bag)
	return nil
}

// Close drains the collector (every in-flight frame's fences are waited,
// resources freed, callbacks run) and tears down the translator's pools.
func (t *Translator) Close() {
	t.collector.Close()
	t.respool.Drain(t.device)
	t.descriptors.Destroy()
	for family, pool := range t.cmdPools {
		vk.DestroyCommandPool(t.device.Logical, pool, t.device.Allocator)
		delete(t.cmdPools, family)
	}
	t.pools.Destroy()
}
