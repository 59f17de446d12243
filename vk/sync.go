package vk

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
)

// Fence wraps a VkFence with signalled-state bookkeeping, so callers never
// issue a redundant vkWaitForFences on an already-signalled fence.
type Fence struct {
	Handle     vk.Fence
	IsSignaled bool
}

// NewFence creates a VkFence, optionally pre-signalled so the first wait
// on it returns immediately.
func NewFence(d *Device, createSignaled bool) (*Fence, error) {
	f := &Fence{IsSignaled: createSignaled}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if createSignaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if res := vk.CreateFence(d.Logical, &info, d.Allocator, &f.Handle); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateFence: result %d", res)
	}
	return f, nil
}

func (f *Fence) Destroy(d *Device) {
	if f.Handle != nil {
		vk.DestroyFence(d.Logical, f.Handle, d.Allocator)
		f.Handle = nil
	}
	f.IsSignaled = false
}

// Wait blocks until the fence signals or timeoutNs elapses, logging and
// returning false on timeout or device loss rather than panicking.
func (f *Fence) Wait(d *Device, timeoutNs uint64) bool {
	if f.IsSignaled {
		return true
	}
	switch vk.WaitForFences(d.Logical, 1, []vk.Fence{f.Handle}, vk.True, timeoutNs) {
	case vk.Success:
		f.IsSignaled = true
		return true
	case vk.Timeout:
		core.LogWarn("vk.Fence.Wait: timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk.Fence.Wait: VK_ERROR_DEVICE_LOST")
	default:
		core.LogError("vk.Fence.Wait: unexpected result")
	}
	return false
}

func (f *Fence) Reset(d *Device) error {
	if !f.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(d.Logical, 1, []vk.Fence{f.Handle}); res != vk.Success {
		return fmt.Errorf("vk.ResetFences: result %d", res)
	}
	f.IsSignaled = false
	return nil
}

// EventPool recycles VkEvent objects for one queue family. The pool is
// effectively single-thread-owned while a frame is compiling for that
// queue — the mutex here only guards the rare cross-thread
// prepare_frame/recycle interleaving, not steady-state acquire/release.
type EventPool struct {
	mu     sync.Mutex
	device *Device
	free   []vk.Event
	inUse  map[vk.Event]bool
}

// NewEventPool preallocates `preallocate` events, per core.Config's
// EventPoolPreallocate tunable, so steady-state frames never allocate a
// VkEvent mid-compile.
func NewEventPool(d *Device, preallocate int) (*EventPool, error) {
	p := &EventPool{device: d, inUse: make(map[vk.Event]bool)}
	for i := 0; i < preallocate; i++ {
		e, err := p.createEvent()
		if err != nil {
			return nil, err
		}
		p.free = append(p.free, e)
	}
	return p, nil
}

func (p *EventPool) createEvent() (vk.Event, error) {
	info := vk.EventCreateInfo{SType: vk.StructureTypeEventCreateInfo}
	var e vk.Event
	if res := vk.CreateEvent(p.device.Logical, &info, p.device.Allocator, &e); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateEvent: result %d", res)
	}
	return e, nil
}

// Acquire returns a reset, unused VkEvent, growing the pool if empty.
// Every signal has at most one wait; the caller must Release the event
// once its paired wait has been recorded so the next frame can reuse it.
func (p *EventPool) Acquire() (vk.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var e vk.Event
	if n := len(p.free); n > 0 {
		e = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		var err error
		e, err = p.createEvent()
		if err != nil {
			return nil, err
		}
	}
	if res := vk.ResetEvent(p.device.Logical, e); res != vk.Success {
		return nil, fmt.Errorf("vk.ResetEvent: result %d", res)
	}
	p.inUse[e] = true
	return e, nil
}

// Release returns e to the free list for the next frame. Events must be
// reset before reuse; Acquire resets eagerly so Release itself is a pure
// bookkeeping operation.
func (p *EventPool) Release(e vk.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.inUse[e] {
		core.LogWarn("vk.EventPool: release of event not currently in use")
		return
	}
	delete(p.inUse, e)
	p.free = append(p.free, e)
}

func (p *EventPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for e := range p.inUse {
		vk.DestroyEvent(p.device.Logical, e, p.device.Allocator)
	}
	for _, e := range p.free {
		vk.DestroyEvent(p.device.Logical, e, p.device.Allocator)
	}
	p.inUse = make(map[vk.Event]bool)
	p.free = nil
}

// SemaphorePool recycles binary VkSemaphores used for cross-queue-family
// dependencies. The swapchain's acquire/present semaphores belong to the
// swapchain and never pass through this pool.
type SemaphorePool struct {
	mu     sync.Mutex
	device *Device
	free   []vk.Semaphore
}

func NewSemaphorePool(d *Device) *SemaphorePool {
	return &SemaphorePool{device: d}
}

func (p *SemaphorePool) Acquire() (vk.Semaphore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		return s, nil
	}
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if res := vk.CreateSemaphore(p.device.Logical, &info, p.device.Allocator, &s); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateSemaphore: result %d", res)
	}
	return s, nil
}

func (p *SemaphorePool) Release(s vk.Semaphore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, s)
}

func (p *SemaphorePool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.free {
		vk.DestroySemaphore(p.device.Logical, s, p.device.Allocator)
	}
	p.free = nil
}

// QueuePools groups one EventPool per queue family plus a shared
// SemaphorePool, keyed by queue-family index for synchronisation-primitive
// recycling.
type QueuePools struct {
	mu         sync.Mutex
	device     *Device
	preallocate int
	events     map[uint32]*EventPool
	Semaphores *SemaphorePool
}

func NewQueuePools(d *Device, preallocate int) *QueuePools {
	return &QueuePools{
		device:      d,
		preallocate: preallocate,
		events:      make(map[uint32]*EventPool),
		Semaphores:  NewSemaphorePool(d),
	}
}

// EventsFor returns (creating if needed) the event pool for queueFamily.
func (q *QueuePools) EventsFor(queueFamily uint32) (*EventPool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.events[queueFamily]; ok {
		return p, nil
	}
	p, err := NewEventPool(q.device, q.preallocate)
	if err != nil {
		return nil, err
	}
	q.events[queueFamily] = p
	return p, nil
}

func (q *QueuePools) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.events {
		p.Destroy()
	}
	q.Semaphores.Destroy()
}
