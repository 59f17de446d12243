package vk

import (
	"math"
	"sync"

	vk "github.com/goki/vulkan"
)

// frameBag collects everything one submitted frame keeps alive until its
// fences signal: the command buffers just recorded, the render-pass and
// framebuffer objects built for its render-pass instances, the binary
// semaphores whose signal/wait pair both ran this frame, and the
// per-submit fences themselves.
type frameBag struct {
	fences       []*Fence
	cmds         []*CommandBuffer
	renderPasses []*RenderPass
	framebuffers []*Framebuffer
	semaphores   []vk.Semaphore
	onComplete   func()
}

// BagCollector is the background worker spec §4.5 step 5 describes: bags
// are posted to it after submission; it waits each bag's fences, releases
// the bag's contents, and invokes the frame's completion callback. It also
// bounds frames in flight — acquiring a slot blocks until a previous bag
// has been fully collected.
type BagCollector struct {
	device *Device
	pools  *QueuePools

	bags  chan *frameBag
	slots chan struct{}

	wg sync.WaitGroup
}

// NewBagCollector starts the collection goroutine. framesInFlight bounds
// how many frames may be submitted-but-uncollected at once.
func NewBagCollector(d *Device, pools *QueuePools, framesInFlight int) *BagCollector {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	c := &BagCollector{
		device: d,
		pools:  pools,
		bags:   make(chan *frameBag, framesInFlight),
		slots:  make(chan struct{}, framesInFlight),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// AcquireSlot blocks until fewer than framesInFlight frames are pending,
// guaranteeing the frame that last used the slot being reclaimed has
// fully completed on the GPU.
func (c *BagCollector) AcquireSlot() {
	c.slots <- struct{}{}
}

// Post hands a submitted frame's bag to the collector. The caller must
// have acquired a slot for this frame beforehand.
func (c *BagCollector) Post(bag *frameBag) {
	c.bags <- bag
}

func (c *BagCollector) run() {
	defer c.wg.Done()
	for bag := range c.bags {
		for _, f := range bag.fences {
			f.Wait(c.device, math.MaxUint64)
			f.Destroy(c.device)
		}
		for _, cb := range bag.cmds {
			cb.Free(c.device)
		}
		for _, fb := range bag.framebuffers {
			fb.Destroy(c.device)
		}
		for _, rp := range bag.renderPasses {
			rp.Destroy(c.device)
		}
		for _, s := range bag.semaphores {
			c.pools.Semaphores.Release(s)
		}
		if bag.onComplete != nil {
			bag.onComplete()
		}
		<-c.slots
	}
}

// Close drains the collector: every posted bag is still collected (fences
// waited, resources freed, callbacks run) before Close returns.
func (c *BagCollector) Close() {
	close(c.bags)
	c.wg.Wait()
}
