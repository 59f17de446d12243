package registry

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/layout"
	vkb "github.com/spaghettifunk/vkframegraph/vk"
)

// PersistentRegistry owns resources that outlive the frame that created
// them: history buffers and any other handle created with
// framegraph.FlagPersistent. Spec §5 specifies a reader-writer lock —
// lookups (the common path, once per usage per frame) take the read
// side; allocation, store-wait bookkeeping and Release take the write
// side.
type PersistentRegistry struct {
	mu      sync.RWMutex
	device  *vkb.Device
	entries map[framegraph.ResourceHandle]*Entry
	next    uint32

	// store, when attached, receives every persistent backing at
	// allocation time, so the frame's materialise commands find it
	// already bound and the upload helpers can resolve it.
	store *vkb.BackingStore

	// storeWaits records, per resource, the semaphore value a future
	// frame reading a history buffer must wait on before its first usage
	// (spec §4.3 step 3 "StoreResource ... records a semaphore for the
	// next frame to wait on").
	storeWaits map[framegraph.ResourceHandle]uint64
}

func NewPersistentRegistry(d *vkb.Device) *PersistentRegistry {
	return &PersistentRegistry{
		device:     d,
		entries:    make(map[framegraph.ResourceHandle]*Entry),
		storeWaits: make(map[framegraph.ResourceHandle]uint64),
	}
}

// AllocateTexture reserves a new persistent/history texture handle. The
// backing image is created immediately (persistent resources are not
// deferred the way ordinary transients are) except for window-handle
// textures, whose materialisation always waits for swapchain acquisition.
func (r *PersistentRegistry) AllocateTexture(desc framegraph.TextureDescriptor, flags framegraph.HandleFlags, aspect vk.ImageAspectFlagBits) (framegraph.ResourceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := framegraph.ResourceHandle{Kind: framegraph.KindTexture, Flags: flags | framegraph.FlagPersistent, Index: r.next}
	r.next++
	e := &Entry{
		Handle:  h,
		Texture: &desc,
		Tracker: layout.NewTracker(int(desc.ArrayLength), int(desc.MipLevels)),
	}
	if !flags.Has(framegraph.FlagWindowHandle) {
		desc = desc.Named()
		img, err := r.device.CreateImage(desc, aspect)
		if err != nil {
			return framegraph.ResourceHandle{}, err
		}
		e.backingImage = img
		e.materialised = true
		if r.store != nil {
			r.store.InstallImage(h, img)
		}
	}
	r.entries[h] = e
	return h, nil
}

// AllocateBuffer reserves a new persistent buffer handle and creates its
// backing object immediately.
func (r *PersistentRegistry) AllocateBuffer(desc framegraph.BufferDescriptor) (framegraph.ResourceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := framegraph.ResourceHandle{Kind: framegraph.KindBuffer, Flags: framegraph.FlagPersistent, Index: r.next}
	r.next++
	desc = desc.Named()
	buf, err := r.device.CreateBuffer(desc)
	if err != nil {
		return framegraph.ResourceHandle{}, err
	}
	r.entries[h] = &Entry{Handle: h, Buffer: &desc, backingBuffer: buf, materialised: true}
	if r.store != nil {
		r.store.InstallBuffer(h, buf)
	}
	return h, nil
}

// Get performs the read-locked lookup every usage resolution path takes.
func (r *PersistentRegistry) Get(h framegraph.ResourceHandle) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[h]
}

// RecordStoreWait remembers the semaphore value the next frame's first
// usage of h must wait on (spec S6).
func (r *PersistentRegistry) RecordStoreWait(h framegraph.ResourceHandle, value uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeWaits[h] = value
}

// TakeStoreWait returns and clears the pending wait value for h, if any.
func (r *PersistentRegistry) TakeStoreWait(h framegraph.ResourceHandle) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.storeWaits[h]
	if ok {
		delete(r.storeWaits, h)
	}
	return v, ok
}

// Release destroys a persistent resource's backing object. Never called
// by the frame compiler itself (persistent handles are never disposed by
// a frame per spec §3 Lifecycle); exposed for the owning application to
// call at shutdown.
func (r *PersistentRegistry) Release(h framegraph.ResourceHandle) {
	r.mu.Lock()
	e := r.entries[h]
	delete(r.entries, h)
	delete(r.storeWaits, h)
	r.mu.Unlock()
	if e == nil {
		return
	}
	if r.store != nil {
		r.store.RemoveBuffer(h)
		r.store.RemoveImage(h)
	}
	if e.backingBuffer != nil {
		r.device.DestroyBuffer(e.backingBuffer)
	}
	if e.backingImage != nil {
		r.device.DestroyImage(e.backingImage)
	}
}
