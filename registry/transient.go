// Package registry implements the transient and persistent resource
// registries: the handle namespace, each handle's descriptor, and the
// per-image layout trackers kept alive across frames for
// persistent/history resources (spec §3 Lifecycle, §5 Concurrency &
// Resource Model). Persistent backings are created at allocation time;
// transient backings are created, recycled and destroyed by the vk
// translator when the frame's materialise/dispose commands run.
package registry

import (
	"sync"

	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/layout"
	vkb "github.com/spaghettifunk/vkframegraph/vk"
)

// Entry is one resource slot: its descriptor, its realised backing
// object (nil until materialised), and — for textures — the layout
// tracker that owns its per-frame timeline.
type Entry struct {
	Handle  framegraph.ResourceHandle
	Buffer  *framegraph.BufferDescriptor
	Texture *framegraph.TextureDescriptor

	backingBuffer *vkb.Buffer
	backingImage  *vkb.Image
	Tracker       *layout.Tracker

	// materialised reports whether the backing object currently exists;
	// window-handle textures stay false until the executor resolves the
	// swapchain image just before first use (spec §3 Lifecycle).
	materialised bool
}

// TransientRegistry owns resources that live for exactly one frame. Spec
// §5 specifies a spinlock (short critical sections, only touched during
// compile and CPU-upload helper paths); Go has no native spinlock
// primitive, so a sync.Mutex stands in — critical sections here are a map
// lookup/insert, never a blocking call.
type TransientRegistry struct {
	mu      sync.Mutex
	device  *vkb.Device
	entries map[framegraph.ResourceHandle]*Entry
	next    uint32
}

func NewTransientRegistry(d *vkb.Device) *TransientRegistry {
	return &TransientRegistry{device: d, entries: make(map[framegraph.ResourceHandle]*Entry)}
}

// DeclareBuffer reserves a new transient handle for desc without allocating the
// backing object; the backing is bound by the translator at the command
// index the resource-command generator chose for the materialise command
// (spec §3 Lifecycle).
func (r *TransientRegistry) DeclareBuffer(desc framegraph.BufferDescriptor) framegraph.ResourceHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := framegraph.ResourceHandle{Kind: framegraph.KindBuffer, Index: r.next}
	r.next++
	r.entries[h] = &Entry{Handle: h, Buffer: &desc}
	return h
}

func (r *TransientRegistry) DeclareTexture(desc framegraph.TextureDescriptor, flags framegraph.HandleFlags) framegraph.ResourceHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := framegraph.ResourceHandle{Kind: framegraph.KindTexture, Flags: flags, Index: r.next}
	r.next++
	r.entries[h] = &Entry{
		Handle:  h,
		Texture: &desc,
		Tracker: layout.NewTracker(int(desc.ArrayLength), int(desc.MipLevels)),
	}
	return h
}

func (r *TransientRegistry) Get(h framegraph.ResourceHandle) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[h]
}

// PrepareFrame resets the registry for a new frame: every transient
// handle from the previous frame died with it (the frame's dispose
// commands released the backings), so this just drops the entries and
// resets the handle counter so debug indices stay small and readable
// across frames.
func (r *TransientRegistry) PrepareFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[framegraph.ResourceHandle]*Entry)
	r.next = 0
}
