package registry

import (
	"fmt"

	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/layout"
	vkb "github.com/spaghettifunk/vkframegraph/vk"
)

// Registries bundles the transient and persistent registries a frame
// compiles against. Kept as one type so the executor has a single thing
// to call PrepareFrame on (spec §4.5 step 1).
type Registries struct {
	Transient  *TransientRegistry
	Persistent *PersistentRegistry

	device *vkb.Device
	store  *vkb.BackingStore
}

func New(d *vkb.Device) *Registries {
	return &Registries{
		Transient:  NewTransientRegistry(d),
		Persistent: NewPersistentRegistry(d),
		device:     d,
	}
}

// AttachStore binds the translator's backing-object table so persistent
// allocations land where the frame's materialise commands will find them,
// and the CPU-upload helpers can resolve any handle's backing buffer.
func (r *Registries) AttachStore(s *vkb.BackingStore) {
	r.store = s
	r.Persistent.store = s
}

// PrepareFrame resets per-frame state ahead of planning/compiling the
// next frame. The persistent registry needs no per-frame reset — its
// entries outlive frames by definition — so only the transient registry
// is touched.
func (r *Registries) PrepareFrame() {
	r.Transient.PrepareFrame()
}

// Entry returns the registry entry for h: from the persistent registry
// when h carries FlagPersistent, otherwise from the transient registry.
// There is no fallback between the two; nil means that registry does not
// know h.
func (r *Registries) Entry(h framegraph.ResourceHandle) *Entry {
	if h.Flags.Has(framegraph.FlagPersistent) {
		return r.Persistent.Get(h)
	}
	return r.Transient.Get(h)
}

// Tracker returns the layout tracker for h, or nil if h names a buffer or
// is unknown to either registry.
func (r *Registries) Tracker(h framegraph.ResourceHandle) *layout.Tracker {
	e := r.Entry(h)
	if e == nil {
		return nil
	}
	return e.Tracker
}

// UploadBuffer writes data into h's backing buffer at offset, through a
// transient host mapping. This is the CPU-upload helper path: valid for
// Shared/Managed-storage buffers whose backing already exists — persistent
// buffers any time after allocation, transients only once the frame's
// materialise command has run.
func (r *Registries) UploadBuffer(h framegraph.ResourceHandle, offset uint64, data []byte) error {
	if r.store == nil {
		return fmt.Errorf("registry: no backing store attached")
	}
	buf := r.store.Buffer(h)
	if buf == nil {
		return fmt.Errorf("registry: upload to %v before its backing buffer exists", h)
	}
	return buf.Upload(r.device, offset, data)
}
