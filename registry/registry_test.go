package registry

import (
	"testing"

	"github.com/spaghettifunk/vkframegraph/framegraph"
	vkb "github.com/spaghettifunk/vkframegraph/vk"
)

func TestTransientDeclareResolveAndReset(t *testing.T) {
	reg := New(nil)

	buf := reg.Transient.DeclareBuffer(framegraph.BufferDescriptor{Length: 128})
	tex := reg.Transient.DeclareTexture(framegraph.TextureDescriptor{Width: 16, Height: 16, ArrayLength: 2, MipLevels: 3}, 0)

	if e := reg.Entry(buf); e == nil || e.Buffer == nil || e.Buffer.Length != 128 {
		t.Fatalf("buffer entry not resolvable: %+v", reg.Entry(buf))
	}
	e := reg.Entry(tex)
	if e == nil || e.Texture == nil || e.Tracker == nil {
		t.Fatalf("texture entry must carry descriptor and tracker: %+v", e)
	}

	reg.PrepareFrame()
	if reg.Entry(buf) != nil || reg.Entry(tex) != nil {
		t.Fatalf("transient entries survived PrepareFrame")
	}

	// Handle indices restart so debug output stays small across frames.
	again := reg.Transient.DeclareBuffer(framegraph.BufferDescriptor{Length: 64})
	if again.Index != 0 {
		t.Fatalf("expected index reuse after PrepareFrame, got %d", again.Index)
	}
}

func TestPersistentStoreWaitBookkeeping(t *testing.T) {
	reg := New(nil)
	h, err := reg.Persistent.AllocateTexture(
		framegraph.TextureDescriptor{Width: 8, Height: 8, ArrayLength: 1, MipLevels: 1},
		framegraph.FlagWindowHandle, // skips real image creation; device is nil here
		0,
	)
	if err != nil {
		t.Fatalf("AllocateTexture: %v", err)
	}

	if _, ok := reg.Persistent.TakeStoreWait(h); ok {
		t.Fatalf("fresh handle must have no pending store wait")
	}
	reg.Persistent.RecordStoreWait(h, 7)
	v, ok := reg.Persistent.TakeStoreWait(h)
	if !ok || v != 7 {
		t.Fatalf("expected wait value 7, got %d ok=%v", v, ok)
	}
	if _, ok := reg.Persistent.TakeStoreWait(h); ok {
		t.Fatalf("TakeStoreWait must clear the recorded value")
	}
}

func TestUploadBufferRequiresBacking(t *testing.T) {
	reg := New(nil)
	h := reg.Transient.DeclareBuffer(framegraph.BufferDescriptor{Length: 32, Storage: framegraph.StorageShared})

	if err := reg.UploadBuffer(h, 0, make([]byte, 4)); err == nil {
		t.Fatalf("upload with no backing store attached must fail")
	}
	reg.AttachStore(vkb.NewBackingStore())
	if err := reg.UploadBuffer(h, 0, make([]byte, 4)); err == nil {
		t.Fatalf("upload before materialisation must fail")
	}
}
