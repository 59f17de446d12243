package vk

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

func TestResourcePoolDisabledNeverRecycles(t *testing.T) {
	p := NewResourcePool(false)
	desc := framegraph.BufferDescriptor{Length: 256, Storage: framegraph.StoragePrivate}

	if p.ReleaseBuffer(&Buffer{Desc: desc}, nil) {
		t.Fatalf("disabled pool accepted a release")
	}
	if _, _, ok := p.AcquireBuffer(desc); ok {
		t.Fatalf("disabled pool handed out a backing")
	}
}

func TestResourcePoolBufferRoundTrip(t *testing.T) {
	p := NewResourcePool(true)
	desc := framegraph.BufferDescriptor{Length: 256, Storage: framegraph.StoragePrivate, UsageHint: vk.BufferUsageFlagBits(vk.BufferUsageStorageBufferBit)}
	buf := &Buffer{Desc: desc}
	waits := []DisposalWait{{QueueFamily: 1}}

	if !p.ReleaseBuffer(buf, waits) {
		t.Fatalf("release rejected")
	}
	got, gotWaits, ok := p.AcquireBuffer(desc)
	if !ok || got != buf {
		t.Fatalf("expected the released backing back, got %v ok=%v", got, ok)
	}
	if len(gotWaits) != 1 || gotWaits[0].QueueFamily != 1 {
		t.Fatalf("disposal waits did not ride with the backing: %v", gotWaits)
	}
	if _, _, ok := p.AcquireBuffer(desc); ok {
		t.Fatalf("backing handed out twice")
	}
}

// TestResourcePoolKeyMismatch checks that a recycled backing only stands
// in for a new allocation when every creation-relevant field matches.
func TestResourcePoolKeyMismatch(t *testing.T) {
	base := framegraph.BufferDescriptor{Length: 256, Storage: framegraph.StoragePrivate}
	cases := []struct {
		name string
		req  framegraph.BufferDescriptor
	}{
		{"length", framegraph.BufferDescriptor{Length: 512, Storage: framegraph.StoragePrivate}},
		{"storage", framegraph.BufferDescriptor{Length: 256, Storage: framegraph.StorageShared}},
		{"usage", framegraph.BufferDescriptor{Length: 256, Storage: framegraph.StoragePrivate, UsageHint: vk.BufferUsageFlagBits(vk.BufferUsageIndexBufferBit)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewResourcePool(true)
			p.ReleaseBuffer(&Buffer{Desc: base}, nil)
			if _, _, ok := p.AcquireBuffer(tc.req); ok {
				t.Fatalf("pool matched a %s mismatch", tc.name)
			}
		})
	}
}

func TestResourcePoolImageRoundTrip(t *testing.T) {
	p := NewResourcePool(true)
	desc := framegraph.TextureDescriptor{
		Width: 128, Height: 128, Depth: 1, ArrayLength: 1, MipLevels: 1,
		Format: vk.FormatR8g8b8a8Unorm,
	}
	img := &Image{Desc: desc}
	if !p.ReleaseImage(img, nil) {
		t.Fatalf("release rejected")
	}
	got, _, ok := p.AcquireImage(desc)
	if !ok || got != img {
		t.Fatalf("expected the released image back")
	}

	other := desc
	other.Format = vk.FormatB8g8r8a8Unorm
	p.ReleaseImage(img, nil)
	if _, _, ok := p.AcquireImage(other); ok {
		t.Fatalf("pool matched an image with a different format")
	}
}

// TestResourcePoolDrainReturnsWaits checks Drain destroys everything and
// surfaces the events still riding on pooled backings so the caller can
// recycle them. Zero-valued handles make the destroy calls no-ops, so
// this runs without a device.
func TestResourcePoolDrainReturnsWaits(t *testing.T) {
	p := NewResourcePool(true)
	p.ReleaseBuffer(&Buffer{Desc: framegraph.BufferDescriptor{Length: 64}}, []DisposalWait{{QueueFamily: 0}})
	p.ReleaseImage(&Image{Desc: framegraph.TextureDescriptor{Width: 4, Height: 4, ArrayLength: 1, MipLevels: 1}}, []DisposalWait{{QueueFamily: 2}})

	waits := p.Drain(&Device{})
	if len(waits) != 2 {
		t.Fatalf("expected 2 riding waits back from Drain, got %d", len(waits))
	}
	if _, _, ok := p.AcquireBuffer(framegraph.BufferDescriptor{Length: 64}); ok {
		t.Fatalf("pool still holds a backing after Drain")
	}
}
