package vk

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// bufferPoolKey identifies a class of interchangeable buffer backings: a
// recycled VkBuffer may stand in for a new allocation only when every
// creation-relevant field matches exactly.
type bufferPoolKey struct {
	length  uint64
	storage framegraph.StorageMode
	usage   vk.BufferUsageFlagBits
}

type imagePoolKey struct {
	width, height, depth uint32
	layers, levels       uint32
	format               vk.Format
	samples              vk.SampleCountFlagBits
	storage              framegraph.StorageMode
	usage                vk.ImageUsageFlagBits
}

func bufferKeyFor(desc framegraph.BufferDescriptor) bufferPoolKey {
	return bufferPoolKey{length: desc.Length, storage: desc.Storage, usage: desc.UsageHint}
}

func imageKeyFor(desc framegraph.TextureDescriptor) imagePoolKey {
	return imagePoolKey{
		width: desc.Width, height: desc.Height, depth: desc.Depth,
		layers: desc.ArrayLength, levels: desc.MipLevels,
		format: desc.Format, samples: desc.SampleCount,
		storage: desc.Storage, usage: desc.UsageHint,
	}
}

// DisposalWait is one event a future aliasing allocation must wait on
// before its first GPU access: the producer frame signals it at the
// disposed resource's last use, so the recycled memory is never touched
// while in-flight work still references it.
type DisposalWait struct {
	Event       vk.Event
	QueueFamily uint32
}

type pooledBuffer struct {
	buf   *Buffer
	waits []DisposalWait
}

type pooledImage struct {
	img   *Image
	waits []DisposalWait
}

// ResourcePool recycles disposed transient backings for reuse by later
// allocations of the same shape. Disabled (every dispose destroys
// immediately) unless the aliasing config flag is on.
type ResourcePool struct {
	mu      sync.Mutex
	enabled bool
	buffers map[bufferPoolKey][]pooledBuffer
	images  map[imagePoolKey][]pooledImage
}

func NewResourcePool(enabled bool) *ResourcePool {
	return &ResourcePool{
		enabled: enabled,
		buffers: make(map[bufferPoolKey][]pooledBuffer),
		images:  make(map[imagePoolKey][]pooledImage),
	}
}

func (p *ResourcePool) Enabled() bool { return p.enabled }

// AcquireBuffer pops a recycled backing matching desc, if one exists,
// along with the disposal waits the caller must record before first use.
func (p *ResourcePool) AcquireBuffer(desc framegraph.BufferDescriptor) (*Buffer, []DisposalWait, bool) {
	if !p.enabled {
		return nil, nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := bufferKeyFor(desc)
	list := p.buffers[key]
	if len(list) == 0 {
		return nil, nil, false
	}
	entry := list[len(list)-1]
	p.buffers[key] = list[:len(list)-1]
	return entry.buf, entry.waits, true
}

func (p *ResourcePool) AcquireImage(desc framegraph.TextureDescriptor) (*Image, []DisposalWait, bool) {
	if !p.enabled {
		return nil, nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := imageKeyFor(desc)
	list := p.images[key]
	if len(list) == 0 {
		return nil, nil, false
	}
	entry := list[len(list)-1]
	p.images[key] = list[:len(list)-1]
	return entry.img, entry.waits, true
}

// ReleaseBuffer parks a disposed backing for reuse. waits carries the
// disposal events recorded at the dispose point; they ride with the
// backing until a future acquire consumes them (an event set in a prior
// frame is simply already signalled by the time it is waited on).
func (p *ResourcePool) ReleaseBuffer(buf *Buffer, waits []DisposalWait) bool {
	if !p.enabled {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := bufferKeyFor(buf.Desc)
	p.buffers[key] = append(p.buffers[key], pooledBuffer{buf: buf, waits: waits})
	return true
}

func (p *ResourcePool) ReleaseImage(img *Image, waits []DisposalWait) bool {
	if !p.enabled {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	key := imageKeyFor(img.Desc)
	p.images[key] = append(p.images[key], pooledImage{img: img, waits: waits})
	return true
}

// Drain destroys every pooled backing and returns the disposal events
// still riding on them so the caller can recycle the events themselves.
func (p *ResourcePool) Drain(d *Device) []DisposalWait {
	p.mu.Lock()
	defer p.mu.Unlock()
	var waits []DisposalWait
	for key, list := range p.buffers {
		for _, entry := range list {
			d.DestroyBuffer(entry.buf)
			waits = append(waits, entry.waits...)
		}
		delete(p.buffers, key)
	}
	for key, list := range p.images {
		for _, entry := range list {
			d.DestroyImage(entry.img)
			waits = append(waits, entry.waits...)
		}
		delete(p.images, key)
	}
	return waits
}
