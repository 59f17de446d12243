package framegraph

import (
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
)

// StorageMode names the three memory residency strategies a buffer or
// image creation call picks between via memoryFlags, made an explicit
// descriptor field so the registries can pick host-visible memory types
// without re-deriving intent from raw property flags.
type StorageMode int

const (
	// StoragePrivate lives in device-local memory only; CPU access requires
	// a staging buffer.
	StoragePrivate StorageMode = iota
	// StorageShared lives in host-visible, host-coherent memory.
	StorageShared
	// StorageManaged is host-visible but not coherent; writes are flushed
	// by the allocator on unmap.
	StorageManaged
)

// CPUCacheMode further qualifies Shared/Managed storage.
type CPUCacheMode int

const (
	CPUCacheDefaultCached CPUCacheMode = iota
	CPUCacheWriteCombined
)

// BufferDescriptor fully describes a buffer resource independent of its
// backing VkBuffer.
type BufferDescriptor struct {
	Length       uint64
	Storage      StorageMode
	CPUCache     CPUCacheMode
	UsageHint    vk.BufferUsageFlagBits // superset of every observed usage flag
	DebugName    string
}

// Named returns d with DebugName populated from a fresh UUID if it was
// left blank, so every buffer gets a stable debug name even when the
// caller doesn't supply one.
func (d BufferDescriptor) Named() BufferDescriptor {
	if d.DebugName == "" {
		d.DebugName = "buffer@" + uuid.New().String()
	}
	return d
}

// Aspect identifies which image planes a texture's format exposes.
type Aspect uint8

const (
	AspectColor Aspect = 1 << iota
	AspectDepth
	AspectStencil
)

// TextureDescriptor fully describes a texture resource. SubresourceCount
// and AllAspects are derived fields computed by NewTextureDescriptor so
// callers never have to keep them in sync by hand.
type TextureDescriptor struct {
	Width, Height, Depth uint32
	ArrayLength          uint32
	MipLevels            uint32
	SampleCount          vk.SampleCountFlagBits
	Format               vk.Format
	Storage              StorageMode
	UsageHint            vk.ImageUsageFlagBits

	// Derived.
	SubresourceCount uint32
	AllAspects       Aspect

	DebugName string
}

// NewTextureDescriptor fills in the derived fields from format/dimensions.
func NewTextureDescriptor(d TextureDescriptor) TextureDescriptor {
	d.SubresourceCount = d.ArrayLength * d.MipLevels
	d.AllAspects = aspectsForFormat(d.Format)
	return d
}

// Named mirrors BufferDescriptor.Named.
func (d TextureDescriptor) Named() TextureDescriptor {
	if d.DebugName == "" {
		d.DebugName = "image@" + uuid.New().String()
	}
	return d
}

// IsDepthStencil reports whether the texture carries a depth or stencil
// aspect; usage-type layout/access resolution branches on this.
func (d TextureDescriptor) IsDepthStencil() bool {
	return d.AllAspects&(AspectDepth|AspectStencil) != 0
}

func aspectsForFormat(f vk.Format) Aspect {
	switch f {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatX8D24UnormPack32:
		return AspectDepth
	case vk.FormatS8Uint:
		return AspectStencil
	case vk.FormatD16UnormS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return AspectDepth | AspectStencil
	default:
		return AspectColor
	}
}
