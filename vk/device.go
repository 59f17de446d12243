// Package vk is the Vulkan 1.1 backend: it owns the logical device,
// allocates the actual VkImage/VkBuffer objects the registries track,
// translates compacted commands into vkCmd* calls, and adapts the
// swapchain. The frame-compiler packages (framegraph, layout, planner,
// rescmd, compactor, executor) use goki/vulkan only for its types and
// constants and make no Vulkan calls of their own; registry reaches the
// device only through this package's CreateImage/CreateBuffer.
package vk

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// Device wraps the logical device, physical device memory properties, and
// the allocation callback pointer every creation call needs. spaghettifunk-anima
// splits this across VulkanContext/VulkanDevice; here it collapses into one
// type since this backend has no higher-level renderer state to keep
// separate from it.
type Device struct {
	Instance       vk.Instance
	PhysicalDevice vk.PhysicalDevice
	Logical        vk.Device
	Allocator      *vk.AllocationCallbacks

	GraphicsQueue       vk.Queue
	GraphicsQueueFamily uint32
	ComputeQueue        vk.Queue
	ComputeQueueFamily  uint32
	TransferQueue       vk.Queue
	TransferQueueFamily uint32

	GraphicsCommandPool vk.CommandPool
	ComputeCommandPool  vk.CommandPool
	TransferCommandPool vk.CommandPool

	memProps vk.PhysicalDeviceMemoryProperties
}

// FindMemoryIndex scans the physical device's memory types for one whose
// bit is set in typeFilter and whose property flags are a superset of
// propertyFlags, the standard VkPhysicalDeviceMemoryProperties walk.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	d.memProps.Deref()
	for i := uint32(0); i < d.memProps.MemoryTypeCount; i++ {
		d.memProps.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && vk.MemoryPropertyFlagBits(d.memProps.MemoryTypes[i].PropertyFlags)&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("vk.Device: no suitable memory type for filter 0x%x flags 0x%x", typeFilter, propertyFlags)
	return -1
}

// RefreshMemoryProperties must be called once after the physical device is
// selected, before any FindMemoryIndex call.
func (d *Device) RefreshMemoryProperties() {
	vk.GetPhysicalDeviceMemoryProperties(d.PhysicalDevice, &d.memProps)
}

// Image is the realised backing object for a framegraph texture handle.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Desc   framegraph.TextureDescriptor
}

func memoryFlagsForStorage(storage framegraph.StorageMode) vk.MemoryPropertyFlagBits {
	switch storage {
	case framegraph.StoragePrivate:
		return vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit)
	case framegraph.StorageShared:
		return vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostCoherentBit)
	case framegraph.StorageManaged:
		return vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit)
	default:
		return vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit)
	}
}

// CreateImage allocates a VkImage/VkDeviceMemory/VkImageView for desc: the
// usual create, query requirements, find a memory type, allocate, bind,
// view sequence.
func (d *Device) CreateImage(desc framegraph.TextureDescriptor, aspect vk.ImageAspectFlagBits) (*Image, error) {
	imageType := vk.ImageType2d
	if desc.Depth > 1 {
		imageType = vk.ImageType3d
	}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  desc.Depth,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLength,
		Format:        desc.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(desc.UsageHint),
		Samples:       desc.SampleCount,
		SharingMode:   vk.SharingModeExclusive,
	}

	img := &Image{Desc: desc}
	if res := vk.CreateImage(d.Logical, &createInfo, d.Allocator, &img.Handle); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateImage(%s): result %d", desc.DebugName, res)
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.Logical, img.Handle, &reqs)
	reqs.Deref()

	memType := d.FindMemoryIndex(reqs.MemoryTypeBits, memoryFlagsForStorage(desc.Storage))
	if memType < 0 {
		return nil, fmt.Errorf("no memory type for image %s", desc.DebugName)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(memType),
	}
	if res := vk.AllocateMemory(d.Logical, &allocInfo, d.Allocator, &img.Memory); res != vk.Success {
		return nil, fmt.Errorf("vk.AllocateMemory(image %s): result %d", desc.DebugName, res)
	}
	if res := vk.BindImageMemory(d.Logical, img.Handle, img.Memory, 0); res != vk.Success {
		return nil, fmt.Errorf("vk.BindImageMemory(image %s): result %d", desc.DebugName, res)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewTypeFor(desc),
		Format:   desc.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     desc.MipLevels,
			BaseArrayLayer: 0,
			LayerCount:     desc.ArrayLength,
		},
	}
	if res := vk.CreateImageView(d.Logical, &viewInfo, d.Allocator, &img.View); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateImageView(image %s): result %d", desc.DebugName, res)
	}

	return img, nil
}

func viewTypeFor(desc framegraph.TextureDescriptor) vk.ImageViewType {
	switch {
	case desc.Depth > 1:
		return vk.ImageViewType3d
	case desc.ArrayLength > 1:
		return vk.ImageViewType2dArray
	default:
		return vk.ImageViewType2d
	}
}

// DestroyImage releases the view, memory, and handle, in that order — the
// reverse of creation.
func (d *Device) DestroyImage(img *Image) {
	if img == nil {
		return
	}
	if img.View != nil {
		vk.DestroyImageView(d.Logical, img.View, d.Allocator)
		img.View = nil
	}
	if img.Memory != nil {
		vk.FreeMemory(d.Logical, img.Memory, d.Allocator)
		img.Memory = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(d.Logical, img.Handle, d.Allocator)
		img.Handle = nil
	}
}

// Buffer is the realised backing object for a framegraph buffer handle.
type Buffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Desc   framegraph.BufferDescriptor
	mapped unsafe.Pointer
}

// CreateBuffer allocates a VkBuffer/VkDeviceMemory for desc.
func (d *Device) CreateBuffer(desc framegraph.BufferDescriptor) (*Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Length),
		Usage:       vk.BufferUsageFlags(desc.UsageHint),
		SharingMode: vk.SharingModeExclusive,
	}

	buf := &Buffer{Desc: desc}
	if res := vk.CreateBuffer(d.Logical, &createInfo, d.Allocator, &buf.Handle); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateBuffer(%s): result %d", desc.DebugName, res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.Logical, buf.Handle, &reqs)
	reqs.Deref()

	memType := d.FindMemoryIndex(reqs.MemoryTypeBits, memoryFlagsForStorage(desc.Storage))
	if memType < 0 {
		return nil, fmt.Errorf("no memory type for buffer %s", desc.DebugName)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(memType),
	}
	if res := vk.AllocateMemory(d.Logical, &allocInfo, d.Allocator, &buf.Memory); res != vk.Success {
		return nil, fmt.Errorf("vk.AllocateMemory(buffer %s): result %d", desc.DebugName, res)
	}
	if res := vk.BindBufferMemory(d.Logical, buf.Handle, buf.Memory, 0); res != vk.Success {
		return nil, fmt.Errorf("vk.BindBufferMemory(buffer %s): result %d", desc.DebugName, res)
	}
	return buf, nil
}

// Map exposes the buffer's memory to the CPU. Only valid for Shared/
// Managed storage; Private buffers have no host-visible mapping and
// return an error instead.
func (b *Buffer) Map(d *Device) (unsafe.Pointer, error) {
	if b.Desc.Storage == framegraph.StoragePrivate {
		return nil, fmt.Errorf("buffer %s: private storage is not host-mappable", b.Desc.DebugName)
	}
	if b.mapped != nil {
		return b.mapped, nil
	}
	if res := vk.MapMemory(d.Logical, b.Memory, 0, vk.DeviceSize(b.Desc.Length), 0, &b.mapped); res != vk.Success {
		return nil, fmt.Errorf("vk.MapMemory(buffer %s): result %d", b.Desc.DebugName, res)
	}
	return b.mapped, nil
}

// Unmap releases the host mapping, flushing first for Managed storage
// (Shared storage is host-coherent and needs no flush).
func (b *Buffer) Unmap(d *Device) error {
	if b.mapped == nil {
		return nil
	}
	if b.Desc.Storage == framegraph.StorageManaged {
		rng := vk.MappedMemoryRange{
			SType:  vk.StructureTypeMappedMemoryRange,
			Memory: b.Memory,
			Offset: 0,
			Size:   vk.DeviceSize(vk.WholeSize),
		}
		if res := vk.FlushMappedMemoryRanges(d.Logical, 1, []vk.MappedMemoryRange{rng}); res != vk.Success {
			return fmt.Errorf("vk.FlushMappedMemoryRanges(buffer %s): result %d", b.Desc.DebugName, res)
		}
	}
	vk.UnmapMemory(d.Logical, b.Memory)
	b.mapped = nil
	return nil
}

// Upload copies data into the buffer at offset through a transient map.
func (b *Buffer) Upload(d *Device, offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.Desc.Length {
		return fmt.Errorf("buffer %s: upload of %d bytes at offset %d exceeds length %d", b.Desc.DebugName, len(data), offset, b.Desc.Length)
	}
	ptr, err := b.Map(d)
	if err != nil {
		return err
	}
	vk.Memcopy(unsafe.Pointer(uintptr(ptr)+uintptr(offset)), data)
	return b.Unmap(d)
}

// DestroyBuffer frees memory then destroys the handle.
func (d *Device) DestroyBuffer(buf *Buffer) {
	if buf == nil {
		return
	}
	if buf.Memory != nil {
		vk.FreeMemory(d.Logical, buf.Memory, d.Allocator)
		buf.Memory = nil
	}
	if buf.Handle != nil {
		vk.DestroyBuffer(d.Logical, buf.Handle, d.Allocator)
		buf.Handle = nil
	}
}
