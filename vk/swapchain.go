package vk

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
)

// Swapchain adapts a VkSwapchainKHR to the one thing the frame graph needs
// from it each frame: the current image and the pair of semaphores that
// gate acquisition/presentation around the graphics queue submit. Creation
// and surface-format/present-mode selection follow the usual
// VkSwapchainKHR bootstrap: query capabilities, pick a surface format and
// present mode, create, fetch images, build views.
type Swapchain struct {
	device  *Device
	surface vk.Surface

	Handle vk.Swapchain
	Format vk.SurfaceFormat
	Extent vk.Extent2D

	Images []vk.Image
	Views  []vk.ImageView

	MaxFramesInFlight uint32
	acquireSemaphores []vk.Semaphore
	presentSemaphores []vk.Semaphore
	currentFrame      uint32
}

// NewSwapchain creates the swapchain for surface at (width, height),
// picking BGRA8_SRGB/nonlinear if available and mailbox present mode if
// available.
func NewSwapchain(d *Device, surface vk.Surface, width, height uint32) (*Swapchain, error) {
	sc := &Swapchain{device: d, surface: surface, MaxFramesInFlight: 2}

	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.PhysicalDevice, surface, &caps); res != vk.Success {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceCapabilities: result %d", res)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.PhysicalDevice, surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(d.PhysicalDevice, surface, &formatCount, formats)
	sc.Format = formats[0]
	for _, f := range formats {
		f.Deref()
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.Format = f
			break
		}
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.PhysicalDevice, surface, &presentModeCount, nil)
	presentModes := make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(d.PhysicalDevice, surface, &presentModeCount, presentModes)
	presentMode := vk.PresentModeFifo
	for _, m := range presentModes {
		if m == vk.PresentModeMailbox {
			presentMode = m
			break
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	sc.Extent = extent

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.Format.Format,
		ImageColorSpace:  sc.Format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}
	if res := vk.CreateSwapchain(d.Logical, &createInfo, d.Allocator, &sc.Handle); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateSwapchain: result %d", res)
	}

	var n uint32
	vk.GetSwapchainImages(d.Logical, sc.Handle, &n, nil)
	sc.Images = make([]vk.Image, n)
	vk.GetSwapchainImages(d.Logical, sc.Handle, &n, sc.Images)

	sc.Views = make([]vk.ImageView, n)
	for i := range sc.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    sc.Images[i],
			ViewType: vk.ImageViewType2d,
			Format:   sc.Format.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(d.Logical, &viewInfo, d.Allocator, &sc.Views[i]); res != vk.Success {
			return nil, fmt.Errorf("vk.CreateImageView(swapchain image %d): result %d", i, res)
		}
	}

	sc.acquireSemaphores = make([]vk.Semaphore, sc.MaxFramesInFlight)
	sc.presentSemaphores = make([]vk.Semaphore, sc.MaxFramesInFlight)
	for i := range sc.acquireSemaphores {
		info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		if res := vk.CreateSemaphore(d.Logical, &info, d.Allocator, &sc.acquireSemaphores[i]); res != vk.Success {
			return nil, fmt.Errorf("vk.CreateSemaphore(acquire %d): result %d", i, res)
		}
		if res := vk.CreateSemaphore(d.Logical, &info, d.Allocator, &sc.presentSemaphores[i]); res != vk.Success {
			return nil, fmt.Errorf("vk.CreateSemaphore(present %d): result %d", i, res)
		}
	}

	core.LogInfo("vk.Swapchain: created %d images at %dx%d", n, extent.Width, extent.Height)
	return sc, nil
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AcquireResult names the image handed back by AcquireNext, the view built
// over it, and the semaphore the graphics submit must wait on before
// writing to it.
type AcquireResult struct {
	ImageIndex       uint32
	Image            vk.Image
	View             vk.ImageView
	AcquireSemaphore vk.Semaphore
	PresentSemaphore vk.Semaphore
	OutOfDate        bool
}

// AcquireNext acquires the next presentable image, recreating the
// swapchain and reporting OutOfDate if the surface has changed size — a
// transient condition the caller recovers from by rebuilding and retrying.
func (sc *Swapchain) AcquireNext(width, height uint32) (AcquireResult, error) {
	acquire := sc.acquireSemaphores[sc.currentFrame]
	present := sc.presentSemaphores[sc.currentFrame]

	var idx uint32
	result := vk.AcquireNextImage(sc.device.Logical, sc.Handle, math.MaxUint64, acquire, nil, &idx)
	if result == vk.ErrorOutOfDate {
		if err := sc.recreate(width, height); err != nil {
			return AcquireResult{}, err
		}
		return AcquireResult{OutOfDate: true}, nil
	}
	if result != vk.Success && result != vk.Suboptimal {
		return AcquireResult{}, fmt.Errorf("vk.AcquireNextImage: result %d", result)
	}

	return AcquireResult{
		ImageIndex:       idx,
		Image:            sc.Images[idx],
		View:             sc.Views[idx],
		AcquireSemaphore: acquire,
		PresentSemaphore: present,
	}, nil
}

// Present submits imageIndex back to presentQueue, waiting on
// presentSemaphore (the one the graphics submit signalled), and advances
// the frame-in-flight index.
func (sc *Swapchain) Present(presentQueue vk.Queue, presentSemaphore vk.Semaphore, imageIndex uint32, width, height uint32) error {
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{presentSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	result := vk.QueuePresent(presentQueue, &info)
	sc.currentFrame = (sc.currentFrame + 1) % sc.MaxFramesInFlight
	if result == vk.ErrorOutOfDate || result == vk.Suboptimal {
		return sc.recreate(width, height)
	}
	if result != vk.Success {
		return fmt.Errorf("vk.QueuePresent: result %d", result)
	}
	return nil
}

func (sc *Swapchain) recreate(width, height uint32) error {
	sc.Destroy()
	fresh, err := NewSwapchain(sc.device, sc.surface, width, height)
	if err != nil {
		return err
	}
	*sc = *fresh
	return nil
}

func (sc *Swapchain) Destroy() {
	vk.DeviceWaitIdle(sc.device.Logical)
	for _, s := range sc.acquireSemaphores {
		vk.DestroySemaphore(sc.device.Logical, s, sc.device.Allocator)
	}
	for _, s := range sc.presentSemaphores {
		vk.DestroySemaphore(sc.device.Logical, s, sc.device.Allocator)
	}
	for _, v := range sc.Views {
		vk.DestroyImageView(sc.device.Logical, v, sc.device.Allocator)
	}
	if sc.Handle != nil {
		vk.DestroySwapchain(sc.device.Logical, sc.Handle, sc.device.Allocator)
	}
}
