package main

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vkb "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
	fgvk "github.com/spaghettifunk/vkframegraph/vk"
)

// bootstrap creates the VkInstance/VkSurfaceKHR/VkDevice this demo needs to
// drive the frame graph against a real window. It is the external
// collaborator boilerplate every Vulkan application needs but the frame
// graph itself has no opinion on, collapsed to a single queue family
// wherever the GPU offers one that can do graphics+compute+transfer and
// present, instead of separate graphics/present/transfer family
// bookkeeping.
func bootstrap(window *glfw.Window, enableValidation bool) (*fgvk.Device, vkb.Surface, *fgvk.DebugReportCallback, error) {
	instance, err := createInstance(window, enableValidation)
	if err != nil {
		return nil, nil, nil, err
	}

	var debug *fgvk.DebugReportCallback
	if enableValidation {
		debug, err = fgvk.NewDebugReportCallback(instance)
		if err != nil {
			core.LogWarn("bootstrap: debug report callback unavailable: %v", err)
			debug = nil
		}
	}

	surfacePtr, err := window.CreateWindowSurface(instance, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("CreateWindowSurface: %w", err)
	}
	surface := vkb.SurfaceFromPointer(surfacePtr)

	physicalDevice, family, err := pickPhysicalDevice(instance, surface)
	if err != nil {
		return nil, nil, nil, err
	}

	logical, err := createLogicalDevice(physicalDevice, family)
	if err != nil {
		return nil, nil, nil, err
	}

	device := &fgvk.Device{
		Instance:            instance,
		PhysicalDevice:      physicalDevice,
		Logical:             logical,
		GraphicsQueueFamily: family,
		ComputeQueueFamily:  family,
		TransferQueueFamily: family,
	}
	vkb.GetDeviceQueue(logical, family, 0, &device.GraphicsQueue)
	device.ComputeQueue = device.GraphicsQueue
	device.TransferQueue = device.GraphicsQueue

	if err := createCommandPools(device); err != nil {
		return nil, nil, nil, err
	}

	return device, surface, debug, nil
}

// createInstance builds the VkInstance from glfw's required extensions
// plus VK_KHR_surface, plus the macOS portability extensions, and (when
// the config asks for it) the debug utils/report extensions and the
// Khronos validation layer.
func createInstance(window *glfw.Window, enableValidation bool) (vkb.Instance, error) {
	appInfo := vkb.ApplicationInfo{
		SType:              vkb.StructureTypeApplicationInfo,
		ApiVersion:         vkb.MakeVersion(1, 1, 0),
		ApplicationVersion: vkb.MakeVersion(1, 0, 0),
		PApplicationName:   safeCString(appName),
		PEngineName:        safeCString("vkframegraph"),
	}

	extensions := append([]string{"VK_KHR_surface"}, window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
	}

	layers := []string{}
	if enableValidation {
		extensions = append(extensions, fgvk.InstanceDebugExtensions()...)
		for _, name := range fgvk.ValidationLayerNames() {
			if fgvk.InstanceLayerAvailable(name) {
				layers = append(layers, name)
			} else {
				core.LogWarn("bootstrap: validation layer %s not available", name)
			}
		}
	}

	createInfo := vkb.InstanceCreateInfo{
		SType:                   vkb.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}
	if runtime.GOOS == "darwin" {
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var instance vkb.Instance
	if res := vkb.CreateInstance(&createInfo, nil, &instance); res != vkb.Success {
		return nil, fmt.Errorf("vk.CreateInstance: result %d", res)
	}
	if err := vkb.InitInstance(instance); err != nil {
		return nil, fmt.Errorf("vk.InitInstance: %w", err)
	}
	return instance, nil
}

func safeCString(s string) string {
	return s + "\x00"
}

// pickPhysicalDevice scans for a queue family offering graphics, compute,
// transfer, and present all at once, stopping at the first family that
// satisfies every bit instead of tracking four independent indices.
func pickPhysicalDevice(instance vkb.Instance, surface vkb.Surface) (vkb.PhysicalDevice, uint32, error) {
	var count uint32
	vkb.EnumeratePhysicalDevices(instance, &count, nil)
	if count == 0 {
		return nil, 0, fmt.Errorf("no Vulkan physical devices found")
	}
	devices := make([]vkb.PhysicalDevice, count)
	vkb.EnumeratePhysicalDevices(instance, &count, devices)

	const need = vkb.QueueGraphicsBit | vkb.QueueComputeBit | vkb.QueueTransferBit

	for _, pd := range devices {
		var famCount uint32
		vkb.GetPhysicalDeviceQueueFamilyProperties(pd, &famCount, nil)
		families := make([]vkb.QueueFamilyProperties, famCount)
		vkb.GetPhysicalDeviceQueueFamilyProperties(pd, &famCount, families)

		for i := uint32(0); i < famCount; i++ {
			families[i].Deref()
			if vkb.QueueFlagBits(families[i].QueueFlags)&need != need {
				continue
			}
			var present vkb.Bool32
			if res := vkb.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &present); res != vkb.Success || present != vkb.True {
				continue
			}
			var props vkb.PhysicalDeviceProperties
			vkb.GetPhysicalDeviceProperties(pd, &props)
			props.Deref()
			core.LogInfo("bootstrap: selected device %q, queue family %d", vkb.ToString(props.DeviceName[:]), i)
			return pd, i, nil
		}
	}
	return nil, 0, fmt.Errorf("no physical device has a single queue family covering graphics+compute+transfer+present")
}

func createLogicalDevice(physicalDevice vkb.PhysicalDevice, family uint32) (vkb.Device, error) {
	queueInfo := vkb.DeviceQueueCreateInfo{
		SType:            vkb.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}

	extensions := []string{vkb.KhrSwapchainExtensionName}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	var features vkb.PhysicalDeviceFeatures
	vkb.GetPhysicalDeviceFeatures(physicalDevice, &features)
	features.Deref()

	createInfo := vkb.DeviceCreateInfo{
		SType:                   vkb.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vkb.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures:        []vkb.PhysicalDeviceFeatures{features},
	}

	var logical vkb.Device
	if res := vkb.CreateDevice(physicalDevice, &createInfo, nil, &logical); res != vkb.Success {
		return nil, fmt.Errorf("vk.CreateDevice: result %d", res)
	}
	return logical, nil
}

// createCommandPools gives the translator one resettable pool per logical
// queue role; since this demo's GPU has a single family covering all
// three, all three pools are built against it.
func createCommandPools(d *fgvk.Device) error {
	info := vkb.CommandPoolCreateInfo{
		SType:            vkb.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.GraphicsQueueFamily,
		Flags:            vkb.CommandPoolCreateFlags(vkb.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vkb.CommandPool
	if res := vkb.CreateCommandPool(d.Logical, &info, nil, &pool); res != vkb.Success {
		return fmt.Errorf("vk.CreateCommandPool: result %d", res)
	}
	d.GraphicsCommandPool = pool
	d.ComputeCommandPool = pool
	d.TransferCommandPool = pool
	return nil
}
