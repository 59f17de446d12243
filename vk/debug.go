package vk

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
)

// DebugReportCallback wraps the VK_EXT_debug_report callback installed
// when running with validation layers enabled. It exists purely to route
// driver/validation-layer messages through core.Log*, so a corrupt
// barrier or layout transition built by this package surfaces immediately
// instead of silently undefined behaviour.
type DebugReportCallback struct {
	instance vk.Instance
	handle   vk.DebugReportCallback
}

// InstanceDebugExtensions returns the instance extensions a validation
// build needs, for createInstance to append onto its required-extensions
// list (core.Config.EnableValidation gates whether this is called at all).
func InstanceDebugExtensions() []string {
	return []string{vk.ExtDebugUtilsExtensionName, vk.ExtDebugReportExtensionName}
}

// ValidationLayerNames returns the one layer this backend enables.
func ValidationLayerNames() []string {
	return []string{"VK_LAYER_KHRONOS_validation"}
}

// InstanceLayerAvailable reports whether name is among the instance's
// available layers, via the usual enumerate-then-verify two-call pattern.
func InstanceLayerAvailable(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

// NewDebugReportCallback installs the report callback on instance, routing
// every flag severity to the matching core.Log* level.
func NewDebugReportCallback(instance vk.Instance) (*DebugReportCallback, error) {
	info := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit | vk.DebugReportInformationBit),
		PfnCallback: debugReportCallback,
	}
	d := &DebugReportCallback{instance: instance}
	if res := vk.CreateDebugReportCallback(instance, &info, nil, &d.handle); res != vk.Success {
		return nil, vk.Error(res)
	}
	return d, nil
}

func (d *DebugReportCallback) Destroy() {
	if d.handle != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.handle, nil)
		d.handle = vk.NullDebugReportCallback
	}
}

func debugReportCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64,
	location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("vulkan [%s] %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("vulkan [%s] %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("vulkan perf [%s] %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("vulkan [%s] %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.False
}
