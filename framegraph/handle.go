// Package framegraph defines the data model shared by every frame-compiler
// component: resource handles and descriptors, usage records, the render
// target descriptor, and the resource/compacted command types. It uses
// goki/vulkan only for its type and flag definitions (formats, layouts,
// stage/access masks) and makes no Vulkan calls — vk.Translator is what
// turns these types into vkCmd* calls.
package framegraph

// ResourceKind distinguishes the two backing-object families the frame
// graph manages. Every other kind of GPU object — pipeline, descriptor
// set, sampler — is out of scope; those are owned and bound by the
// application, not tracked here.
type ResourceKind uint8

const (
	KindBuffer ResourceKind = iota
	KindTexture
)

func (k ResourceKind) String() string {
	if k == KindBuffer {
		return "buffer"
	}
	return "texture"
}

// HandleFlags records properties of a handle that change how the compiler
// treats its lifetime, independent of anything in its usage timeline.
type HandleFlags uint8

const (
	// FlagPersistent marks a handle whose backing object survives past
	// this frame; the frame never emits a Dispose command for it.
	FlagPersistent HandleFlags = 1 << iota
	// FlagHistoryBuffer marks a persistent resource materialised on its
	// creation frame and preserved (never disposed) thereafter.
	FlagHistoryBuffer
	// FlagWindowHandle marks a non-persistent swapchain-backed texture;
	// materialisation is deferred until the first render-pass instance
	// that uses it (the image isn't known until vkAcquireNextImageKHR).
	FlagWindowHandle
	// FlagInitialised marks a persistent/history resource that has
	// already been written in a prior frame, so its frame-initial layout
	// should be read from the carried-over tracker state rather than
	// assumed UNDEFINED.
	FlagInitialised
)

func (f HandleFlags) Has(flag HandleFlags) bool { return f&flag != 0 }

// InvalidIndex is the sentinel Index value of a zero-value ResourceHandle;
// registries never hand out this index, so IsValid can tell a properly
// constructed handle from an accidentally zeroed one.
const InvalidIndex uint32 = ^uint32(0)

// ResourceHandle is an opaque identifier for a buffer or texture. Handles
// are stable within a frame; handles carrying FlagPersistent are stable
// across frames (the Index identifies a slot in the persistent registry
// rather than a transient one).
type ResourceHandle struct {
	Kind  ResourceKind
	Flags HandleFlags
	Index uint32
}

// InvalidHandle is the distinguished "no resource" value.
var InvalidHandle = ResourceHandle{Index: InvalidIndex}

// IsValid reports whether h refers to an actual registry slot.
func (h ResourceHandle) IsValid() bool { return h.Index != InvalidIndex }
