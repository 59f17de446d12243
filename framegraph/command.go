package framegraph

import vk "github.com/goki/vulkan"

// CommandOrder says whether a resource command runs immediately before or
// after the user command at its CommandIndex.
type CommandOrder int

const (
	OrderBefore CommandOrder = iota
	OrderAfter
)

// ResourceCommandKind tags the payload carried by ResourceCommand.
type ResourceCommandKind int

const (
	CmdMaterialiseBuffer ResourceCommandKind = iota
	CmdMaterialiseTexture
	CmdDisposeBuffer
	CmdDisposeTexture
	CmdSignalEvent
	CmdWaitForEvent
	CmdSignalSemaphore
	CmdWaitForSemaphore
	CmdPipelineBarrier
	CmdUseResource
	CmdStoreResource
)

// BarrierInfo is the payload shared by CmdWaitForEvent/CmdPipelineBarrier:
// a fully-resolved memory dependency ready for Vulkan.
type BarrierInfo struct {
	SrcStageMask, DstStageMask   vk.PipelineStageFlagBits
	SrcAccessMask, DstAccessMask vk.AccessFlagBits
	// OldLayout/NewLayout apply to image barriers only; both zero means
	// this is a buffer-memory barrier. Buffers are never barriered inside
	// a render pass.
	OldLayout, NewLayout vk.ImageLayout
	Resource             ResourceHandle
	Subresources         []SubresourceRect
	BufferOffset         uint64
	BufferSize           uint64
	// SrcQueueFamily/DstQueueFamily differ from vk.QueueFamilyIgnored only
	// for an ownership-transfer release/acquire pair under exclusive
	// sharing mode; under concurrent sharing no transfer is ever needed.
	SrcQueueFamily, DstQueueFamily uint32
}

// SubresourceRect mirrors mask.Rect without importing the mask package
// into every consumer of BarrierInfo; rescmd converts mask.Rect values
// into these when it materialises a barrier.
type SubresourceRect struct {
	BaseLayer, LayerCount int
	BaseLevel, LevelCount int
}

// ResourceCommand is one raw materialise/dispose/synchronisation command
// emitted by the resource-command generator, not yet merged by the
// compactor.
type ResourceCommand struct {
	CommandIndex int
	Order        CommandOrder
	Kind         ResourceCommandKind

	Resource ResourceHandle

	// Populated depending on Kind.
	Barrier       BarrierInfo
	AggregatedBufferUsage  vk.BufferUsageFlagBits
	AggregatedImageUsage   vk.ImageUsageFlagBits
	EventStages   vk.PipelineStageFlagBits
	// EncoderID/PairEncoderID identify, for Signal/Wait commands, the two
	// encoders this primitive connects (used by the compactor's
	// transitive reduction).
	EncoderID     EncoderID
	PairEncoderID EncoderID
}

// Less implements the canonical total order: by command-index, then order
// (before < after), with materialise commands sorted before
// non-materialise at the same position.
func Less(a, b ResourceCommand) bool {
	if a.CommandIndex != b.CommandIndex {
		return a.CommandIndex < b.CommandIndex
	}
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	aMat := isMaterialise(a.Kind)
	bMat := isMaterialise(b.Kind)
	if aMat != bMat {
		return aMat
	}
	return false
}

func isMaterialise(k ResourceCommandKind) bool {
	return k == CmdMaterialiseBuffer || k == CmdMaterialiseTexture
}

// CompactedKind tags a CompactedCommand's Vulkan call shape.
type CompactedKind int

const (
	CompactSignalEvent CompactedKind = iota
	CompactWaitForEvents
	CompactPipelineBarrier
)

// CompactedCommand is a bit-exact Vulkan call descriptor produced by the
// command compactor. Exactly one of the fields relevant to Kind is
// populated.
type CompactedCommand struct {
	Kind         CompactedKind
	CommandIndex int
	Order        CommandOrder

	// CompactSignalEvent
	Event       uint64 // opaque registry key resolved to vk.Event by vk.Translator
	AfterStages vk.PipelineStageFlagBits

	// CompactWaitForEvents
	Events        []uint64
	WaitSrcStages vk.PipelineStageFlagBits
	WaitDstStages vk.PipelineStageFlagBits

	// CompactPipelineBarrier / shared with CompactWaitForEvents
	DependencyFlags vk.DependencyFlagBits
	BufferBarriers  []BarrierInfo
	ImageBarriers   []BarrierInfo

	// ResolvedBySubpass is true when this dependency was resolved entirely
	// by a subpass dependency and no event/barrier is emitted at all.
	ResolvedBySubpass bool
}
