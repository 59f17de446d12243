package framegraph

// PassKind identifies the queue/encoder family a pass records into.
type PassKind int

const (
	PassDraw PassKind = iota
	PassCompute
	PassBlit
	PassCPU
	PassExternal
)

// EncodedCommand is an opaque user-recorded GPU command (a draw, dispatch,
// blit, bind, etc). Translating it to vkCmd* calls is the job of the
// caller-supplied translator named in spec §4.5/§6 — the frame compiler
// never inspects its contents, only its position in a PassRecord's
// CommandRange.
type EncodedCommand interface {
	// Index is this command's position within the owning pass's
	// CommandRange, used to interleave compacted sync commands at the
	// matching point in the stream.
	Index() int
}

// PassRecord is one user-declared unit of GPU work.
type PassRecord struct {
	Kind         PassKind
	CommandRange CommandRange
	Commands     []EncodedCommand
	// RenderTarget is non-nil only for PassDraw; it names the attachments
	// this pass wants to bind before the planner fuses passes into
	// DrawRenderPassDescriptor subpasses (spec §4.2).
	RenderTarget *DrawRenderPassDescriptor
	// QueueFamily is the Vulkan queue family index this pass submits on;
	// the resource-command generator compares this across adjacent
	// usages to choose semaphores vs barriers vs events (spec §4.3).
	QueueFamily uint32
	// DebugName is attached to validation-layer labels.
	DebugName string
}

// EncoderID identifies one executor encoder (one open command buffer on
// one queue). Two passes of the same PassKind on the same QueueFamily that
// run back-to-back share an EncoderID if the executor merges them.
type EncoderID int

// FineDependency is one resource-level hazard between two encoders,
// carried in DependencyTable for the command compactor's event phase
// (spec §4.4, §6).
type FineDependency struct {
	Resource   ResourceHandle
	SrcUsage   ResourceUsage
	DstUsage   ResourceUsage
}

// DependencyTable gives, for every ordered pair of encoders with a
// resource hazard between them, the list of FineDependency entries that
// justify it. The command compactor transitively reduces this before
// emitting events.
type DependencyTable map[EncoderPair][]FineDependency

// EncoderPair keys DependencyTable; Src must execute strictly before Dst
// in submission order.
type EncoderPair struct {
	Src, Dst EncoderID
}

// FrameInputs is everything the frame-graph core receives from its host
// for one frame, per spec §6 "Inputs from the frame-graph core".
type FrameInputs struct {
	Passes              []PassRecord
	ResourceUsages      map[ResourceHandle][]ResourceUsage
	EncoderDependencies DependencyTable
	// OnComplete is invoked once per frame after the GPU has finished
	// executing it (called from the executor's fence-wait background
	// worker, never inline with submission).
	OnComplete func()
}
