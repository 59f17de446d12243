package vk

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
)

// DescriptorSetLayoutIndex is the small-integer handle the frame graph
// passes around in place of a raw VkDescriptorSetLayout pointer. Argument
// buffer "encoders" arriving from the reflection component are registered
// once in a LayoutTable and referenced by index from then on.
type DescriptorSetLayoutIndex int

// InvalidLayoutIndex is the "no layout" sentinel.
const InvalidLayoutIndex DescriptorSetLayoutIndex = -1

// maxBoundSets matches Vulkan's minimum guaranteed maxBoundDescriptorSets.
const maxBoundSets = 4

// PipelineLayoutKey identifies a pipeline layout to the pipeline/shader
// cache: the descriptor set layouts bound at each set number plus the push
// constant footprint. Two programs with equal keys share a VkPipelineLayout.
type PipelineLayoutKey struct {
	SetLayouts       [maxBoundSets]DescriptorSetLayoutIndex
	PushConstantSize uint32
}

// ProgramReflection is the per-program reflection record handed to the
// pipeline/shader cache alongside the PipelineLayoutKey: which set numbers
// the program populates and how many dynamic offsets each carries.
type ProgramReflection struct {
	Layout              PipelineLayoutKey
	SetCount            int
	DynamicOffsetCounts [maxBoundSets]int
}

// BoundArgumentBuffer is the resolved binding handed to the descriptor-set
// writer: the allocated set plus the dynamic offset array in binding order.
type BoundArgumentBuffer struct {
	Set            vk.DescriptorSet
	DynamicOffsets []uint32
}

// LayoutTable owns the index -> VkDescriptorSetLayout mapping. Layouts are
// registered by whichever component performed shader reflection; the table
// never creates or destroys the layouts themselves.
type LayoutTable struct {
	layouts []vk.DescriptorSetLayout
}

// Register appends layout and returns its index. Registering the same
// layout twice yields two indices; callers are expected to register each
// reflected layout exactly once.
func (t *LayoutTable) Register(layout vk.DescriptorSetLayout) DescriptorSetLayoutIndex {
	t.layouts = append(t.layouts, layout)
	return DescriptorSetLayoutIndex(len(t.layouts) - 1)
}

// Layout resolves an index back to the VkDescriptorSetLayout. An index
// outside the table is a programmer error.
func (t *LayoutTable) Layout(idx DescriptorSetLayoutIndex) vk.DescriptorSetLayout {
	if idx < 0 || int(idx) >= len(t.layouts) {
		core.Panic(&core.Fault{
			Component:    "vk.LayoutTable",
			CommandIndex: -1,
			Detail:       fmt.Sprintf("descriptor set layout index %d out of range (%d registered)", idx, len(t.layouts)),
		})
	}
	return t.layouts[idx]
}

// Len returns the number of registered layouts.
func (t *LayoutTable) Len() int { return len(t.layouts) }

// descriptorPoolSets sizes each VkDescriptorPool; exhaustion just grows a
// new pool, so this only tunes how often that happens.
const descriptorPoolSets = 256

var descriptorPoolSizes = []vk.DescriptorPoolSize{
	{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolSets * 2},
	{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: descriptorPoolSets},
	{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: descriptorPoolSets * 2},
	{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: descriptorPoolSets * 4},
	{Type: vk.DescriptorTypeStorageImage, DescriptorCount: descriptorPoolSets},
	{Type: vk.DescriptorTypeInputAttachment, DescriptorCount: descriptorPoolSets},
}

// DescriptorPoolRing rotates one pool chain per frame-in-flight slot. Sets
// allocated for frame N are freed wholesale by resetting slot N's pools
// when the ring rotates back to it — individual vkFreeDescriptorSets calls
// never happen.
type DescriptorPoolRing struct {
	device *Device
	slots  [][]vk.DescriptorPool
	frame  int

	Layouts LayoutTable
}

// NewDescriptorPoolRing creates one initial pool per frame slot.
func NewDescriptorPoolRing(d *Device, framesInFlight int) (*DescriptorPoolRing, error) {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	r := &DescriptorPoolRing{device: d, slots: make([][]vk.DescriptorPool, framesInFlight)}
	for i := range r.slots {
		pool, err := r.createPool()
		if err != nil {
			r.Destroy()
			return nil, err
		}
		r.slots[i] = []vk.DescriptorPool{pool}
	}
	return r, nil
}

func (r *DescriptorPoolRing) createPool() (vk.DescriptorPool, error) {
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descriptorPoolSets,
		PoolSizeCount: uint32(len(descriptorPoolSizes)),
		PPoolSizes:    descriptorPoolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(r.device.Logical, &info, r.device.Allocator, &pool); res != vk.Success {
		return nil, fmt.Errorf("vk.CreateDescriptorPool: result %d", res)
	}
	return pool, nil
}

// PrepareFrame rotates the ring to frameIndex's slot and resets that
// slot's pools, recycling every set allocated the last time this slot was
// current. The caller guarantees (via the frame fence) that the GPU is
// done with those sets.
func (r *DescriptorPoolRing) PrepareFrame(frameIndex int) error {
	r.frame = frameIndex % len(r.slots)
	for _, pool := range r.slots[r.frame] {
		if res := vk.ResetDescriptorPool(r.device.Logical, pool, 0); res != vk.Success {
			return fmt.Errorf("vk.ResetDescriptorPool: result %d", res)
		}
	}
	return nil
}

// Allocate returns a fresh descriptor set for the registered layout,
// growing a new pool in the current slot when the newest one is exhausted.
// Exhaustion never surfaces to the caller as an error.
func (r *DescriptorPoolRing) Allocate(idx DescriptorSetLayoutIndex) (vk.DescriptorSet, error) {
	layout := r.Layouts.Layout(idx)
	slot := r.slots[r.frame]
	set, res := r.tryAllocate(slot[len(slot)-1], layout)
	if res == vk.Success {
		return set, nil
	}
	if res != vk.ErrorOutOfPoolMemory && res != vk.ErrorFragmentedPool {
		return nil, fmt.Errorf("vk.AllocateDescriptorSets: result %d", res)
	}
	pool, err := r.createPool()
	if err != nil {
		return nil, err
	}
	r.slots[r.frame] = append(r.slots[r.frame], pool)
	set, res = r.tryAllocate(pool, layout)
	if res != vk.Success {
		return nil, fmt.Errorf("vk.AllocateDescriptorSets (fresh pool): result %d", res)
	}
	return set, nil
}

func (r *DescriptorPoolRing) tryAllocate(pool vk.DescriptorPool, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.Result) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(r.device.Logical, &info, &set)
	return set, res
}

// Bind allocates a set for idx and pairs it with the caller's dynamic
// offsets, yielding the record the descriptor-set writer consumes.
func (r *DescriptorPoolRing) Bind(idx DescriptorSetLayoutIndex, dynamicOffsets []uint32) (BoundArgumentBuffer, error) {
	set, err := r.Allocate(idx)
	if err != nil {
		return BoundArgumentBuffer{}, err
	}
	return BoundArgumentBuffer{Set: set, DynamicOffsets: dynamicOffsets}, nil
}

func (r *DescriptorPoolRing) Destroy() {
	for i, slot := range r.slots {
		for _, pool := range slot {
			vk.DestroyDescriptorPool(r.device.Logical, pool, r.device.Allocator)
		}
		r.slots[i] = nil
	}
}
