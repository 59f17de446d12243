package vk

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
)

// CommandBufferState tracks a command buffer's lifecycle from allocation
// through recording to submission, minus the single-use-only states this
// backend never needs — every encoder here is a primary command buffer
// recorded once per frame and resubmitted.
type CommandBufferState int

const (
	CommandBufferReady CommandBufferState = iota
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
	CommandBufferNotAllocated
)

// CommandBuffer wraps one VkCommandBuffer with its recording state.
type CommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
	pool   vk.CommandPool
}

// AllocateCommandBuffer allocates one primary command buffer from pool.
func AllocateCommandBuffer(d *Device, pool vk.CommandPool) (*CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.Logical, &info, handles); res != vk.Success {
		return nil, fmt.Errorf("vk.AllocateCommandBuffers: result %d", res)
	}
	return &CommandBuffer{Handle: handles[0], State: CommandBufferReady, pool: pool}, nil
}

func (c *CommandBuffer) Free(d *Device) {
	vk.FreeCommandBuffers(d.Logical, c.pool, 1, []vk.CommandBuffer{c.Handle})
	c.Handle = nil
	c.State = CommandBufferNotAllocated
}

func (c *CommandBuffer) Begin(singleUse, simultaneousUse bool) error {
	info := &vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if singleUse {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if simultaneousUse {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	if res := vk.BeginCommandBuffer(c.Handle, info); res != vk.Success {
		err := fmt.Errorf("vk.BeginCommandBuffer: result %d", res)
		core.LogError(err.Error())
		return err
	}
	c.State = CommandBufferRecording
	return nil
}

func (c *CommandBuffer) End() error {
	if res := vk.EndCommandBuffer(c.Handle); res != vk.Success {
		err := fmt.Errorf("vk.EndCommandBuffer: result %d", res)
		core.LogError(err.Error())
		return err
	}
	c.State = CommandBufferRecordingEnded
	return nil
}

func (c *CommandBuffer) Reset() { c.State = CommandBufferReady }

// SubmitInfo carries the one thing every encoder's submission needs beyond
// the command buffer itself: which binary semaphores to wait/signal, and
// which fence to signal on completion.
type SubmitInfo struct {
	WaitSemaphores   []vk.Semaphore
	WaitDstStages    []vk.PipelineStageFlags
	SignalSemaphores []vk.Semaphore
	Fence            vk.Fence
}

// Submit submits one or more already-ended command buffers to queue.
func Submit(queue vk.Queue, buffers []*CommandBuffer, info SubmitInfo) error {
	handles := make([]vk.CommandBuffer, len(buffers))
	for i, b := range buffers {
		handles[i] = b.Handle
	}
	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(handles)),
		PCommandBuffers:      handles,
		WaitSemaphoreCount:   uint32(len(info.WaitSemaphores)),
		PWaitSemaphores:      info.WaitSemaphores,
		PWaitDstStageMask:    info.WaitDstStages,
		SignalSemaphoreCount: uint32(len(info.SignalSemaphores)),
		PSignalSemaphores:    info.SignalSemaphores,
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submit}, info.Fence); res != vk.Success {
		err := fmt.Errorf("vk.QueueSubmit: result %d", res)
		core.LogError(err.Error())
		return err
	}
	for _, b := range buffers {
		b.State = CommandBufferSubmitted
	}
	return nil
}
