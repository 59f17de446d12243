package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSwapchainOutOfDate names the transient condition in which
	// vkAcquireNextImageKHR / vkQueuePresentKHR report an out-of-date
	// swapchain, recovered by rebuilding the swapchain and retrying. No
	// function in this module returns it: the swapchain adapter reports
	// that condition through AcquireResult.OutOfDate.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date or suboptimal, rebuilding")
	// ErrDeviceLost is fatal; no retry is attempted.
	ErrDeviceLost = errors.New("vulkan device lost")
	// ErrAllocationFailed names an allocate* request that cannot be
	// satisfied (out of device memory, pool exhausted beyond its growth
	// policy, etc). No function in this module returns it.
	ErrAllocationFailed = errors.New("resource allocation failed")
)

// Fault reports a programmer-error invariant violation: a missing layout
// entry, an unsupported usage-type combination, a buffer barrier attempted
// inside a render pass instance. These are not recoverable; callers panic
// with a Fault rather than returning one, so a single bad frame can be
// caught and diagnosed at the top of the call stack instead of bubbling an
// ordinary error through every intermediate layer.
type Fault struct {
	// Component names the subsystem that detected the violation.
	Component string
	// CommandIndex is the offending command's position in the frame, or -1.
	CommandIndex int
	// Detail is a human-readable description of the violated invariant.
	Detail string
}

func (f *Fault) Error() string {
	if f.CommandIndex < 0 {
		return fmt.Sprintf("%s: %s", f.Component, f.Detail)
	}
	return fmt.Sprintf("%s: %s (command %d)", f.Component, f.Detail, f.CommandIndex)
}

// Panic raises f as a panic value after logging it, so a crash report
// and the validation-layer log both name the same offending command.
func Panic(f *Fault) {
	LogError("invariant violated in %s: %s", f.Component, f.Detail)
	panic(f)
}
