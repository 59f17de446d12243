package vk

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
)

func TestLayoutTableRegisterAndResolve(t *testing.T) {
	var table LayoutTable
	var a, b vk.DescriptorSetLayout

	ia := table.Register(a)
	ib := table.Register(b)
	if ia == ib {
		t.Fatalf("two registrations yielded the same index %d", ia)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 registered layouts, got %d", table.Len())
	}
	// Indices must be stable and dense: the first registration is 0.
	if ia != 0 || ib != 1 {
		t.Fatalf("expected indices 0 and 1, got %d and %d", ia, ib)
	}
}

func TestLayoutTableOutOfRangePanics(t *testing.T) {
	var table LayoutTable
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic for an unregistered index")
		}
		if _, ok := r.(*core.Fault); !ok {
			t.Fatalf("expected a *core.Fault, got %T", r)
		}
	}()
	table.Layout(3)
}

// TestPipelineLayoutKeyIsComparable checks the key works as a cache map
// key: equal layouts collide, any field difference separates.
func TestPipelineLayoutKeyIsComparable(t *testing.T) {
	base := PipelineLayoutKey{
		SetLayouts:       [maxBoundSets]DescriptorSetLayoutIndex{0, 1, InvalidLayoutIndex, InvalidLayoutIndex},
		PushConstantSize: 64,
	}
	same := base
	diffSet := base
	diffSet.SetLayouts[1] = 2
	diffPush := base
	diffPush.PushConstantSize = 128

	cache := map[PipelineLayoutKey]int{base: 1}
	if cache[same] != 1 {
		t.Fatalf("identical key missed the cache")
	}
	if _, ok := cache[diffSet]; ok {
		t.Fatalf("differing set layout hit the cache")
	}
	if _, ok := cache[diffPush]; ok {
		t.Fatalf("differing push constant size hit the cache")
	}
}
