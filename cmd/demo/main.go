// Command demo drives one FrameGraph through a draw pass each frame
// against a real window/swapchain. Instance/device/surface bring-up is
// external collaborator boilerplate the frame graph itself has no opinion
// on; it is trimmed here to the minimum a single-queue-family GPU needs,
// not built out to full multi-queue generality.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/go-gl/glfw/v3.3/glfw"
	vkb "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframegraph/core"
	"github.com/spaghettifunk/vkframegraph/executor"
	"github.com/spaghettifunk/vkframegraph/framegraph"
	"github.com/spaghettifunk/vkframegraph/registry"
	fgvk "github.com/spaghettifunk/vkframegraph/vk"
)

const (
	windowWidth  = 1280
	windowHeight = 720
	appName      = "vkframegraph demo"
)

func main() {
	cfg := core.DefaultConfig()

	if err := glfw.Init(); err != nil {
		core.LogFatal("glfw.Init: %v", err)
	}
	defer glfw.Terminate()

	vkb.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vkb.Init(); err != nil {
		core.LogFatal("vk.Init: %v", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(windowWidth, windowHeight, appName, nil, nil)
	if err != nil {
		core.LogFatal("glfw.CreateWindow: %v", err)
	}
	defer window.Destroy()

	device, surface, debug, err := bootstrap(window, cfg.EnableValidation)
	if err != nil {
		core.LogFatal("bootstrap: %v", err)
	}
	if debug != nil {
		defer debug.Destroy()
	}
	device.RefreshMemoryProperties()

	swapchain, err := fgvk.NewSwapchain(device, surface, windowWidth, windowHeight)
	if err != nil {
		core.LogFatal("NewSwapchain: %v", err)
	}
	defer swapchain.Destroy()

	translator, err := fgvk.New(device, cfg)
	if err != nil {
		core.LogFatal("vk.New: %v", err)
	}
	defer translator.Close()
	registries := registry.New(device)
	registries.AttachStore(translator.Store())
	exec := executor.New(registries, translator)

	// A CPU-written quad exercises the shared-storage upload path; the
	// demo's draw command doesn't actually consume it, but the frame graph
	// still schedules its materialise/read plumbing.
	quad, err := registries.Persistent.AllocateBuffer(framegraph.BufferDescriptor{
		Length:    6 * 4 * 4,
		Storage:   framegraph.StorageShared,
		UsageHint: vkb.BufferUsageFlagBits(vkb.BufferUsageVertexBufferBit),
	})
	if err != nil {
		core.LogFatal("AllocateBuffer(quad): %v", err)
	}
	if err := registries.UploadBuffer(quad, 0, make([]byte, 6*4*4)); err != nil {
		core.LogFatal("UploadBuffer(quad): %v", err)
	}

	windowTex, err := registries.Persistent.AllocateTexture(
		framegraph.NewTextureDescriptor(framegraph.TextureDescriptor{
			Width: windowWidth, Height: windowHeight, ArrayLength: 1, MipLevels: 1,
			Format: vkb.FormatB8g8r8a8Srgb,
		}),
		framegraph.FlagWindowHandle,
		vkb.ImageAspectColorBit,
	)
	if err != nil {
		core.LogFatal("AllocateTexture(window): %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	core.LogInfo("entering frame loop")
	for !window.ShouldClose() {
		select {
		case <-done:
			return
		default:
		}
		glfw.PollEvents()

		acquired, err := swapchain.AcquireNext(windowWidth, windowHeight)
		if err != nil {
			core.LogError("AcquireNext: %v", err)
			break
		}
		if acquired.OutOfDate {
			continue
		}
		translator.SetSwapchainImage(&fgvk.Image{
			Handle: acquired.Image,
			View:   acquired.View,
			Desc: framegraph.NewTextureDescriptor(framegraph.TextureDescriptor{
				Width: windowWidth, Height: windowHeight, Depth: 1,
				ArrayLength: 1, MipLevels: 1,
				SampleCount: vkb.SampleCount1Bit,
				Format:      swapchain.Format.Format,
			}),
		})
		translator.SetSwapchainSync(acquired.AcquireSemaphore, acquired.PresentSemaphore)

		if err := submitFrame(exec, buildFrame(windowTex, quad)); err != nil {
			core.LogError("SubmitFrame: %v", err)
			break
		}

		if err := swapchain.Present(device.GraphicsQueue, acquired.PresentSemaphore, acquired.ImageIndex, windowWidth, windowHeight); err != nil {
			core.LogError("Present: %v", err)
			break
		}
	}
	core.LogInfo("shutting down")
}

// submitFrame recovers a *core.Fault panic from the frame graph's invariant
// checks and turns it into an ordinary error, so one bad frame logs a clean
// diagnostic and the demo exits through the usual error path instead of
// crashing with a raw stack trace. Any other panic value is not ours to
// interpret and is re-raised.
func submitFrame(exec *executor.Executor, inputs framegraph.FrameInputs) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fault, ok := r.(*core.Fault)
			if !ok {
				panic(r)
			}
			err = fault
		}
	}()
	return exec.SubmitFrame(inputs)
}

// demoCommand is a no-op Recordable standing in for a real draw/dispatch
// call; the demo exists to exercise the frame graph's scheduling, not to
// render anything in particular.
type demoCommand struct{ idx int }

func (c demoCommand) Index() int                   { return c.idx }
func (c demoCommand) Record(cmd vkb.CommandBuffer) {}

// buildFrame declares one frame's worth of passes: a single draw clearing
// and writing the window texture, reading the uploaded quad buffer. It
// exists to exercise the frame graph's planner/rescmd/compactor/executor
// pipeline against a real swapchain image, not to render anything in
// particular.
func buildFrame(windowTex, quad framegraph.ResourceHandle) framegraph.FrameInputs {
	return framegraph.FrameInputs{
		Passes: []framegraph.PassRecord{
			{
				Kind:         framegraph.PassDraw,
				CommandRange: framegraph.CommandRange{Start: 0, End: 1},
				Commands:     []framegraph.EncodedCommand{demoCommand{idx: 0}},
				RenderTarget: &framegraph.DrawRenderPassDescriptor{
					Width: windowWidth, Height: windowHeight,
					ColorAttachments: []framegraph.AttachmentDescriptor{
						{Texture: windowTex, Clear: framegraph.ClearColor, FullyOverwrites: true},
					},
					ColorLoadOps:  []vkb.AttachmentLoadOp{vkb.AttachmentLoadOpClear},
					ColorStoreOps: []vkb.AttachmentStoreOp{vkb.AttachmentStoreOpStore},
					Subpasses: []framegraph.SubpassDescriptor{
						{SourcePassIndices: []int{0}, ColorBindings: []framegraph.SubpassBinding{{IsColorTarget: true}}},
					},
					PreviousUsageCommand: []int{-1},
					NextUsageCommand:     []int{-1},
				},
			},
		},
		ResourceUsages: map[framegraph.ResourceHandle][]framegraph.ResourceUsage{
			windowTex: {
				{
					Resource:     windowTex,
					Type:         framegraph.UsageWriteOnlyRenderTarget,
					CommandRange: framegraph.CommandRange{Start: 0, End: 1},
					ActiveRange:  framegraph.Full(),
					PassIndex:    0,
				},
			},
			quad: {
				{
					Resource:     quad,
					Type:         framegraph.UsageVertexBuffer,
					CommandRange: framegraph.CommandRange{Start: 0, End: 1},
					ActiveRange:  framegraph.BufferRange(0, 6*4*4),
					PassIndex:    0,
				},
			},
		},
	}
}
