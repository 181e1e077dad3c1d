package vulkan

import (
	"errors"
	"fmt"
	gomath "math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/platform"
)

type VulkanRenderer struct {
	platform       *platform.Platform
	FrameNumber    uint64
	context        *VulkanContext
	device         *GPUDevice
	framesInFlight uint32

	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32

	debug bool
}

func New(p *platform.Platform, framesInFlight uint32, debug bool) *VulkanRenderer {
	if framesInFlight == 0 {
		framesInFlight = 2
	}
	context := &VulkanContext{}
	return &VulkanRenderer{
		platform:       p,
		context:        context,
		device:         &GPUDevice{context: context},
		framesInFlight: framesInFlight,
		debug:          debug,
	}
}

func (vr *VulkanRenderer) Device() framegraph.Device {
	return vr.device
}

func (vr *VulkanRenderer) Initialize(appName string, appWidth, appHeight uint32) error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("failed to initialize vk: %w", err)
	}

	vr.context.FramebufferWidth = appWidth
	vr.context.FramebufferHeight = appHeight
	vr.context.renderpasses = newRenderpassCache()
	vr.context.framebuffers = newFramebufferCache()

	if err := vr.createInstance(appName); err != nil {
		return err
	}

	if vr.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			return fmt.Errorf("vk.CreateDebugReportCallback failed: %w", err)
		}
		vr.context.debugMessenger = dbg
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.platform.Window.CreateWindowSurface(vr.context.Instance, nil)
	if err != nil {
		return fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)

	if err := DeviceCreate(vr.context); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight, vr.framesInFlight)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc

	if err := vr.createCommandBuffers(); err != nil {
		return err
	}
	if err := vr.createSyncObjects(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Anima Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := vr.platform.GetRequiredExtensionNames()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if vr.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	var layers []string
	if vr.debug {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := requireLayers(layers); err != nil {
			core.LogWarn("%s, validation disabled", err)
			layers = nil
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &instance); res != vk.Success {
		return fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
	}
	if err := vk.InitInstance(instance); err != nil {
		return err
	}
	vr.context.Instance = instance
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func requireLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("failed to enumerate layers", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("failed to enumerate layers", res)
	}
	for _, name := range required {
		found := false
		for i := range available {
			available[i].Deref()
			if vk.ToString(available[i].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	return nil
}

func (vr *VulkanRenderer) createSyncObjects() error {
	n := vr.context.Swapchain.MaxFramesInFlight
	vr.context.ImageAvailableSemaphores = make([]vk.Semaphore, n)
	vr.context.QueueCompleteSemaphores = make([]vk.Semaphore, n)
	vr.context.InFlightFences = make([]*VulkanFence, n)

	semaphoreCreateInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for i := uint32(0); i < n; i++ {
		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.ImageAvailableSemaphores[i]); res != vk.Success {
			return resultError("failed to create image available semaphore", res)
		}
		if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &semaphoreCreateInfo, vr.context.Allocator, &vr.context.QueueCompleteSemaphores[i]); res != vk.Success {
			return resultError("failed to create queue complete semaphore", res)
		}
		// Signaled so the first frame does not wait on a frame that never ran.
		f, err := NewFence(vr.context, true)
		if err != nil {
			return err
		}
		vr.context.InFlightFences[i] = f
	}
	// Not owned, these point into InFlightFences.
	vr.context.ImagesInFlight = make([]*VulkanFence, len(vr.context.Swapchain.Images))
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	if vr.context.Device == nil {
		return nil
	}
	vk.DeviceWaitIdle(vr.context.Device.LogicalDevice)

	// Destroy in the opposite order of creation.
	for i := range vr.context.InFlightFences {
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, vr.context.ImageAvailableSemaphores[i], vr.context.Allocator)
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, vr.context.QueueCompleteSemaphores[i], vr.context.Allocator)
		vr.context.InFlightFences[i].FenceDestroy(vr.context)
	}
	vr.context.ImageAvailableSemaphores = nil
	vr.context.QueueCompleteSemaphores = nil
	vr.context.InFlightFences = nil
	vr.context.ImagesInFlight = nil

	for _, cb := range vr.context.GraphicsCommandBuffers {
		if cb != nil && cb.Handle != nil {
			cb.Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
	}
	vr.context.GraphicsCommandBuffers = nil

	vr.context.framebuffers.destroy(vr.context)
	vr.context.renderpasses.destroy(vr.context)

	if vr.context.Swapchain != nil {
		vr.context.Swapchain.SwapchainDestroy(vr.context)
		vr.context.Swapchain = nil
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(vr.context)

	if vr.context.Surface != vk.NullSurface {
		vk.DestroySurface(vr.context.Instance, vr.context.Surface, vr.context.Allocator)
		vr.context.Surface = vk.NullSurface
	}
	if vr.context.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vr.context.Instance, vr.context.debugMessenger, vr.context.Allocator)
		vr.context.debugMessenger = vk.NullDebugReportCallback
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(vr.context.Instance, vr.context.Allocator)
	return nil
}

// Resized bumps the framebuffer size generation; the swapchain is recreated at
// the start of the next frame.
func (vr *VulkanRenderer) Resized(width, height uint32) error {
	vr.cachedFramebufferWidth = width
	vr.cachedFramebufferHeight = height
	vr.context.FramebufferSizeGeneration++
	core.LogInfo("Vulkan renderer backend resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
	return nil
}

// BeginFrame acquires the next swapchain image and starts recording. It returns
// core.ErrSwapchainBooting when the frame must be skipped.
func (vr *VulkanRenderer) BeginFrame(deltaTime float64) (framegraph.CommandList, error) {
	c := vr.context
	if c.RecreatingSwapchain {
		if res := vk.DeviceWaitIdle(c.Device.LogicalDevice); !VulkanResultIsSuccess(res) {
			return nil, resultError("begin frame device wait idle", res)
		}
		return nil, core.ErrSwapchainBooting
	}

	if c.FramebufferSizeGeneration != c.FramebufferSizeLastGeneration {
		if err := vr.recreateSwapchain(); err != nil {
			return nil, err
		}
		core.LogInfo("Resized, booting.")
		return nil, core.ErrSwapchainBooting
	}

	if !c.InFlightFences[c.CurrentFrame].FenceWait(c, gomath.MaxUint64) {
		return nil, fmt.Errorf("in-flight fence wait failure")
	}

	index, err := c.Swapchain.SwapchainAcquireNextImageIndex(c, gomath.MaxUint64, c.ImageAvailableSemaphores[c.CurrentFrame], vk.NullFence)
	if errors.Is(err, core.ErrSwapchainBooting) {
		if rerr := vr.recreateSwapchain(); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.ImageIndex = index
	c.ImageAcquired = true

	cb := c.GraphicsCommandBuffers[c.CurrentFrame]
	cb.Reset()
	if err := cb.Begin(false, false, false); err != nil {
		c.ImageAcquired = false
		return nil, err
	}
	return newCommandList(c, cb), nil
}

func (vr *VulkanRenderer) EndFrame(deltaTime float64) error {
	c := vr.context
	if !c.ImageAcquired {
		return nil
	}
	c.ImageAcquired = false
	cb := c.GraphicsCommandBuffers[c.CurrentFrame]
	if err := cb.End(); err != nil {
		return err
	}

	// Make sure the previous frame is not using this image.
	if f := c.ImagesInFlight[c.ImageIndex]; f != nil {
		f.FenceWait(c, gomath.MaxUint64)
	}
	c.ImagesInFlight[c.ImageIndex] = c.InFlightFences[c.CurrentFrame]

	if err := c.InFlightFences[c.CurrentFrame].FenceReset(c); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{c.ImageAvailableSemaphores[c.CurrentFrame]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{c.QueueCompleteSemaphores[c.CurrentFrame]},
	}
	if res := vk.QueueSubmit(c.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, c.InFlightFences[c.CurrentFrame].Handle); res != vk.Success {
		return resultError("vkQueueSubmit failed", res)
	}
	cb.UpdateSubmitted()

	err := c.Swapchain.SwapchainPresent(c, c.Device.PresentQueue, c.QueueCompleteSemaphores[c.CurrentFrame], c.ImageIndex)
	vr.FrameNumber++
	if errors.Is(err, core.ErrSwapchainBooting) {
		// Recreated at the start of the next frame.
		c.FramebufferSizeGeneration++
		if vr.cachedFramebufferWidth == 0 {
			vr.cachedFramebufferWidth, vr.cachedFramebufferHeight = c.FramebufferWidth, c.FramebufferHeight
		}
		return nil
	}
	return err
}

func (vr *VulkanRenderer) createCommandBuffers() error {
	for _, cb := range vr.context.GraphicsCommandBuffers {
		if cb != nil && cb.Handle != nil {
			cb.Free(vr.context, vr.context.Device.GraphicsCommandPool)
		}
	}
	vr.context.GraphicsCommandBuffers = make([]*VulkanCommandBuffer, vr.context.Swapchain.MaxFramesInFlight)
	for i := range vr.context.GraphicsCommandBuffers {
		cb, err := NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}
		vr.context.GraphicsCommandBuffers[i] = cb
	}
	core.LogDebug("Vulkan command buffers created.")
	return nil
}

func (vr *VulkanRenderer) recreateSwapchain() error {
	c := vr.context
	if c.RecreatingSwapchain {
		return nil
	}
	width, height := vr.cachedFramebufferWidth, vr.cachedFramebufferHeight
	if width == 0 || height == 0 {
		// Minimized, try again on the next resize.
		core.LogDebug("swapchain recreation skipped, window is < 1 in a dimension")
		return core.ErrSwapchainBooting
	}

	c.RecreatingSwapchain = true
	defer func() { c.RecreatingSwapchain = false }()

	sc, err := c.Swapchain.SwapchainRecreate(c, width, height)
	if err != nil {
		return err
	}
	c.Swapchain = sc
	c.FramebufferWidth = width
	c.FramebufferHeight = height
	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0
	c.FramebufferSizeLastGeneration = c.FramebufferSizeGeneration

	for i := range c.ImagesInFlight {
		c.ImagesInFlight[i] = nil
	}
	if len(c.ImagesInFlight) != len(sc.Images) {
		c.ImagesInFlight = make([]*VulkanFence, len(sc.Images))
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
