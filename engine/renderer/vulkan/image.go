package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
)

// VulkanImage is a 2D image with its memory and a default view. Swapchain images
// are wrapped without ownership and are never destroyed here.
type VulkanImage struct {
	context *VulkanContext

	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format

	Description framegraph.TextureDescription

	layout framegraph.Layout
	owned  bool
	valid  bool
}

func wrapSwapchainImage(context *VulkanContext, img vk.Image, view vk.ImageView, format vk.SurfaceFormat, extent vk.Extent2D) *VulkanImage {
	return &VulkanImage{
		context: context,
		Handle:  img,
		View:    view,
		Width:   extent.Width,
		Height:  extent.Height,
		Format:  format.Format,
		Description: framegraph.TextureDescription{
			Format:      FromVkFormat(format.Format),
			Width:       extent.Width,
			Height:      extent.Height,
			Usage:       framegraph.UsageColorAttachment,
			MipLevels:   1,
			ArrayLayers: 1,
		},
		layout: framegraph.LayoutUndefined,
		valid:  true,
	}
}

func (vi *VulkanImage) Create(device framegraph.Device, desc framegraph.TextureDescription) error {
	d, ok := device.(*GPUDevice)
	if !ok {
		return fmt.Errorf("vulkan image created on foreign device %T", device)
	}
	if vi.valid {
		return fmt.Errorf("image already created")
	}
	context := d.context
	logical := context.Device.LogicalDevice

	format := ToVkFormat(desc.Format)
	if format == vk.FormatUndefined {
		return fmt.Errorf("format %s has no vulkan equivalent", desc.Format)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLayers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         ToVkImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if res := vk.CreateImage(logical, &imageCreateInfo, context.Allocator, &img); res != vk.Success {
		return resultError("failed to create image", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(logical, img, &memReqs)
	memReqs.Deref()

	memoryType := context.FindMemoryIndex(memReqs.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		vk.DestroyImage(logical, img, context.Allocator)
		return fmt.Errorf("required memory type not found, image not valid")
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(logical, &allocateInfo, context.Allocator, &mem); res != vk.Success {
		vk.DestroyImage(logical, img, context.Allocator)
		return resultError("failed to allocate image memory", res)
	}
	if res := vk.BindImageMemory(logical, img, mem, 0); res != vk.Success {
		vk.FreeMemory(logical, mem, context.Allocator)
		vk.DestroyImage(logical, img, context.Allocator)
		return resultError("failed to bind image memory", res)
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img,
		ViewType:         vk.ImageViewType2d,
		Format:           format,
		SubresourceRange: ToVkSubresourceRange(desc.SubresourceRange()),
	}
	var view vk.ImageView
	if res := vk.CreateImageView(logical, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		vk.FreeMemory(logical, mem, context.Allocator)
		vk.DestroyImage(logical, img, context.Allocator)
		return resultError("failed to create image view", res)
	}

	vi.context = context
	vi.Handle = img
	vi.Memory = mem
	vi.View = view
	vi.Width = desc.Width
	vi.Height = desc.Height
	vi.Format = format
	vi.Description = desc
	vi.layout = framegraph.LayoutUndefined
	vi.owned = true
	vi.valid = true
	return nil
}

func (vi *VulkanImage) ValidResource() bool {
	return vi.valid
}

func (vi *VulkanImage) GetLayout() framegraph.Layout {
	return vi.layout
}

func (vi *VulkanImage) SetLayout(layout framegraph.Layout) {
	vi.layout = layout
}

func (vi *VulkanImage) Destroy() {
	if !vi.valid {
		return
	}
	vi.valid = false
	if !vi.owned {
		return
	}
	logical := vi.context.Device.LogicalDevice
	if vi.context.framebuffers != nil {
		vi.context.framebuffers.evict(vi.context, vi.View)
	}
	if vi.View != vk.NullImageView {
		vk.DestroyImageView(logical, vi.View, vi.context.Allocator)
		vi.View = vk.NullImageView
	}
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(logical, vi.Memory, vi.context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(logical, vi.Handle, vi.context.Allocator)
		vi.Handle = vk.NullImage
	}
}
