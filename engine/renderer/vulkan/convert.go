package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
)

var formats = map[framegraph.Format]vk.Format{
	framegraph.FormatUndefined:      vk.FormatUndefined,
	framegraph.FormatRGBA8Unorm:     vk.FormatR8g8b8a8Unorm,
	framegraph.FormatRGBA8Srgb:      vk.FormatR8g8b8a8Srgb,
	framegraph.FormatBGRA8Unorm:     vk.FormatB8g8r8a8Unorm,
	framegraph.FormatRGBA16Float:    vk.FormatR16g16b16a16Sfloat,
	framegraph.FormatRGBA32Float:    vk.FormatR32g32b32a32Sfloat,
	framegraph.FormatR32Float:       vk.FormatR32Sfloat,
	framegraph.FormatD32Float:       vk.FormatD32Sfloat,
	framegraph.FormatD24UnormS8Uint: vk.FormatD24UnormS8Uint,
	framegraph.FormatD32FloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func ToVkFormat(f framegraph.Format) vk.Format {
	if vf, ok := formats[f]; ok {
		return vf
	}
	return vk.FormatUndefined
}

// FromVkFormat maps a swapchain surface format back, FormatUndefined if unknown.
func FromVkFormat(f vk.Format) framegraph.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return framegraph.FormatUndefined
}

func ToVkImageLayout(l framegraph.Layout) vk.ImageLayout {
	switch l {
	case framegraph.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case framegraph.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case framegraph.LayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case framegraph.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case framegraph.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case framegraph.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case framegraph.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var accessBits = []struct {
	from framegraph.AccessFlags
	to   vk.AccessFlagBits
}{
	{framegraph.AccessShaderRead, vk.AccessShaderReadBit},
	{framegraph.AccessShaderWrite, vk.AccessShaderWriteBit},
	{framegraph.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{framegraph.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{framegraph.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{framegraph.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{framegraph.AccessTransferRead, vk.AccessTransferReadBit},
	{framegraph.AccessTransferWrite, vk.AccessTransferWriteBit},
	{framegraph.AccessMemoryRead, vk.AccessMemoryReadBit},
}

func ToVkAccessFlags(a framegraph.AccessFlags) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.from != 0 {
			out |= vk.AccessFlags(b.to)
		}
	}
	return out
}

var stageBits = []struct {
	from framegraph.PipelineStageFlags
	to   vk.PipelineStageFlagBits
}{
	{framegraph.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{framegraph.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{framegraph.StageEarlyFragmentTest, vk.PipelineStageEarlyFragmentTestsBit},
	{framegraph.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{framegraph.StageLateFragmentTest, vk.PipelineStageLateFragmentTestsBit},
	{framegraph.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{framegraph.StageComputeShader, vk.PipelineStageComputeShaderBit},
	{framegraph.StageTransfer, vk.PipelineStageTransferBit},
	{framegraph.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
}

// ToVkPipelineStageFlags maps a stage mask. An empty mask becomes TopOfPipe since
// Vulkan does not accept zero stage masks.
func ToVkPipelineStageFlags(s framegraph.PipelineStageFlags) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.from != 0 {
			out |= vk.PipelineStageFlags(b.to)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return out
}

func ToVkAspectFlags(a framegraph.AspectFlags) vk.ImageAspectFlags {
	var out vk.ImageAspectFlags
	if a&framegraph.AspectColor != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&framegraph.AspectDepth != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if a&framegraph.AspectStencil != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return out
}

func ToVkSubresourceRange(r framegraph.SubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     ToVkAspectFlags(r.Aspect),
		BaseMipLevel:   r.BaseMipLevel,
		LevelCount:     r.LevelCount,
		BaseArrayLayer: r.BaseArrayLayer,
		LayerCount:     r.LayerCount,
	}
}

func ToVkImageUsage(u framegraph.TextureUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if u&framegraph.UsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&framegraph.UsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if u&framegraph.UsageDepthStencil != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if u&framegraph.UsageUnorderedAccess != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	if u&framegraph.UsageTransferSrc != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if u&framegraph.UsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return out
}

func ToVkLoadOp(op framegraph.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case framegraph.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case framegraph.LoadOpClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func ToVkStoreOp(op framegraph.StoreOp) vk.AttachmentStoreOp {
	if op == framegraph.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

// ToVkImageMemoryBarrier builds the native barrier for img. Queue ownership never
// changes, the frame graph records everything on one queue family.
func ToVkImageMemoryBarrier(b framegraph.Barrier, img vk.Image) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       ToVkAccessFlags(b.SrcAccess),
		DstAccessMask:       ToVkAccessFlags(b.DstAccess),
		OldLayout:           ToVkImageLayout(b.OldLayout),
		NewLayout:           ToVkImageLayout(b.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange:    ToVkSubresourceRange(b.Range),
	}
}
