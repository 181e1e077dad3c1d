package framegraph

import (
	"fmt"
	"strings"
)

// Layout is the backend-neutral image layout a resource is in.
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthStencilAttachment
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

var layoutNames = [...]string{
	LayoutUndefined:              "Undefined",
	LayoutGeneral:                "General",
	LayoutColorAttachment:        "ColorAttachment",
	LayoutDepthStencilAttachment: "DepthStencilAttachment",
	LayoutShaderReadOnly:         "ShaderReadOnly",
	LayoutTransferSrc:            "TransferSrc",
	LayoutTransferDst:            "TransferDst",
	LayoutPresentSrc:             "PresentSrc",
}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

type AccessFlags uint32

const (
	AccessNone                        AccessFlags = 0
	AccessShaderRead                  AccessFlags = 1 << 0
	AccessShaderWrite                 AccessFlags = 1 << 1
	AccessColorAttachmentRead         AccessFlags = 1 << 2
	AccessColorAttachmentWrite        AccessFlags = 1 << 3
	AccessDepthStencilAttachmentRead  AccessFlags = 1 << 4
	AccessDepthStencilAttachmentWrite AccessFlags = 1 << 5
	AccessTransferRead                AccessFlags = 1 << 6
	AccessTransferWrite               AccessFlags = 1 << 7
	AccessMemoryRead                  AccessFlags = 1 << 8
)

var accessNames = []struct {
	flag AccessFlags
	name string
}{
	{AccessShaderRead, "ShaderRead"},
	{AccessShaderWrite, "ShaderWrite"},
	{AccessColorAttachmentRead, "ColorAttachmentRead"},
	{AccessColorAttachmentWrite, "ColorAttachmentWrite"},
	{AccessDepthStencilAttachmentRead, "DepthStencilAttachmentRead"},
	{AccessDepthStencilAttachmentWrite, "DepthStencilAttachmentWrite"},
	{AccessTransferRead, "TransferRead"},
	{AccessTransferWrite, "TransferWrite"},
	{AccessMemoryRead, "MemoryRead"},
}

func (a AccessFlags) String() string {
	if a == AccessNone {
		return "None"
	}
	var parts []string
	for _, n := range accessNames {
		if a&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

type PipelineStageFlags uint32

const (
	StageNone                  PipelineStageFlags = 0
	StageTopOfPipe             PipelineStageFlags = 1 << 0
	StageVertexShader          PipelineStageFlags = 1 << 1
	StageEarlyFragmentTest     PipelineStageFlags = 1 << 2
	StageFragmentShader        PipelineStageFlags = 1 << 3
	StageLateFragmentTest      PipelineStageFlags = 1 << 4
	StageColorAttachmentOutput PipelineStageFlags = 1 << 5
	StageComputeShader         PipelineStageFlags = 1 << 6
	StageTransfer              PipelineStageFlags = 1 << 7
	StageBottomOfPipe          PipelineStageFlags = 1 << 8
)

var stageNames = []struct {
	flag PipelineStageFlags
	name string
}{
	{StageTopOfPipe, "TopOfPipe"},
	{StageVertexShader, "VertexShader"},
	{StageEarlyFragmentTest, "EarlyFragmentTest"},
	{StageFragmentShader, "FragmentShader"},
	{StageLateFragmentTest, "LateFragmentTest"},
	{StageColorAttachmentOutput, "ColorAttachmentOutput"},
	{StageComputeShader, "ComputeShader"},
	{StageTransfer, "Transfer"},
	{StageBottomOfPipe, "BottomOfPipe"},
}

func (s PipelineStageFlags) String() string {
	if s == StageNone {
		return "None"
	}
	var parts []string
	for _, n := range stageNames {
		if s&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

type AspectFlags uint8

const (
	AspectColor   AspectFlags = 1 << 0
	AspectDepth   AspectFlags = 1 << 1
	AspectStencil AspectFlags = 1 << 2
)

/** @brief The mip levels and array layers a barrier applies to. */
type SubresourceRange struct {
	Aspect         AspectFlags
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}
