package headless

import (
	"fmt"

	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
)

type CommandKind uint8

const (
	CmdBeginRenderpass CommandKind = iota
	CmdEndRenderpass
	CmdPipelineBarrier
	CmdSetViewport
	CmdSetScissor
	CmdDraw
	CmdDispatch
)

func (k CommandKind) String() string {
	switch k {
	case CmdBeginRenderpass:
		return "BeginRenderpass"
	case CmdEndRenderpass:
		return "EndRenderpass"
	case CmdPipelineBarrier:
		return "PipelineBarrier"
	case CmdSetViewport:
		return "SetViewport"
	case CmdSetScissor:
		return "SetScissor"
	case CmdDraw:
		return "Draw"
	case CmdDispatch:
		return "Dispatch"
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is one recorded call. Only the fields of its kind are set.
type Command struct {
	Kind     CommandKind
	Begin    framegraph.RenderpassBegin
	SrcStage framegraph.PipelineStageFlags
	DstStage framegraph.PipelineStageFlags
	Barriers []framegraph.Barrier
	Viewport framegraph.Viewport
	Scissor  math.Rect2D
	Args     [4]uint32
}

// CommandList records every call instead of encoding it. It is used by one render
// actor at a time and is not safe for concurrent use.
type CommandList struct {
	commands     []Command
	inRenderpass bool
}

func NewCommandList() *CommandList {
	return &CommandList{}
}

func (c *CommandList) BeginRenderpass(begin framegraph.RenderpassBegin) {
	if c.inRenderpass {
		panic(fmt.Sprintf("renderpass %q begun inside another renderpass", begin.Pass))
	}
	c.inRenderpass = true
	c.commands = append(c.commands, Command{Kind: CmdBeginRenderpass, Begin: begin})
}

func (c *CommandList) EndRenderpass() {
	if !c.inRenderpass {
		panic("EndRenderpass without BeginRenderpass")
	}
	c.inRenderpass = false
	c.commands = append(c.commands, Command{Kind: CmdEndRenderpass})
}

func (c *CommandList) PipelineBarrier(src, dst framegraph.PipelineStageFlags, barriers []framegraph.ImageBarrier) {
	cmd := Command{Kind: CmdPipelineBarrier, SrcStage: src, DstStage: dst}
	for _, b := range barriers {
		cmd.Barriers = append(cmd.Barriers, b.Barrier)
	}
	c.commands = append(c.commands, cmd)
}

func (c *CommandList) SetViewport(viewport framegraph.Viewport) {
	c.commands = append(c.commands, Command{Kind: CmdSetViewport, Viewport: viewport})
}

func (c *CommandList) SetScissor(scissor math.Rect2D) {
	c.commands = append(c.commands, Command{Kind: CmdSetScissor, Scissor: scissor})
}

func (c *CommandList) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.commands = append(c.commands, Command{Kind: CmdDraw, Args: [4]uint32{vertexCount, instanceCount, firstVertex, firstInstance}})
}

func (c *CommandList) Dispatch(groupsX, groupsY, groupsZ uint32) {
	c.commands = append(c.commands, Command{Kind: CmdDispatch, Args: [4]uint32{groupsX, groupsY, groupsZ}})
}

func (c *CommandList) Commands() []Command {
	return append([]Command(nil), c.commands...)
}

// Barriers flattens every recorded barrier in submission order.
func (c *CommandList) Barriers() []framegraph.Barrier {
	var out []framegraph.Barrier
	for _, cmd := range c.commands {
		if cmd.Kind == CmdPipelineBarrier {
			out = append(out, cmd.Barriers...)
		}
	}
	return out
}

// Count returns how many commands of kind were recorded.
func (c *CommandList) Count(kind CommandKind) int {
	n := 0
	for _, cmd := range c.commands {
		if cmd.Kind == kind {
			n++
		}
	}
	return n
}

func (c *CommandList) Reset() {
	c.commands = nil
	c.inRenderpass = false
}
