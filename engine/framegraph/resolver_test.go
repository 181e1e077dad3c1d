package framegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup struct {
	descs    map[ResourceHandle]TextureDescription
	layouts  map[ResourceHandle]Layout
	imported map[ResourceHandle]bool
}

func newMapLookup() *mapLookup {
	return &mapLookup{
		descs:    map[ResourceHandle]TextureDescription{},
		layouts:  map[ResourceHandle]Layout{},
		imported: map[ResourceHandle]bool{},
	}
}

func (l *mapLookup) Description(h ResourceHandle) (TextureDescription, bool) {
	d, ok := l.descs[h]
	return d, ok
}

func (l *mapLookup) CurrentLayout(h ResourceHandle) (Layout, bool) {
	layout, ok := l.layouts[h]
	return layout, ok
}

func (l *mapLookup) Imported(h ResourceHandle) bool {
	return l.imported[h]
}

func TestReadFallsBackToFormatWhenLayoutUnknown(t *testing.T) {
	l := newMapLookup()
	color, depth := newHandle(0, 1), newHandle(0, 2)
	l.descs[color] = rgba
	l.descs[depth] = TextureDescription{Format: FormatD24UnormS8Uint, Width: 4, Height: 4, Usage: UsageDepthStencil}
	l.imported[color], l.imported[depth] = true, true

	p := newPass("resolve", QueueGraphics, nil, nil, nil)
	p.reads = []ResourceHandle{depth, color}
	res := ResolveBarriers([]*Pass{p}, l)

	require.Len(t, res.Incoming[0], 2)
	colorBatch, depthBatch := res.Incoming[0][0], res.Incoming[0][1]
	assert.Equal(t, color, colorBatch.Barriers[0].Handle)
	assert.Equal(t, LayoutColorAttachment, colorBatch.Barriers[0].OldLayout)
	assert.Equal(t, StageColorAttachmentOutput, colorBatch.SrcStage)

	d := depthBatch.Barriers[0]
	assert.Equal(t, depth, d.Handle)
	assert.Equal(t, LayoutDepthStencilAttachment, d.OldLayout)
	assert.Equal(t, StageEarlyFragmentTest, depthBatch.SrcStage)
	assert.Equal(t, StageFragmentShader, depthBatch.DstStage)
	assert.Equal(t, AspectDepth|AspectStencil, d.Range.Aspect)
	assert.Nil(t, res.Final)
	assert.Equal(t, 2, res.Count())
}

func TestReadStartsFromRuntimeLayout(t *testing.T) {
	l := newMapLookup()
	fresh, storage := newHandle(0, 1), newHandle(0, 2)
	for _, h := range []ResourceHandle{fresh, storage} {
		l.descs[h] = rgba
		l.imported[h] = true
	}
	l.layouts[fresh] = LayoutUndefined
	l.layouts[storage] = LayoutGeneral

	p := newPass("sample", QueueGraphics, nil, nil, nil)
	p.reads = []ResourceHandle{fresh, storage}
	res := ResolveBarriers([]*Pass{p}, l)

	require.Len(t, res.Incoming[0], 1)
	batch := res.Incoming[0][0]
	require.Len(t, batch.Barriers, 2)
	assert.Equal(t, LayoutUndefined, batch.Barriers[0].OldLayout)
	assert.Equal(t, AccessNone, batch.Barriers[0].SrcAccess)
	assert.Equal(t, LayoutGeneral, batch.Barriers[1].OldLayout)
	assert.Equal(t, AccessShaderWrite, batch.Barriers[1].SrcAccess)
	assert.Equal(t, StageTopOfPipe|StageComputeShader, batch.SrcStage)
}

func TestBatchOrderWithinPass(t *testing.T) {
	l := newMapLookup()
	in, out, depth := newHandle(0, 1), newHandle(0, 2), newHandle(0, 3)
	l.descs[in], l.descs[out] = rgba, rgba
	l.descs[depth] = TextureDescription{Format: FormatD32Float, Width: 4, Height: 4, Usage: UsageDepthStencil}

	producer := newPass("producer", QueueGraphics, nil, nil, nil)
	producer.creates = []TextureCreate{{Handle: in, Description: rgba}, {Handle: out, Description: rgba}, {Handle: depth}}
	producer.writes = []ResourceHandle{in}

	consumer := newPass("consumer", QueueGraphics, nil, nil, nil)
	consumer.reads = []ResourceHandle{in}
	consumer.writes = []ResourceHandle{out}
	consumer.depthStencilWrite = depth

	res := ResolveBarriers([]*Pass{producer, consumer}, l)
	batches := res.Incoming[1]
	require.Len(t, batches, 3)
	assert.Equal(t, StageFragmentShader, batches[0].DstStage)
	assert.Equal(t, StageColorAttachmentOutput, batches[1].DstStage)
	assert.Equal(t, StageEarlyFragmentTest, batches[2].DstStage)
	assert.Equal(t, LayoutDepthStencilAttachment, batches[2].Barriers[0].NewLayout)
	assert.Equal(t, 4, res.Count())
}
