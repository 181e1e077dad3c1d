package testbed

import (
	"fmt"
	gomath "math"
	"sync"

	"github.com/spaghettifunk/anima-framegraph/engine"
	"github.com/spaghettifunk/anima-framegraph/engine/config"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
	"github.com/spaghettifunk/anima-framegraph/engine/framegraph"
	"github.com/spaghettifunk/anima-framegraph/engine/math"
	"github.com/spaghettifunk/anima-framegraph/engine/systems"
)

const (
	GBufferAlbedo = "gbuffer.albedo"
	GBufferNormal = "gbuffer.normal"
	GBufferDepth  = "gbuffer.depth"
	LightingHDR   = "lighting.hdr"
	BloomTexture  = "bloom"
	NoiseTexture  = "noise"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	mu sync.Mutex

	elapsed float64
	clear   math.Vec4
	bloom   bool
	width   uint32
	height  uint32

	// written by sync points
	lastStats framegraph.Stats
}

func NewTestGame(cfg *config.Config) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  &gameState{bloom: true},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Boot(cfg *config.Config) error {
	core.LogInfo("booting testbed...")
	if cfg.Application.Name == "" {
		cfg.Application.Name = "Anima Frame Graph Testbed"
	}
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.FrameGraph == nil || g.JobSystem == nil {
		return fmt.Errorf("the engine is not yet initialized with a frame graph and a job system")
	}

	// The noise texture is read by the lighting pass every frame without being
	// created by any pass. It is imported on the render actor before the first
	// frame is built.
	g.FrameGraph.AddPreRender(func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
		_, err := fg.CreateTexture(NoiseTexture, framegraph.TextureDescription{
			Format: framegraph.FormatRGBA8Unorm,
			Width:  64,
			Height: 64,
			Usage:  framegraph.UsageSampled | framegraph.UsageTransferDst,
		})
		return err
	})

	core.EventRegister(core.EVENT_CODE_CONFIG_RELOADED, g, g.onConfigReloaded)
	return nil
}

// Update computes the frame parameters on the job system, then records the
// frame's passes in declaration order.
func (g *TestGame) Update(deltaTime float64) error {
	st := g.state()
	st.mu.Lock()
	st.elapsed += deltaTime
	elapsed := st.elapsed
	width, height := st.width, st.height
	bloom := st.bloom
	st.mu.Unlock()

	var clear math.Vec4
	var groupsX, groupsY uint32
	err := g.JobSystem.RunAll(
		systems.JobTask{
			Name: "clear colour",
			Run: func() error {
				clear = math.NewVec4(
					float32(0.5+0.5*gomath.Sin(elapsed)),
					float32(0.5+0.5*gomath.Sin(elapsed+2*gomath.Pi/3)),
					float32(0.5+0.5*gomath.Sin(elapsed+4*gomath.Pi/3)),
					1)
				return nil
			},
		},
		systems.JobTask{
			Name: "bloom groups",
			Run: func() error {
				// half resolution, 8x8 groups
				groupsX, groupsY = (width/2+7)/8, (height/2+7)/8
				return nil
			},
		},
	)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.clear = clear
	st.mu.Unlock()

	g.addGBufferPass(clear)
	g.addLightingPass()
	if bloom {
		g.addBloomPass(groupsX, groupsY)
	}
	g.addCompositePass(bloom)

	return g.FrameGraph.AddSyncPoint(func() {
		stats := g.FrameGraph.Stats()
		st.mu.Lock()
		st.lastStats = stats
		st.mu.Unlock()
	})
}

func (g *TestGame) addGBufferPass(clear math.Vec4) {
	g.FrameGraph.AddPass("GBuffer",
		func(b *framegraph.Builder) error {
			color := framegraph.TextureDescription{
				Format:   framegraph.FormatRGBA8Unorm,
				Usage:    framegraph.UsageColorAttachment | framegraph.UsageSampled,
				SizeMode: framegraph.SizeRenderRelative,
			}
			albedo, err := b.CreateTexture(GBufferAlbedo, color)
			if err != nil {
				return err
			}
			color.Format = framegraph.FormatRGBA16Float
			normal, err := b.CreateTexture(GBufferNormal, color)
			if err != nil {
				return err
			}
			depth, err := b.CreateTexture(GBufferDepth, framegraph.TextureDescription{
				Format:   framegraph.FormatD32Float,
				Usage:    framegraph.UsageDepthStencil | framegraph.UsageSampled,
				SizeMode: framegraph.SizeRenderRelative,
			})
			if err != nil {
				return err
			}
			b.WriteTexture(albedo)
			b.WriteTexture(normal)
			b.WriteDepthStencil(depth)
			b.SetShader(framegraph.ShaderDescription{
				Name:         "gbuffer",
				VertexPath:   "shaders/gbuffer.vert.spv",
				FragmentPath: "shaders/gbuffer.frag.spv",
			})
			b.SetRenderpass(framegraph.RenderpassDescription{
				Name:        "gbuffer",
				ColorLoad:   framegraph.LoadOpClear,
				ColorStore:  framegraph.StoreOpStore,
				DepthLoad:   framegraph.LoadOpClear,
				DepthStore:  framegraph.StoreOpStore,
				ClearColour: clear,
				ClearDepth:  1,
			})
			return nil
		},
		func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
			cmd.Draw(36, 1, 0, 0)
			return nil
		},
		nil)
}

func (g *TestGame) addLightingPass() {
	g.FrameGraph.AddPass("Lighting",
		func(b *framegraph.Builder) error {
			hdr, err := b.CreateTexture(LightingHDR, framegraph.TextureDescription{
				Format:   framegraph.FormatRGBA16Float,
				Usage:    framegraph.UsageColorAttachment | framegraph.UsageSampled | framegraph.UsageUnorderedAccess,
				SizeMode: framegraph.SizeRenderRelative,
			})
			if err != nil {
				return err
			}
			for _, name := range []string{GBufferAlbedo, GBufferNormal, GBufferDepth, NoiseTexture} {
				h, err := b.GetTexture(name)
				if err != nil {
					return err
				}
				b.ReadTexture(h)
			}
			b.WriteTexture(hdr)
			b.SetShader(framegraph.ShaderDescription{
				Name:         "lighting",
				VertexPath:   "shaders/fullscreen.vert.spv",
				FragmentPath: "shaders/lighting.frag.spv",
			})
			b.SetRenderpass(framegraph.RenderpassDescription{
				Name:       "lighting",
				ColorLoad:  framegraph.LoadOpDontCare,
				ColorStore: framegraph.StoreOpStore,
			})
			return nil
		},
		func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
			// fullscreen triangle
			cmd.Draw(3, 1, 0, 0)
			return nil
		},
		nil)
}

func (g *TestGame) addBloomPass(groupsX, groupsY uint32) {
	g.FrameGraph.AddComputePass("Bloom",
		func(b *framegraph.Builder) error {
			hdr, err := b.GetTexture(LightingHDR)
			if err != nil {
				return err
			}
			bloom, err := b.CreateTexture(BloomTexture, framegraph.TextureDescription{
				Format:   framegraph.FormatRGBA16Float,
				Usage:    framegraph.UsageUnorderedAccess | framegraph.UsageSampled,
				SizeMode: framegraph.SizeRenderRelative,
				Scale:    0.5,
			})
			if err != nil {
				return err
			}
			b.ReadTexture(hdr)
			b.WriteTexture(bloom)
			b.SetShader(framegraph.ShaderDescription{Name: "bloom", ComputePath: "shaders/bloom.comp.spv"})
			return nil
		},
		func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
			res, err := fg.GetRHITextureByName(BloomTexture)
			if err != nil {
				return err
			}
			if !res.ValidResource() {
				return fmt.Errorf("bloom target is not materialized")
			}
			cmd.Dispatch(groupsX, groupsY, 1)
			return nil
		},
		nil)
}

func (g *TestGame) addCompositePass(bloom bool) {
	g.FrameGraph.AddPass("Composite",
		func(b *framegraph.Builder) error {
			inputs := []string{LightingHDR}
			if bloom {
				inputs = append(inputs, BloomTexture)
			}
			for _, name := range inputs {
				h, err := b.GetTexture(name)
				if err != nil {
					return err
				}
				b.ReadTexture(h)
			}
			b.SetAsRenderToSwapchain()
			b.SetShader(framegraph.ShaderDescription{
				Name:         "composite",
				VertexPath:   "shaders/fullscreen.vert.spv",
				FragmentPath: "shaders/composite.frag.spv",
			})
			b.SetRenderpass(framegraph.RenderpassDescription{
				Name:       "composite",
				ColorLoad:  framegraph.LoadOpDontCare,
				ColorStore: framegraph.StoreOpStore,
			})
			return nil
		},
		func(fg *framegraph.FrameGraph, cmd framegraph.CommandList) error {
			cmd.Draw(3, 1, 0, 0)
			return nil
		},
		func(fg *framegraph.FrameGraph) error {
			core.LogDebug("frame %d composed", fg.Stats().Frame)
			return nil
		})
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	st := g.state()
	st.mu.Lock()
	st.width, st.height = width, height
	st.mu.Unlock()
	return nil
}

// SetBloom toggles the compute bloom pass from the next recorded frame on.
func (g *TestGame) SetBloom(enabled bool) {
	st := g.state()
	st.mu.Lock()
	st.bloom = enabled
	st.mu.Unlock()
}

// LastStats are the frame statistics handed back by the latest sync point.
func (g *TestGame) LastStats() framegraph.Stats {
	st := g.state()
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lastStats
}

func (g *TestGame) Shutdown() error {
	core.EventUnregister(core.EVENT_CODE_CONFIG_RELOADED, g)
	stats := g.LastStats()
	core.LogInfo("testbed shut down after frame %d (%d passes, %d barriers)", stats.Frame, stats.Passes, stats.Barriers)
	return nil
}

func (g *TestGame) onConfigReloaded(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	core.LogInfo("testbed picked up config %s, render scale %.2f", data.Data.C[0], data.Data.F32[0])
	return false
}
