package testbed

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/spaghettifunk/anima/engine"
	"github.com/spaghettifunk/anima/engine/assets/loaders"
	"github.com/spaghettifunk/anima/engine/core"
	enginemath "github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

const albedoSize uint32 = 64

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	albedo   *gpu.Image
	target   *gpu.Image
	depth    *gpu.Image
	snapshot *gpu.Image
	msaa     *gpu.Image
	resolved *gpu.Image
	storage  *gpu.Image

	uniforms *gpu.Buffer
	vertices *gpu.Buffer
	indices  *gpu.Buffer

	framebuffer     *gpu.Framebuffer
	msaaFramebuffer *gpu.Framebuffer

	// Set by the backend's pipeline factory or built from shader assets.
	graphics   gpu.Pipeline
	compute    gpu.Pipeline
	rayTracing gpu.Pipeline
	drawSet    gpu.ResourceSet
	computeSet gpu.ResourceSet
	traceSet   gpu.ResourceSet

	vertexCode   []byte
	fragmentCode []byte
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				width:  config.Width,
				height: config.Height,
			},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnRender = tg.Render
	tg.FnAssetChanged = tg.AssetChanged
	tg.FnShaderLoaded = tg.ShaderLoaded
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(backend engine.Backend, s *gpu.Session) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()
	if state.width == 0 || state.height == 0 {
		return fmt.Errorf("%w: render target of %dx%d", core.ErrInvalidOperation, state.width, state.height)
	}

	var err error
	image := func(desc metadata.TextureDescription) *gpu.Image {
		if err != nil {
			return nil
		}
		var img *gpu.Image
		img, err = backend.CreateImage(desc)
		return img
	}
	state.albedo = image(metadata.TextureDescription{
		Name:      "albedo",
		Width:     albedoSize,
		Height:    albedoSize,
		MipLevels: enginemath.MipLevelCount(albedoSize, albedoSize, 1),
		Format:    metadata.PixelFormatRGBA8Unorm,
		Usage:     metadata.TextureUsageSampled | metadata.TextureUsageTransfer,
	})
	state.target = image(attachment(&err, "target", state.width, state.height,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc))
	state.snapshot = image(metadata.TextureDescription{
		Name:   "snapshot",
		Width:  state.width,
		Height: state.height,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageSampled | metadata.TextureUsageTransfer,
	})
	state.depth = image(attachment(&err, "depth", state.width, state.height,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureUsageRenderAttachment))
	state.msaa = image(metadata.TextureDescription{
		Name:        "msaa",
		Width:       state.width,
		Height:      state.height,
		Format:      metadata.PixelFormatRGBA8Unorm,
		Usage:       metadata.TextureUsageRenderTarget | metadata.TextureUsageTransfer,
		SampleCount: 4,
	})
	state.resolved = image(metadata.TextureDescription{
		Name:   "resolved",
		Width:  state.width,
		Height: state.height,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageSampled | metadata.TextureUsageTransfer,
	})
	state.storage = image(metadata.TextureDescription{
		Name:   "storage",
		Width:  state.width,
		Height: state.height,
		Format: metadata.PixelFormatRGBA8Unorm,
		Usage:  metadata.TextureUsageStorage | metadata.TextureUsageSampled,
	})
	if err != nil {
		return err
	}

	buffer := func(name string, size uint64, usage metadata.BufferUsage) *gpu.Buffer {
		if err != nil {
			return nil
		}
		var b *gpu.Buffer
		b, err = backend.CreateBuffer(metadata.BufferDescription{Name: name, Size: size, Usage: usage})
		return b
	}
	state.uniforms = buffer("uniforms", 64, metadata.BufferUsageUniform)
	state.vertices = buffer("vertices", 4*4*4, metadata.BufferUsageVertex)
	state.indices = buffer("indices", 6*2, metadata.BufferUsageIndex)
	if err != nil {
		return err
	}

	state.framebuffer, err = backend.CreateFramebuffer(
		[]gpu.Attachment{{Image: state.target}},
		&gpu.Attachment{Image: state.depth})
	if err != nil {
		return err
	}
	state.msaaFramebuffer, err = backend.CreateFramebuffer([]gpu.Attachment{{Image: state.msaa}}, nil)
	if err != nil {
		return err
	}

	if factory, ok := backend.(engine.PipelineFactory); ok {
		state.graphics = factory.CreatePipeline(metadata.PipelineKindGraphics)
		state.compute = factory.CreatePipeline(metadata.PipelineKindCompute)
		state.rayTracing = factory.CreatePipeline(metadata.PipelineKindRayTracing)
		state.drawSet = factory.CreateResourceSet(
			gpu.Binding{Kind: gpu.BindingSampledImage, Image: state.albedo},
			gpu.Binding{Kind: gpu.BindingUniformBuffer, Buffer: state.uniforms},
		)
		state.computeSet = factory.CreateResourceSet(
			gpu.Binding{Kind: gpu.BindingSampledImage, Image: state.albedo},
			gpu.Binding{Kind: gpu.BindingStorageImage, Image: state.storage},
		)
		state.traceSet = factory.CreateResourceSet(
			gpu.Binding{Kind: gpu.BindingAccelerationStructure},
			gpu.Binding{Kind: gpu.BindingStorageImage, Image: state.storage},
		)
	}

	if err := s.UpdateBuffer(state.vertices, 0, quadVertices()); err != nil {
		return err
	}
	if err := s.UpdateBuffer(state.indices, 0, quadIndices()); err != nil {
		return err
	}
	return g.uploadAlbedo(s, checkerboard(albedoSize, albedoSize))
}

// ShaderLoaded builds programs from fill.comp.spv and the quad.vert.spv and
// quad.frag.spv pair on backends that compile SPIR-V.
func (g *TestGame) ShaderLoaded(backend engine.Backend, name string, spirv []byte) error {
	compiler, ok := backend.(engine.ShaderCompiler)
	if !ok {
		core.LogDebug("backend builds its own pipelines, ignoring %s", name)
		return nil
	}
	state := g.state()
	var err error
	switch name {
	case "fill.comp.spv":
		state.compute, state.computeSet, err = compiler.CreateComputeProgram(spirv,
			gpu.Binding{Kind: gpu.BindingSampledImage, Image: state.albedo},
			gpu.Binding{Kind: gpu.BindingStorageImage, Image: state.storage},
		)
		return err
	case "quad.vert.spv":
		state.vertexCode = spirv
	case "quad.frag.spv":
		state.fragmentCode = spirv
	default:
		return nil
	}
	if state.vertexCode == nil || state.fragmentCode == nil {
		return nil
	}
	state.graphics, state.drawSet, err = compiler.CreateGraphicsProgram(state.framebuffer, state.vertexCode, state.fragmentCode,
		gpu.Binding{Kind: gpu.BindingSampledImage, Image: state.albedo},
		gpu.Binding{Kind: gpu.BindingUniformBuffer, Buffer: state.uniforms},
	)
	state.vertexCode, state.fragmentCode = nil, nil
	return err
}

func (g *TestGame) uploadAlbedo(s *gpu.Session, pixels *metadata.ImageResourceData) error {
	state := g.state()
	pixels = loaders.Resize(pixels, state.albedo.Width, state.albedo.Height)
	if err := s.UpdateTexture(state.albedo, pixels.Pixels, gpu.TextureRegion{
		Width:  pixels.Width,
		Height: pixels.Height,
		Depth:  1,
	}); err != nil {
		return err
	}
	return s.GenerateMipmaps(state.albedo)
}

// AssetChanged replaces the albedo texture with any loaded image.
func (g *TestGame) AssetChanged(s *gpu.Session, name string, pixels *metadata.ImageResourceData) error {
	core.LogInfo("uploading %s (%dx%d) into albedo", name, pixels.Width, pixels.Height)
	return g.uploadAlbedo(s, pixels)
}

func (g *TestGame) Render(s *gpu.Session, frame uint64) error {
	state := g.state()

	if err := s.UpdateBuffer(state.uniforms, 0, frameUniforms(frame)); err != nil {
		return err
	}

	if state.compute != nil {
		if err := s.SetPipeline(state.compute); err != nil {
			return err
		}
		if err := s.SetResourceSet(0, state.computeSet); err != nil {
			return err
		}
		if err := s.Dispatch((state.width+7)/8, (state.height+7)/8, 1); err != nil {
			return err
		}
	}

	if err := s.SetFramebuffer(state.framebuffer); err != nil {
		return err
	}
	t := float32(frame%120) / 120
	if err := s.ClearColorTarget(0, metadata.ColorRGBA{R: t, G: 0.2, B: 1 - t, A: 1}); err != nil {
		return err
	}
	if err := s.ClearDepthStencil(1, 0); err != nil {
		return err
	}
	if state.graphics != nil {
		if err := s.SetPipeline(state.graphics); err != nil {
			return err
		}
		if err := s.SetResourceSet(0, state.drawSet); err != nil {
			return err
		}
		if err := s.SetVertexBuffer(0, state.vertices, 0); err != nil {
			return err
		}
		if err := s.SetIndexBuffer(state.indices, metadata.IndexFormatUint16, 0); err != nil {
			return err
		}
		if err := s.DrawIndexed(6, 1, 0, 0, 0); err != nil {
			return err
		}
	}

	if err := s.SetFramebuffer(state.msaaFramebuffer); err != nil {
		return err
	}
	if err := s.ClearColorTarget(0, metadata.ColorBlack); err != nil {
		return err
	}
	if err := s.ResolveTexture(state.msaa, state.resolved); err != nil {
		return err
	}

	if state.rayTracing != nil && s.Encoder().Features().RayTracing {
		if err := s.SetPipeline(state.rayTracing); err != nil {
			return err
		}
		if err := s.SetResourceSet(0, state.traceSet); err != nil {
			return err
		}
		if err := s.DispatchRays(state.width, state.height, 1); err != nil {
			return err
		}
	}

	return s.CopyTexture(state.target, state.snapshot)
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	for _, fb := range []*gpu.Framebuffer{state.framebuffer, state.msaaFramebuffer} {
		if fb == nil {
			continue
		}
		if d, ok := fb.Handle().(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
	for _, img := range []*gpu.Image{state.albedo, state.target, state.depth, state.snapshot, state.msaa, state.resolved, state.storage} {
		if img != nil {
			img.Destroy()
		}
	}
	for _, b := range []*gpu.Buffer{state.uniforms, state.vertices, state.indices} {
		if b != nil {
			b.Destroy()
		}
	}
	return nil
}

// attachment describes a framebuffer attachment the way WebGPU code does.
func attachment(errp *error, name string, w, h uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) metadata.TextureDescription {
	f, err := metadata.FormatFromGPUTypes(format)
	if err != nil && *errp == nil {
		*errp = err
	}
	return metadata.TextureDescription{
		Name:   name,
		Width:  w,
		Height: h,
		Format: f,
		Usage:  metadata.UsageFromGPUTypes(usage, f),
	}
}

func checkerboard(w, h uint32) *metadata.ImageResourceData {
	pixels := make([]uint8, w*h*4)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			v := uint8(0x20)
			if (x/8+y/8)%2 == 0 {
				v = 0xe0
			}
			i := (y*w + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = v, v, v, 0xff
		}
	}
	return &metadata.ImageResourceData{
		Format: metadata.PixelFormatRGBA8Unorm,
		Width:  w,
		Height: h,
		Pixels: pixels,
	}
}

// quadVertices is a full screen quad, position xy and uv per vertex.
func quadVertices() []byte {
	v := []float32{
		-1, -1, 0, 0,
		1, -1, 1, 0,
		1, 1, 1, 1,
		-1, 1, 0, 1,
	}
	out := make([]byte, 0, len(v)*4)
	for _, f := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

func quadIndices() []byte {
	out := make([]byte, 0, 12)
	for _, i := range []uint16{0, 1, 2, 2, 3, 0} {
		out = binary.LittleEndian.AppendUint16(out, i)
	}
	return out
}

func frameUniforms(frame uint64) []byte {
	out := make([]byte, 64)
	binary.LittleEndian.PutUint64(out, frame)
	binary.LittleEndian.PutUint32(out[8:], math.Float32bits(float32(frame)/60))
	return out
}
