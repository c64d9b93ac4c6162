package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/barrier"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

type SessionState int

const (
	SessionStateInitial SessionState = iota
	SessionStateRecording
	SessionStateEnded
	SessionStateDestroyed
)

func (s SessionState) String() string {
	switch s {
	case SessionStateInitial:
		return "initial"
	case SessionStateRecording:
		return "recording"
	case SessionStateEnded:
		return "ended"
	case SessionStateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

type boundSet struct {
	set   ResourceSet
	dirty bool
}

// Session records one command buffer. It is owned by one goroutine at a
// time; only the staging pool it draws from is shared.
type Session struct {
	Name string

	encoder       CommandEncoder
	pool          *staging.Pool
	viewportReset bool

	state            SessionState
	renderPassActive bool
	framebuffer      *Framebuffer
	pipeline         Pipeline
	sets             []boundSet

	// Sticky validation results. Cleared whenever the bound pipeline or sets
	// change and whenever an operation moves images.
	texturesInShaderReadLayout bool
	texturesInGeneralLayout    bool

	batch       barrierBatch
	usedStaging []*staging.Buffer
	disposables []Disposable
}

type SessionOption func(*Session)

func WithName(name string) SessionOption {
	return func(s *Session) { s.Name = name }
}

// WithViewportReset controls whether binding a framebuffer resets viewport
// and scissor to the full attachment extents. Enabled by default.
func WithViewportReset(reset bool) SessionOption {
	return func(s *Session) { s.viewportReset = reset }
}

func WithConfig(cfg core.SessionConfig) SessionOption {
	return WithViewportReset(cfg.ViewportReset)
}

func NewSession(encoder CommandEncoder, pool *staging.Pool, opts ...SessionOption) *Session {
	s := &Session{
		encoder:       encoder,
		pool:          pool,
		viewportReset: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Name == "" {
		s.Name = core.GenerateName("session")
	}
	return s
}

func (s *Session) State() SessionState       { return s.state }
func (s *Session) RenderPassActive() bool    { return s.renderPassActive }
func (s *Session) Framebuffer() *Framebuffer { return s.framebuffer }
func (s *Session) Pipeline() Pipeline        { return s.pipeline }
func (s *Session) Encoder() CommandEncoder   { return s.encoder }
func (s *Session) PendingStaging() int       { return len(s.usedStaging) }
func (s *Session) PendingDisposables() int   { return len(s.disposables) }

func (s *Session) requireRecording() error {
	if s.state != SessionStateRecording {
		return fmt.Errorf("%w: %s is %s", core.ErrNotRecording, s.Name, s.state)
	}
	return nil
}

func (s *Session) invalidateBindings() {
	s.texturesInShaderReadLayout = false
	s.texturesInGeneralLayout = false
}

// transition queues a layout change. A rejected transition queues nothing.
func (s *Session) transition(img *Image, baseMip, mipCount, baseLayer, layerCount uint32, newLayout metadata.Layout) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", core.ErrInvalidOperation)
	}
	queued, err := s.batch.transition(img, baseMip, mipCount, baseLayer, layerCount, newLayout)
	if err != nil {
		return err
	}
	if queued {
		s.invalidateBindings()
	}
	return nil
}

type rangeTransition struct {
	img                   *Image
	baseMip, mipCount     uint32
	baseLayer, layerCount uint32
	layout                metadata.Layout
}

// transitionAll queues every transition, or none of them when one is
// rejected.
func (s *Session) transitionAll(ts ...rangeTransition) error {
	m := s.batch.mark()
	for _, t := range ts {
		if err := s.transition(t.img, t.baseMip, t.mipCount, t.baseLayer, t.layerCount, t.layout); err != nil {
			s.batch.rollback(m)
			return err
		}
	}
	return nil
}

// Begin starts recording. Per-recording state from a previous recording is
// discarded; staging buffers and disposables stay pending until retired.
func (s *Session) Begin() error {
	switch s.state {
	case SessionStateRecording:
		return fmt.Errorf("%w: %s", core.ErrAlreadyRecording, s.Name)
	case SessionStateDestroyed:
		return fmt.Errorf("%w: %s is destroyed", core.ErrInvalidOperation, s.Name)
	}
	if err := s.encoder.Begin(); err != nil {
		return err
	}
	s.state = SessionStateRecording
	s.renderPassActive = false
	s.framebuffer = nil
	s.pipeline = nil
	s.sets = s.sets[:0]
	s.batch.reset()
	s.batch.forget()
	s.invalidateBindings()
	core.LogDebug("%s: begin", s.Name)
	return nil
}

// End finishes recording, ending any active render pass first.
func (s *Session) End() error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if s.renderPassActive {
		s.endRenderPass()
	}
	s.batch.flush(s.encoder)
	if err := s.encoder.End(); err != nil {
		return err
	}
	s.state = SessionStateEnded
	core.LogDebug("%s: end", s.Name)
	return nil
}

func (s *Session) beginRenderPass() {
	s.encoder.BeginRenderPass(s.framebuffer)
	s.renderPassActive = true
	core.MetricsRecordRenderPass()
}

func (s *Session) endRenderPass() {
	s.encoder.EndRenderPass()
	s.renderPassActive = false
}

// EnsureRenderPassActive begins the render pass of the bound framebuffer if
// it is not already active.
func (s *Session) EnsureRenderPassActive() error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if s.renderPassActive {
		return nil
	}
	if s.framebuffer == nil {
		return fmt.Errorf("%w: %s", core.ErrNoFramebufferSet, s.Name)
	}
	if err := s.prepareAttachments(s.framebuffer); err != nil {
		return err
	}
	s.batch.flush(s.encoder)
	s.beginRenderPass()
	return nil
}

// prepareAttachments queues the moves of every attachment of fb into its
// attachment layout. Operations run between passes may have moved them.
// Nothing is queued when any attachment is rejected.
func (s *Session) prepareAttachments(fb *Framebuffer) error {
	ts := make([]rangeTransition, 0, len(fb.ColorTargets)+1)
	for _, c := range fb.ColorTargets {
		ts = append(ts, rangeTransition{c.Image, c.Mip, 1, c.Layer, 1, metadata.LayoutColorAttachment})
	}
	if d := fb.DepthTarget; d != nil {
		ts = append(ts, rangeTransition{d.Image, d.Mip, 1, d.Layer, 1, metadata.LayoutDepthStencilAttachment})
	}
	return s.transitionAll(ts...)
}

// EnsureRenderPassInactive ends an active render pass and follows it with a
// full pipeline barrier. Barriers already queued are recorded with it.
func (s *Session) EnsureRenderPassInactive() error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	s.ensureInactive()
	return nil
}

func (s *Session) ensureInactive() {
	if s.renderPassActive {
		s.endRenderPass()
		s.batch.addExecution(barrier.StageBottomOfPipe, barrier.StageTopOfPipe)
	}
	s.batch.flush(s.encoder)
}

// SetFramebuffer binds fb and begins its render pass. Color targets move to
// ColorAttachment and the depth target to DepthStencilAttachment in a single
// barrier recorded between the previous pass and the new one. Viewport and
// scissor 0 are reset to the full framebuffer unless disabled.
func (s *Session) SetFramebuffer(fb *Framebuffer) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if fb == nil {
		return fmt.Errorf("%w: nil framebuffer", core.ErrInvalidOperation)
	}

	if err := s.prepareAttachments(fb); err != nil {
		return err
	}
	if s.renderPassActive {
		s.endRenderPass()
	}
	s.batch.flush(s.encoder)
	s.framebuffer = fb
	s.beginRenderPass()
	s.invalidateBindings()

	if s.viewportReset {
		s.encoder.SetViewport(0, fb.FullViewport())
		s.encoder.SetScissor(0, fb.Area())
	}
	return nil
}

func (s *Session) SetViewport(index uint32, vp metadata.Viewport) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	s.encoder.SetViewport(index, vp)
	return nil
}

func (s *Session) SetScissorRect(index uint32, rect metadata.Rect) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	s.encoder.SetScissor(index, rect)
	return nil
}

// ClearColorTarget clears the whole of color target index.
func (s *Session) ClearColorTarget(index uint32, color metadata.ColorRGBA) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if s.framebuffer == nil {
		return fmt.Errorf("%w: %s", core.ErrNoFramebufferSet, s.Name)
	}
	if int(index) >= len(s.framebuffer.ColorTargets) {
		return fmt.Errorf("%w: color target %d of %d", core.ErrOutOfRange, index, len(s.framebuffer.ColorTargets))
	}
	if err := s.EnsureRenderPassActive(); err != nil {
		return err
	}
	s.encoder.ClearColorAttachment(index, color, s.framebuffer.Area())
	return nil
}

// ClearDepthStencil clears every aspect of the depth target.
func (s *Session) ClearDepthStencil(depth float32, stencil uint8) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if s.framebuffer == nil {
		return fmt.Errorf("%w: %s", core.ErrNoFramebufferSet, s.Name)
	}
	d := s.framebuffer.DepthTarget
	if d == nil {
		return fmt.Errorf("%w: framebuffer has no depth target", core.ErrInvalidOperation)
	}
	if err := s.EnsureRenderPassActive(); err != nil {
		return err
	}
	s.encoder.ClearDepthStencilAttachment(depth, stencil, barrier.FullAspect(d.Image.Format), s.framebuffer.Area())
	return nil
}

func (s *Session) SetVertexBuffer(index uint32, b *Buffer, offset uint64) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: nil vertex buffer", core.ErrInvalidOperation)
	}
	if offset >= b.Size {
		return fmt.Errorf("%w: offset %d into %s of %d bytes", core.ErrOutOfRange, offset, b, b.Size)
	}
	s.encoder.BindVertexBuffer(index, b, offset)
	return nil
}

func (s *Session) SetIndexBuffer(b *Buffer, format metadata.IndexFormat, offset uint64) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: nil index buffer", core.ErrInvalidOperation)
	}
	if offset >= b.Size {
		return fmt.Errorf("%w: offset %d into %s of %d bytes", core.ErrOutOfRange, offset, b, b.Size)
	}
	s.encoder.BindIndexBuffer(b, format, offset)
	return nil
}

// SetPipeline binds p. Resource sets are rebound against it at the next
// draw or dispatch.
func (s *Session) SetPipeline(p Pipeline) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: nil pipeline", core.ErrInvalidOperation)
	}
	if p == s.pipeline {
		return nil
	}
	s.encoder.BindPipeline(p)
	s.pipeline = p
	for i := range s.sets {
		s.sets[i].dirty = s.sets[i].set != nil
	}
	s.invalidateBindings()
	return nil
}

// SetResourceSet binds set to slot. The set is validated and recorded at the
// next draw or dispatch.
func (s *Session) SetResourceSet(slot uint32, set ResourceSet) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if set == nil {
		return fmt.Errorf("%w: nil resource set", core.ErrInvalidOperation)
	}
	for int(slot) >= len(s.sets) {
		s.sets = append(s.sets, boundSet{})
	}
	if s.sets[slot].set == set {
		return nil
	}
	s.sets[slot] = boundSet{set: set, dirty: true}
	s.invalidateBindings()
	return nil
}

func (s *Session) flushResourceSets() {
	for i := range s.sets {
		if s.sets[i].set != nil && s.sets[i].dirty {
			s.encoder.BindResourceSet(s.pipeline, uint32(i), s.sets[i].set)
			s.sets[i].dirty = false
		}
	}
}

func (s *Session) requirePipeline(kind metadata.PipelineKind) error {
	if s.pipeline == nil {
		return fmt.Errorf("%w: %s", core.ErrNoPipelineSet, s.Name)
	}
	if s.pipeline.Kind() != kind {
		return fmt.Errorf("%w: %v pipeline bound, %v required", core.ErrInvalidOperation, s.pipeline.Kind(), kind)
	}
	return nil
}

// DrawIndexed validates the bound resource sets, makes sure the render pass
// is active and records the draw.
func (s *Session) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if err := s.requirePipeline(metadata.PipelineKindGraphics); err != nil {
		return err
	}
	if s.framebuffer == nil {
		return fmt.Errorf("%w: %s", core.ErrNoFramebufferSet, s.Name)
	}
	if err := s.validateForDraw(); err != nil {
		return err
	}
	if err := s.EnsureRenderPassActive(); err != nil {
		return err
	}
	s.flushResourceSets()
	s.encoder.DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	return nil
}

// Dispatch ends any active render pass, validates the bound resource sets
// and records the dispatch.
func (s *Session) Dispatch(x, y, z uint32) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if err := s.requirePipeline(metadata.PipelineKindCompute); err != nil {
		return err
	}
	if err := s.validateForCompute(false); err != nil {
		return err
	}
	s.ensureInactive()
	s.flushResourceSets()
	s.encoder.Dispatch(x, y, z)
	return nil
}

// DispatchRays is Dispatch for ray tracing pipelines. Bound acceleration
// structures are made visible to the ray tracing stage first.
func (s *Session) DispatchRays(width, height, depth uint32) error {
	if err := s.requireRecording(); err != nil {
		return err
	}
	if !s.encoder.Features().RayTracing {
		return fmt.Errorf("%w: device does not support ray tracing", core.ErrInvalidOperation)
	}
	if err := s.requirePipeline(metadata.PipelineKindRayTracing); err != nil {
		return err
	}
	if err := s.validateForCompute(true); err != nil {
		return err
	}
	s.ensureInactive()
	s.flushResourceSets()
	s.encoder.TraceRays(width, height, depth)
	return nil
}
