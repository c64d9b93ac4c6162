package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/spaghettifunk/anima/engine/assets"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
	"github.com/spaghettifunk/anima/engine/renderer/staging"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const (
	// How long a frame may stay in flight before the engine gives up on it.
	retireTimeout = 5 * time.Second
	// Unbounded runs are paced to this frame time.
	targetFrameTime = time.Second / 60
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config

	backend      Backend
	pool         *staging.Pool
	session      *gpu.Session
	assetManager *assets.AssetManager
	watcher      *core.ConfigWatcher
	clock        *core.Clock

	reloads  chan *core.Config
	stop     chan struct{}
	stopOnce sync.Once
	frame    uint64
}

func New(g *Game) (*Engine, error) {
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		clock:        core.NewClock(),
		reloads:      make(chan *core.Config, 1),
		stop:         make(chan struct{}),
	}

	cfg, err := loadConfig(g.ApplicationConfig.ConfigPath)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	if err := cfg.Apply(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	e.config = cfg

	backend, err := NewBackend(g.ApplicationConfig)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	e.backend = backend
	e.pool = staging.NewPool(backend, cfg.Staging.MinimumSize, cfg.Staging.MaximumSize)
	e.session = gpu.NewSession(backend.Encoder(), e.pool,
		gpu.WithName(g.ApplicationConfig.Name),
		gpu.WithConfig(cfg.Session))

	e.currentStage = EngineStageBootComplete
	return e, nil
}

// loadConfig reads path, falling back to the defaults when path is empty or
// does not exist.
func loadConfig(path string) (*core.Config, error) {
	if path == "" {
		return core.DefaultConfig(), nil
	}
	cfg, err := core.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogInfo("config %s not found, using defaults", path)
		return core.DefaultConfig(), nil
	}
	return cfg, err
}

func (e *Engine) Backend() Backend           { return e.backend }
func (e *Engine) Session() *gpu.Session      { return e.session }
func (e *Engine) StagingPool() *staging.Pool { return e.pool }
func (e *Engine) Config() *core.Config       { return e.config }
func (e *Engine) Stage() Stage               { return e.currentStage }

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("%w: initialize in stage %d", core.ErrInvalidOperation, e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		if _, err := os.Stat(path); err == nil {
			w, err := core.NewConfigWatcher(path, e.onConfigChanged)
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				w.Close()
				return err
			}
			e.watcher = w
		}
	}

	if dir := e.gameInstance.ApplicationConfig.AssetsDir; dir != "" {
		am, err := assets.NewAssetManager()
		if err != nil {
			return err
		}
		if err := am.Initialize(dir); err != nil {
			am.Close()
			return err
		}
		e.assetManager = am
	}

	err := e.submit(func(s *gpu.Session) error {
		if e.gameInstance.FnInitialize != nil {
			if err := e.gameInstance.FnInitialize(e.backend, s); err != nil {
				return err
			}
		}
		if e.assetManager == nil {
			return nil
		}
		if err := e.loadShaders(); err != nil {
			return err
		}
		for _, a := range e.assetManager.Assets(metadata.ResourceTypeImage) {
			if err := e.uploadAsset(s, a.Path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// submit records fn into the session, submits it and waits for it to
// retire. A failed recording is ended and discarded without being
// submitted, which puts the layout tables back to where they were.
func (e *Engine) submit(fn func(s *gpu.Session) error) error {
	s := e.session
	if err := s.Begin(); err != nil {
		return err
	}
	if err := fn(s); err != nil {
		if endErr := s.End(); endErr != nil {
			core.LogError("%s", endErr)
		}
		e.discard()
		return err
	}
	if err := s.End(); err != nil {
		e.discard()
		return err
	}
	fence, err := e.backend.Submit()
	if err != nil {
		core.LogError("%s", err)
		e.discard()
		return err
	}
	err = s.RetireAfter(fence, retireTimeout)
	if d, ok := fence.(interface{ Destroy() }); ok {
		d.Destroy()
	}
	return err
}

func (e *Engine) discard() {
	if err := e.session.Discard(); err != nil {
		core.LogError("discard %s: %s", e.session.Name, err)
	}
}

func (e *Engine) uploadAsset(s *gpu.Session, path string) error {
	if e.gameInstance.FnAssetChanged == nil {
		return nil
	}
	res, err := e.assetManager.LoadAsset(path, &metadata.ImageResourceParams{})
	if err != nil {
		return err
	}
	defer e.assetManager.UnloadAsset(res)
	return e.gameInstance.FnAssetChanged(s, res.Name, res.Data.(*metadata.ImageResourceData))
}

func (e *Engine) loadShaders() error {
	if e.gameInstance.FnShaderLoaded == nil {
		return nil
	}
	for _, a := range e.assetManager.Assets(metadata.ResourceTypeBinary) {
		res, err := e.assetManager.LoadAsset(a.Path, nil)
		if err != nil {
			return err
		}
		err = e.gameInstance.FnShaderLoaded(e.backend, res.Name, res.Data.([]byte))
		e.assetManager.UnloadAsset(res)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) onConfigChanged(cfg *core.Config) {
	select {
	case e.reloads <- cfg:
	default:
		// Replace the pending reload with the newer one.
		select {
		case <-e.reloads:
		default:
		}
		e.reloads <- cfg
	}
}

func (e *Engine) applyConfig(cfg *core.Config) {
	if err := cfg.Apply(); err != nil {
		core.LogWarn("config not applied: %s", err)
		return
	}
	e.pool.SetLimits(cfg.Staging.MinimumSize, cfg.Staging.MaximumSize)
	if cfg.Session != e.config.Session {
		core.LogWarn("session settings take effect on restart")
	}
	e.config = cfg
}

// Run records frames until the configured frame count was reached or Stop
// was called.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: run in stage %d", core.ErrInvalidOperation, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()

	var changes <-chan assets.AssetInfo
	if e.assetManager != nil {
		changes = e.assetManager.Changes()
	}
	frames := e.gameInstance.ApplicationConfig.Frames

	for frames == 0 || e.frame < uint64(frames) {
		select {
		case <-e.stop:
			return nil
		case cfg := <-e.reloads:
			e.applyConfig(cfg)
			continue
		case a, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if a.Type != metadata.ResourceTypeImage {
				core.LogWarn("%s changed, shaders are only loaded at startup", a.Path)
				continue
			}
			if err := e.submit(func(s *gpu.Session) error { return e.uploadAsset(s, a.Path) }); err != nil {
				core.LogError("reload of %s failed: %s", a.Path, err)
			}
			continue
		default:
		}

		start := time.Now()
		err := e.submit(func(s *gpu.Session) error {
			if e.gameInstance.FnRender == nil {
				return nil
			}
			return e.gameInstance.FnRender(s, e.frame)
		})
		if err != nil {
			core.LogError("frame %d failed: %s", e.frame, err)
			return err
		}
		e.frame++
		e.clock.Update()
		elapsed := time.Since(start)
		core.LogDebug("frame %d recorded in %s (running %s)", e.frame, elapsed, e.clock.Elapsed())
		if frames == 0 && elapsed < targetFrameTime {
			time.Sleep(targetFrameTime - elapsed)
		}
	}
	return nil
}

// Stop makes Run return after the frame in progress.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Close())
	}
	errs = append(errs, e.session.Destroy())
	e.pool.Destroy()
	e.backend.Destroy()

	st := e.pool.Stats()
	core.LogInfo("shutdown after %d frames: %d staging buffers allocated, %d destroyed", e.frame, st.Allocated, st.Destroyed)
	return errors.Join(errs...)
}
