package engine

import (
	"github.com/spaghettifunk/anima/engine/renderer/gpu"
	"github.com/spaghettifunk/anima/engine/renderer/metadata"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnRender          Render
	FnAssetChanged    AssetChanged
	FnShaderLoaded    ShaderLoaded
	FnShutdown        Shutdown
}

// Initialize creates the game's resources. The session is recording and
// is submitted once Initialize returns.
type Initialize func(backend Backend, session *gpu.Session) error

// Render records one frame into a session that is already recording.
type Render func(session *gpu.Session, frame uint64) error

// AssetChanged receives a texture that was loaded or reloaded from disk.
type AssetChanged func(session *gpu.Session, name string, pixels *metadata.ImageResourceData) error

// ShaderLoaded receives the SPIR-V of a binary asset found at startup, after
// Initialize has run.
type ShaderLoaded func(backend Backend, name string, spirv []byte) error

type Shutdown func() error
