package engine

type BackendKind string

const (
	BackendHeadless BackendKind = "headless"
	BackendVulkan   BackendKind = "vulkan"
)

type ApplicationConfig struct {
	// The application name reported to the driver.
	Name string
	// Path of the TOML configuration. A missing file keeps the defaults.
	ConfigPath string
	// Textures below this directory are uploaded at startup and uploaded
	// again when they change on disk. Empty disables asset loading.
	AssetsDir string
	Backend   BackendKind
	// Enables the Vulkan validation layer.
	Validation bool
	// Number of frames Run records before returning. Zero runs until Stop.
	Frames int
	// Size of the render target the game draws into.
	Width  uint32
	Height uint32
}
