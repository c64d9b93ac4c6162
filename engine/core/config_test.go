package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
[staging]
maximum_size = 4096
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Staging.MaximumSize != 4096 {
		t.Errorf("staging.maximum_size\nhave %d\nwant 4096", cfg.Staging.MaximumSize)
	}
	if cfg.Staging.MinimumSize != DefaultStagingMinimumSize {
		t.Errorf("staging.minimum_size\nhave %d\nwant %d", cfg.Staging.MinimumSize, DefaultStagingMinimumSize)
	}
	if !cfg.Session.ViewportReset || cfg.Logging.Level != "info" {
		t.Errorf("defaults\nhave %+v\nwant viewport_reset and info level", cfg)
	}
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"syntax":        "[staging\n",
		"zero minimum":  "[staging]\nminimum_size = 0\n",
		"inverted":      "[staging]\nminimum_size = 1024\nmaximum_size = 512\n",
		"mistyped size": "[staging]\nminimum_size = \"big\"\n",
	}
	for name, data := range cases {
		if _, err := ParseConfig([]byte(data)); err == nil {
			t.Errorf("%s: parsed without error", name)
		}
	}
}

func TestConfigApply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Apply(); err == nil {
		t.Error("unknown log level applied")
	}
	cfg.Logging.Level = "warn"
	if err := cfg.Apply(); err != nil {
		t.Errorf("apply\nhave %v\nwant nil", err)
	}
	SetLogLevel("info")
}

func TestConfigWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[staging]\nmaximum_size = 512\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 4)
	cw, err := NewConfigWatcher(path, func(c *Config) { reloaded <- c })
	if err != nil {
		t.Fatal(err)
	}
	defer cw.Close()
	if err := cw.Start(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[staging]\nmaximum_size = 2048\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-reloaded:
			// A truncating write may be observed before the new content.
			if c.Staging.MaximumSize == 2048 {
				return
			}
		case <-deadline:
			t.Fatal("config change was not reloaded")
		}
	}
}

func TestConfigWatcherCloseTwice(t *testing.T) {
	cw, err := NewConfigWatcher(filepath.Join(t.TempDir(), "config.toml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := cw.Close(); err != nil {
		t.Errorf("second close\nhave %v\nwant nil", err)
	}
	if err := cw.Start(); err == nil {
		t.Error("start after close succeeded")
	}
}
