/*
This is an example of application that will use the
engine package to record frames against one of the backends
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima/engine"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/testbed"
)

func main() {
	config := &engine.ApplicationConfig{Name: "Anima testbed", Width: 320, Height: 180}
	backend := string(engine.BackendHeadless)
	flag.StringVar(&config.ConfigPath, "config", "config.toml", "path of the TOML configuration")
	flag.StringVar(&config.AssetsDir, "assets", "", "directory of textures to watch and upload")
	flag.StringVar(&backend, "backend", backend, "headless or vulkan")
	flag.BoolVar(&config.Validation, "validation", false, "enable the Vulkan validation layers")
	flag.IntVar(&config.Frames, "frames", 3, "frames to record, 0 runs until interrupted")
	dump := flag.Bool("dump", false, "print the command log of the last headless frame")
	flag.Parse()
	config.Backend = engine.BackendKind(backend)

	if err := run(config, *dump); err != nil {
		core.LogError("%s", err)
		os.Exit(1)
	}
}

func run(config *engine.ApplicationConfig, dump bool) (err error) {
	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := e.Shutdown(); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	if err := e.Initialize(); err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			e.Stop()
		}
	}()

	if err := e.Run(); err != nil {
		return err
	}

	if hb, ok := e.Backend().(*engine.HeadlessBackend); ok && dump {
		for i, c := range hb.Commands() {
			fmt.Printf("%4d %s\n", i, c)
		}
	}
	m := core.MetricsFrame()
	core.LogInfo("barriers %d (%d image), uploaded %d bytes, %d render passes, %d validations",
		m.BarrierCommands, m.ImageBarriers, m.UploadedBytes, m.RenderPassBegins, m.ValidationsPassed)
	return nil
}
