//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Records a few frames on the headless backend and prints the command log.
func (Run) Headless() error {
	fmt.Println("Run engine headless...")
	_, err := executeCmd("go", withArgs("run", ".", "-backend", "headless", "-frames", "3", "-dump"), withStream())
	return err
}

// Records frames on the Vulkan backend until interrupted. Validation layers
// are enabled when ANIMA_VALIDATION is set.
func (Run) Vulkan() error {
	args := []string{"run", ".", "-backend", "vulkan", "-frames", "0"}
	if os.Getenv("ANIMA_VALIDATION") != "" {
		args = append(args, "-validation")
	}
	fmt.Println("Run engine on vulkan...")
	_, err := executeCmd("go", withArgs(args...), withStream())
	return err
}
