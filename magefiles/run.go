//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed in a window.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "anima.toml"), withStream())
	return err
}

// Runs the testbed on the headless backend for a fixed number of frames.
func (Run) Headless() error {
	fmt.Println("Run headless engine...")
	_, err := executeCmd("go", withArgs("run", ".", "-config", "testbed/headless.toml"), withStream())
	return err
}
