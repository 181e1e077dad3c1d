//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaders = []string{
	"gbuffer.vert",
	"gbuffer.frag",
	"fullscreen.vert",
	"lighting.frag",
	"composite.frag",
	"bloom.comp",
}

// Compiles the testbed shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary.
func (Build) Engine() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/anima-framegraph", "."), withStream())
	return err
}

func buildShaders() error {
	for _, s := range shaders {
		if _, err := executeCmd("glslc", withArgs("shaders/"+s, "-o", "shaders/"+s+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
