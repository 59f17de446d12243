//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Demo builds the cmd/demo binary.
func (Build) Demo() error {
	_, err := executeCmd("go", withArgs("build", "-o", "bin/demo", "./cmd/demo"), withStream())
	return err
}

// All runs go build across every package, catching compile errors in the
// frame graph itself without needing a GPU to run the demo against.
func (Build) All() error {
	_, err := executeCmd("go", withArgs("build", "./..."), withStream())
	return err
}

// Tidy runs go mod tidy and go generate across the module.
func (Build) Tidy() error {
	return goTidy()
}
