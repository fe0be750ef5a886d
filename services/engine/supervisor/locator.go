// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default resource names looked up by DirLocator.
const (
	DefaultExecutableName = "pikafish"
	DefaultWeightsName    = "pikafish.nnue"
)

// Resources are the files needed to run the engine.
type Resources struct {
	// Executable is the engine binary.
	Executable string

	// WeightsFile is the NNUE network passed via the EvalFile option.
	WeightsFile string
}

// Locator finds the engine resources.
//
// A missing resource must be reported as ErrEngineNotFound.
type Locator interface {
	Locate() (Resources, error)
}

// DirLocator finds the executable and the weights file in one directory.
type DirLocator struct {
	// Dir is the directory holding both files.
	Dir string

	// Executable overrides DefaultExecutableName.
	Executable string

	// Weights overrides DefaultWeightsName.
	Weights string
}

// Locate implements Locator.
func (l DirLocator) Locate() (Resources, error) {
	exe := l.Executable
	if exe == "" {
		exe = DefaultExecutableName
	}
	weights := l.Weights
	if weights == "" {
		weights = DefaultWeightsName
	}
	return StaticLocator{Resources: Resources{
		Executable:  filepath.Join(l.Dir, exe),
		WeightsFile: filepath.Join(l.Dir, weights),
	}}.Locate()
}

// StaticLocator returns fixed paths after checking that they exist.
type StaticLocator struct {
	Resources Resources
}

// Locate implements Locator.
func (l StaticLocator) Locate() (Resources, error) {
	if err := requireFile(l.Resources.Executable, "executable"); err != nil {
		return Resources{}, err
	}
	if err := requireFile(l.Resources.WeightsFile, "weights file"); err != nil {
		return Resources{}, err
	}
	return l.Resources, nil
}

func requireFile(path, what string) error {
	if path == "" {
		return fmt.Errorf("%w: no %s configured", ErrEngineNotFound, what)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrEngineNotFound, what, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s %s is a directory", ErrEngineNotFound, what, path)
	}
	return nil
}
