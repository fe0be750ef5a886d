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
	"context"
	"fmt"
	"io"
	"os/exec"
)

// LaunchSpec describes the process to start.
type LaunchSpec struct {
	Path string
	Args []string
	Dir  string
}

// Process is a running engine with its two pipes.
type Process interface {
	// Stdin is the engine's command input.
	Stdin() io.WriteCloser

	// Stdout is the engine's response output.
	Stdout() io.ReadCloser

	// Wait blocks until the process exits. Called once, after Stdout
	// reaches EOF.
	Wait() error

	// Kill terminates the process and anything it spawned.
	Kill() error

	// Pid identifies the process in logs.
	Pid() int
}

// Launcher starts engine processes.
//
// Tests substitute an in-process fake; production uses ExecLauncher.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher launches a real subprocess via os/exec.
type ExecLauncher struct{}

// Launch implements Launcher.
//
// The process does not inherit ctx: its lifetime is bounded by Stop, not
// by the request that happened to trigger startup. On unix it gets its
// own process group so teardown can kill helpers it forks.
func (ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	configureCmd(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.ReadCloser { return p.stdout }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Kill() error           { return killProcess(p.cmd) }
func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
