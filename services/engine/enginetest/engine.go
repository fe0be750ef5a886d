// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enginetest provides a scripted in-process engine for tests.
//
// Engine implements supervisor.Launcher. Each Launch returns a fake
// process connected through io.Pipe that answers the UCI handshake and
// plays back a SearchScript for every "go" command.
//
//	eng := enginetest.New()
//	eng.OnSearch = func(fen string, depth int) enginetest.SearchScript {
//	    return enginetest.SearchScript{Infos: []string{"info depth 1 score cp 12"}}
//	}
//	sup := supervisor.New(cfg, enginetest.Locator(t), nil, supervisor.WithLauncher(eng))
package enginetest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/xqcoach/services/engine/supervisor"
)

// DefaultBestMove is emitted when a script leaves BestMove empty.
const DefaultBestMove = "h2e2"

// SearchScript describes how the fake engine answers one "go" command.
type SearchScript struct {
	// Infos are emitted in order after Delay.
	Infos []string

	// BestMove is the move in the terminal line. Default: DefaultBestMove.
	BestMove string

	// Delay holds the whole search back. A "stop" during the delay ends
	// the search immediately.
	Delay time.Duration

	// Withhold keeps bestmove back until "stop" arrives.
	Withhold bool
}

// Engine is a scripted fake engine. Configure the exported fields before
// the first Launch.
type Engine struct {
	// OnSearch returns the script for a search. Nil emits a single
	// "info depth <n> score cp 0" line.
	OnSearch func(fen string, depth int) SearchScript

	// SilentHandshake suppresses uciok.
	SilentHandshake bool

	// IgnoreStop makes "stop" produce no bestmove.
	IgnoreStop bool

	// HangOnQuit keeps the process alive after quit and stdin EOF until
	// Kill is called.
	HangOnQuit bool

	mu       sync.Mutex
	commands []string
	specs    []supervisor.LaunchSpec
	current  *process
	nextPid  int
	searches int
	kills    int
}

// New returns an Engine with default behavior.
func New() *Engine {
	return &Engine{nextPid: 1000}
}

// Launch implements supervisor.Launcher.
func (e *Engine) Launch(_ context.Context, spec supervisor.LaunchSpec) (supervisor.Process, error) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	e.mu.Lock()
	e.nextPid++
	p := &process{
		engine:  e,
		pid:     e.nextPid,
		stdinR:  stdinR,
		stdinW:  stdinW,
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		done:    make(chan struct{}),
		killed:  make(chan struct{}),
	}
	e.specs = append(e.specs, spec)
	e.current = p
	e.mu.Unlock()

	go p.serve()
	return p, nil
}

// Commands returns every command received so far, across launches.
func (e *Engine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// CommandsWithPrefix returns the received commands starting with prefix.
func (e *Engine) CommandsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range e.Commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Launches returns how many processes were started.
func (e *Engine) Launches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.specs)
}

// LastSpec returns the most recent launch spec.
func (e *Engine) LastSpec() supervisor.LaunchSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.specs) == 0 {
		return supervisor.LaunchSpec{}
	}
	return e.specs[len(e.specs)-1]
}

// Searches returns how many "go" commands were received.
func (e *Engine) Searches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searches
}

// Kills returns how many times a process was killed.
func (e *Engine) Kills() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kills
}

// Crash makes the current process die as if it segfaulted.
func (e *Engine) Crash() {
	e.mu.Lock()
	p := e.current
	e.mu.Unlock()
	if p != nil {
		p.finish(errors.New("signal: segmentation fault"))
	}
}

func (e *Engine) record(cmd string) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	if strings.HasPrefix(cmd, "go ") {
		e.searches++
	}
	e.mu.Unlock()
}

func (e *Engine) script(fen string, depth int) SearchScript {
	e.mu.Lock()
	fn := e.OnSearch
	e.mu.Unlock()
	if fn == nil {
		return SearchScript{Infos: []string{fmt.Sprintf("info depth %d score cp 0", depth)}}
	}
	return fn(fen, depth)
}

// Locator writes placeholder engine files into a temp dir and returns a
// DirLocator for them.
func Locator(t testing.TB) supervisor.DirLocator {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{supervisor.DefaultExecutableName, supervisor.DefaultWeightsName} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("fake"), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return supervisor.DirLocator{Dir: dir}
}

// =============================================================================
// FAKE PROCESS
// =============================================================================

type process struct {
	engine *Engine
	pid    int

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	once    sync.Once
	done    chan struct{}
	exitErr error

	killOnce sync.Once
	killed   chan struct{}

	searchMu sync.Mutex
	search   *search
}

type search struct {
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
}

func (s *search) signal() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (p *process) Stdin() io.WriteCloser { return p.stdinW }
func (p *process) Stdout() io.ReadCloser { return p.stdoutR }
func (p *process) Pid() int              { return p.pid }

func (p *process) Wait() error {
	<-p.done
	return p.exitErr
}

func (p *process) Kill() error {
	p.engine.mu.Lock()
	p.engine.kills++
	p.engine.mu.Unlock()
	p.killOnce.Do(func() { close(p.killed) })
	p.finish(errors.New("signal: killed"))
	return nil
}

// finish ends the process: output closes, input fails, Wait returns.
func (p *process) finish(err error) {
	p.once.Do(func() {
		p.exitErr = err
		p.searchMu.Lock()
		if p.search != nil {
			p.search.signal()
		}
		p.searchMu.Unlock()
		_ = p.stdinR.CloseWithError(io.ErrClosedPipe)
		_ = p.stdoutW.Close()
		close(p.done)
	})
}

func (p *process) emit(lines ...string) {
	for _, line := range lines {
		if _, err := io.WriteString(p.stdoutW, line+"\n"); err != nil {
			return
		}
	}
}

func (p *process) serve() {
	var fen string
	scanner := bufio.NewScanner(p.stdinR)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		p.engine.record(cmd)

		switch {
		case cmd == "uci":
			if !p.engine.SilentHandshake {
				p.emit("id name FakeFish", "id author enginetest", "uciok")
			}
		case cmd == "isready":
			p.emit("readyok")
		case strings.HasPrefix(cmd, "position fen "):
			fen = strings.TrimPrefix(cmd, "position fen ")
		case strings.HasPrefix(cmd, "go depth "):
			depth, _ := strconv.Atoi(strings.TrimPrefix(cmd, "go depth "))
			p.startSearch(p.engine.script(fen, depth))
		case cmd == "stop":
			// A search's final output precedes anything sent after stop.
			p.searchMu.Lock()
			s := p.search
			p.searchMu.Unlock()
			if s != nil {
				s.signal()
				<-s.finished
			}
		case cmd == "quit":
			p.exit()
			return
		}
	}
	p.exit()
}

func (p *process) exit() {
	if p.engine.HangOnQuit {
		<-p.killed
		return
	}
	p.finish(nil)
}

func (p *process) startSearch(script SearchScript) {
	best := script.BestMove
	if best == "" {
		best = DefaultBestMove
	}
	s := &search{stop: make(chan struct{}), finished: make(chan struct{})}

	p.searchMu.Lock()
	if p.search != nil {
		p.search.signal()
	}
	p.search = s
	p.searchMu.Unlock()

	bestLine := "bestmove " + best
	go func() {
		defer close(s.finished)
		if script.Delay > 0 {
			select {
			case <-time.After(script.Delay):
			case <-s.stop:
				if !p.engine.IgnoreStop {
					p.emit(bestLine)
				}
				return
			}
		}
		p.emit(script.Infos...)
		if !script.Withhold {
			p.emit(bestLine)
			return
		}
		<-s.stop
		if !p.engine.IgnoreStop {
			p.emit(bestLine)
		}
	}()
}
