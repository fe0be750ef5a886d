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
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/xqcoach/services/engine/uci"
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of the engine handle.
type State int

const (
	// StateNotStarted is the initial state.
	StateNotStarted State = iota

	// StateStarting means the process is launched and the handshake is running,
	// or the handshake failed and the process is still attached.
	StateStarting

	// StateReady means the handshake succeeded and no search is in flight.
	StateReady

	// StateEvaluating means a search is in flight.
	StateEvaluating

	// StateTerminated means Stop released the process.
	StateTerminated
)

// String returns a human-readable state name.
func (s State) String() string {
	names := []string{"not_started", "starting", "ready", "evaluating", "terminated"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds supervisor timing and engine options.
type Config struct {
	// HandshakeTimeout bounds each of the uciok and readyok waits at startup.
	// Default: 5s
	HandshakeTimeout time.Duration

	// PollInterval is how often AwaitLine checks for new output.
	// Default: 100ms
	PollInterval time.Duration

	// StopGrace is how long Stop waits for a clean exit before killing.
	// Default: 5s
	StopGrace time.Duration

	// HashSize is the fixed value of the Hash option.
	// Default: 4096
	HashSize int

	// CPUCount reports the machine's core count. Threads is derived from it.
	// Default: runtime.NumCPU
	CPUCount func() int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		PollInterval:     100 * time.Millisecond,
		StopGrace:        5 * time.Second,
		HashSize:         4096,
		CPUCount:         runtime.NumCPU,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.StopGrace <= 0 {
		c.StopGrace = def.StopGrace
	}
	if c.HashSize <= 0 {
		c.HashSize = def.HashSize
	}
	if c.CPUCount == nil {
		c.CPUCount = def.CPUCount
	}
	return c
}

// ThreadCount is the engine thread count for a machine with the given cores:
// half the cores, at least one.
func ThreadCount(cores int) int {
	return max(1, cores/2)
}

// =============================================================================
// SUPERVISOR
// =============================================================================

// Supervisor owns one engine process and its pipes.
//
// Thread Safety:
//
//	Safe for concurrent use. Start and Stop are serialized.
type Supervisor struct {
	config   Config
	locator  Locator
	launcher Launcher
	logger   *slog.Logger

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex

	// writeMu serializes writes to stdin.
	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	proc       Process
	stdin      io.WriteCloser
	resources  Resources
	generation uint64
	exited     chan struct{}
	waitDone   chan struct{}
	pending    bytes.Buffer
	buffer     strings.Builder
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher replaces the os/exec launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		s.launcher = l
	}
}

// New creates a supervisor. The engine is not started.
//
// Inputs:
//
//	cfg - Timing and option settings. Zero fields take defaults.
//	locator - Finds the executable and weights file.
//	logger - Logger for lifecycle events. Nil uses slog.Default().
//	opts - Optional overrides.
//
// Outputs:
//
//	*Supervisor - The supervisor in StateNotStarted.
func New(cfg Config, locator Locator, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		config:   cfg.withDefaults(),
		locator:  locator,
		launcher: ExecLauncher{},
		logger:   logger,
		state:    StateNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start locates, launches and handshakes the engine.
//
// Description:
//
//	Resolves the resources through the Locator, launches the process with
//	its working directory set to the weights file's directory, then runs
//	the handshake: uci/uciok, EvalFile, Threads and Hash options,
//	isready/readyok. On success the state is StateReady.
//
// Errors:
//
//	ErrEngineNotFound - a resource is missing; state is unchanged
//	ErrAlreadyStarted - a process is already attached
//	ErrHandshakeFailed - handshake failed; process stays attached in
//	    StateStarting and should be torn down with Stop
func (s *Supervisor) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	prev := s.state
	if prev != StateNotStarted && prev != StateTerminated {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "Supervisor.Start")
	defer span.End()

	res, err := s.locator.Locate()
	if err != nil {
		s.logger.Warn("engine resources not found", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "engine not found")
		recordSpawn(ctx, false)
		return err
	}

	s.setState(StateStarting)

	proc, err := s.launcher.Launch(ctx, LaunchSpec{
		Path: res.Executable,
		Dir:  filepath.Dir(res.WeightsFile),
	})
	if err != nil {
		s.setState(prev)
		span.RecordError(err)
		span.SetStatus(codes.Error, "launch failed")
		recordSpawn(ctx, false)
		return fmt.Errorf("launch engine: %w", err)
	}

	s.attach(proc, res)
	span.SetAttributes(
		attribute.String("engine.executable", res.Executable),
		attribute.Int("engine.pid", proc.Pid()),
	)

	s.logger.Info("engine process started",
		slog.String("executable", res.Executable),
		slog.Int("pid", proc.Pid()),
	)

	if err := s.handshake(ctx, res, span); err != nil {
		s.logger.Error("engine handshake failed", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		recordSpawn(ctx, false)
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	s.setState(StateReady)
	recordSpawn(ctx, true)
	s.logger.Info("engine ready", slog.Int("pid", proc.Pid()))
	return nil
}

// attach installs a freshly launched process and starts its goroutines.
func (s *Supervisor) attach(proc Process, res Resources) {
	exited := make(chan struct{})
	waitDone := make(chan struct{})

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.proc = proc
	s.stdin = proc.Stdin()
	s.resources = res
	s.exited = exited
	s.waitDone = waitDone
	s.pending.Reset()
	s.buffer.Reset()
	s.mu.Unlock()

	go s.readLoop(gen, proc.Stdout(), exited)
	go s.waitLoop(proc, exited, waitDone)
}

// readLoop copies stdout into the pending buffer until EOF.
func (s *Supervisor) readLoop(gen uint64, r io.Reader, exited chan struct{}) {
	defer close(exited)

	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			if s.generation == gen {
				s.pending.Write(chunk[:n])
			}
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// waitLoop reaps the process once its output is fully read.
func (s *Supervisor) waitLoop(proc Process, exited, waitDone chan struct{}) {
	defer close(waitDone)
	<-exited
	if err := proc.Wait(); err != nil {
		s.logger.Debug("engine process exited", slog.Int("pid", proc.Pid()), slog.String("status", err.Error()))
		return
	}
	s.logger.Debug("engine process exited", slog.Int("pid", proc.Pid()))
}

func (s *Supervisor) handshake(ctx context.Context, res Resources, span trace.Span) error {
	if err := s.Send(uci.CmdUCI); err != nil {
		return err
	}
	if _, err := s.AwaitLine(ctx, uci.RespUCIOK, s.config.HandshakeTimeout); err != nil {
		return err
	}
	s.ClearBuffer()

	threads := ThreadCount(s.config.CPUCount())
	span.SetAttributes(
		attribute.Int("engine.threads", threads),
		attribute.Int("engine.hash", s.config.HashSize),
	)

	options := []string{
		uci.SetOptionCommand(uci.OptionEvalFile, res.WeightsFile),
		uci.SetOptionCommand(uci.OptionThreads, threads),
		uci.SetOptionCommand(uci.OptionHash, s.config.HashSize),
		uci.CmdIsReady,
	}
	for _, cmd := range options {
		if err := s.Send(cmd); err != nil {
			return err
		}
	}

	if _, err := s.AwaitLine(ctx, uci.RespReadyOK, s.config.HandshakeTimeout); err != nil {
		return err
	}
	s.ClearBuffer()
	return nil
}

// Stop tears the engine down.
//
// Description:
//
//	Sends quit if the process is alive, closes stdin and waits for the
//	process to exit. If it has not exited after StopGrace (or ctx ends
//	first) it is killed. Pipes and buffers are released and the state
//	becomes StateTerminated.
//
// Thread Safety:
//
//	Safe for concurrent use and idempotent. A no-op when never started.
func (s *Supervisor) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	proc := s.proc
	stdin := s.stdin
	exited := s.exited
	waitDone := s.waitDone
	if proc == nil {
		if s.state != StateNotStarted {
			s.state = StateTerminated
		}
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping engine", slog.Int("pid", proc.Pid()))

	if !isClosed(exited) {
		if err := s.Send(uci.CmdQuit); err != nil {
			s.logger.Debug("quit not delivered", slog.String("error", err.Error()))
		}
	}
	_ = stdin.Close()

	killed := false
	grace := time.NewTimer(s.config.StopGrace)
	defer grace.Stop()

	select {
	case <-waitDone:
	case <-grace.C:
		killed = true
	case <-ctx.Done():
		killed = true
	}

	if killed {
		s.logger.Warn("engine did not exit, killing", slog.Int("pid", proc.Pid()))
		if err := proc.Kill(); err != nil {
			s.logger.Error("kill engine", slog.String("error", err.Error()))
		}
		select {
		case <-waitDone:
		case <-time.After(s.config.StopGrace):
			s.logger.Error("engine process not reaped after kill", slog.Int("pid", proc.Pid()))
		}
	}
	_ = proc.Stdout().Close()

	s.mu.Lock()
	s.generation++
	s.proc = nil
	s.stdin = nil
	s.exited = nil
	s.waitDone = nil
	s.pending.Reset()
	s.buffer.Reset()
	s.state = StateTerminated
	s.mu.Unlock()

	recordStop(ctx, killed)
	return nil
}

// Close stops the engine with a background context. It implements io.Closer
// for teardown paths.
func (s *Supervisor) Close() error {
	return s.Stop(context.Background())
}

// =============================================================================
// PRIMITIVES
// =============================================================================

// Send writes command followed by a newline to the engine.
//
// Errors:
//
//	ErrNotRunning - no process attached, or the pipe is closed
func (s *Supervisor) Send(command string) error {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()

	if stdin == nil {
		return ErrNotRunning
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(stdin, command+"\n"); err != nil {
		return fmt.Errorf("%w: write %q: %w", ErrNotRunning, command, err)
	}
	s.logger.Debug("engine <", slog.String("command", command))
	return nil
}

// AwaitLine waits until the accumulated output contains substring.
//
// Description:
//
//	Every PollInterval, moves whatever output has arrived into the
//	accumulated buffer and checks it for substring. The buffer is checked
//	once before the first tick, so earlier output counts.
//
// Inputs:
//
//	ctx - Cancels the wait early
//	substring - Text to wait for, e.g. "readyok"
//	timeout - Upper bound on the wait
//
// Outputs:
//
//	string - The full accumulated buffer on match
//	error - *TimeoutError (matches ErrTimeout) carrying the partial buffer;
//	    ErrNotRunning if nothing is attached or the process exited;
//	    ctx.Err() on cancellation
func (s *Supervisor) AwaitLine(ctx context.Context, substring string, timeout time.Duration) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("ctx must not be nil")
	}

	start := time.Now()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		buf, exited, attached := s.drain()
		if !attached {
			return buf, ErrNotRunning
		}
		if strings.Contains(buf, substring) {
			return buf, nil
		}
		if exited {
			return buf, fmt.Errorf("%w: %w while awaiting %q", ErrNotRunning, ErrProcessExited, substring)
		}
		if time.Since(start) >= timeout {
			recordAwaitTimeout(ctx, substring)
			return buf, &TimeoutError{Substring: substring, Timeout: timeout, Buffer: buf}
		}

		select {
		case <-ctx.Done():
			return buf, ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain moves pending output into the accumulated buffer.
//
// exited is sampled before the move: once the reader has closed it, every
// byte it read is already pending.
func (s *Supervisor) drain() (buf string, exited, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return s.buffer.String(), false, false
	}
	exited = isClosed(s.exited)
	if s.pending.Len() > 0 {
		s.buffer.Write(s.pending.Bytes())
		s.pending.Reset()
	}
	return s.buffer.String(), exited, true
}

// ClearBuffer discards all accumulated and pending output.
func (s *Supervisor) ClearBuffer() {
	s.mu.Lock()
	s.pending.Reset()
	s.buffer.Reset()
	s.mu.Unlock()
}

// =============================================================================
// STATE ACCESSORS
// =============================================================================

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the handshake succeeded and the process is alive.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateEvaluating {
		return false
	}
	return s.proc != nil && !isClosed(s.exited)
}

// Resources returns the resources of the attached process.
func (s *Supervisor) Resources() Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources
}

// BeginSearch marks the handle as evaluating.
func (s *Supervisor) BeginSearch() {
	s.mu.Lock()
	if s.state == StateReady {
		s.state = StateEvaluating
	}
	s.mu.Unlock()
}

// EndSearch marks the handle as ready again.
func (s *Supervisor) EndSearch() {
	s.mu.Lock()
	if s.state == StateEvaluating {
		s.state = StateReady
	}
	s.mu.Unlock()
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func isClosed(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
