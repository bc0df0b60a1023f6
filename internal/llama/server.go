// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the compute target for the inference server.
type Backend int

const (
	BackendCPU Backend = iota
	BackendCUDA
	BackendROCm
)

// String returns the string representation of the backend.
func (b Backend) String() string {
	switch b {
	case BackendCUDA:
		return "cuda"
	case BackendROCm:
		return "rocm"
	default:
		return "cpu"
	}
}

// ParseBackend parses a backend name. Unknown names are an error.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return BackendCPU, nil
	case "cuda":
		return BackendCUDA, nil
	case "rocm":
		return BackendROCm, nil
	default:
		return BackendCPU, fmt.Errorf("unknown backend: %q", s)
	}
}

// usesGPU reports whether the backend offloads layers to a GPU.
func (b Backend) usesGPU() bool {
	return b == BackendCUDA || b == BackendROCm
}

// imageTag returns the llama.cpp server image tag for the backend.
func (b Backend) imageTag() string {
	switch b {
	case BackendCUDA:
		return "server-cuda"
	case BackendROCm:
		return "server-rocm"
	default:
		return "server"
	}
}

// =============================================================================
// BOOT EVENTS
// =============================================================================

// BootEvent is one entry of the boot progress stream.
type BootEvent interface {
	isBootEvent()
}

// Progressed reports a boot stage and its completion percentage.
type Progressed struct {
	Stage   string
	Percent int
}

// Logged forwards one stdout/stderr line of the launching server.
type Logged struct {
	Line string
}

func (Progressed) isBootEvent() {}
func (Logged) isBootEvent()     {}

// Boot stage labels.
const (
	StageFetchingModel     = "fetching model"
	StageDetectingExecutor = "detecting executor"
	StageLaunching         = "launching assistant"
)

// =============================================================================
// BOOT OPTIONS
// =============================================================================

// BootOptions configures one boot of the inference server.
type BootOptions struct {
	// ModelPath is the local GGUF model file the server loads.
	ModelPath string

	// ModelURL, when set, is downloaded to ModelPath if the file is missing.
	ModelURL string

	// ModelID is the model name sent in completion requests.
	ModelID string

	// Backend selects CPU, CUDA, or ROCm launch flags.
	Backend Backend

	// Host and Port locate the server's HTTP endpoint.
	Host string
	Port int

	// GPULayers is the -ngl value for GPU backends.
	GPULayers int

	// Image is the container image family used when no native binary is
	// found; the backend picks the tag.
	Image string

	// ServerBinary overrides binary detection with an explicit path.
	ServerBinary string

	// Logger receives supervisor lifecycle logs.
	Logger zerolog.Logger
}

func (o *BootOptions) normalize() {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.GPULayers == 0 {
		o.GPULayers = 80
	}
	if o.Image == "" {
		o.Image = "ghcr.io/ggml-org/llama.cpp"
	}
	if o.ModelID == "" {
		o.ModelID = strings.TrimSuffix(filepath.Base(o.ModelPath), filepath.Ext(o.ModelPath))
	}
}

func (o *BootOptions) baseURL() string {
	return fmt.Sprintf("http://%s:%d", o.Host, o.Port)
}

// =============================================================================
// EXECUTOR VARIANTS
// =============================================================================

// executor is the concrete process or container hosting the server. stop is
// guaranteed to run at most once and on every exit path of the owner.
type executor interface {
	stop() error
}

// processExecutor hosts the server as a directly spawned child process.
type processExecutor struct {
	cmd  *exec.Cmd
	once sync.Once
}

func (e *processExecutor) stop() error {
	e.once.Do(func() {
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		_ = e.cmd.Wait()
	})
	return nil
}

// =============================================================================
// ASSISTANT
// =============================================================================

// Assistant is a live handle to a running inference endpoint. It exclusively
// owns the underlying executor; Close tears the server down.
type Assistant struct {
	client *Client
	exec   executor
	once   sync.Once
	err    error
}

// Client returns the completion client bound to the running server.
func (a *Assistant) Client() *Client {
	return a.client
}

// Model returns the model identifier the assistant serves.
func (a *Assistant) Model() string {
	return a.client.Model()
}

// Complete streams a completion from the assistant's server.
func (a *Assistant) Complete(ctx context.Context, system string, messages []model.Message, onToken func(model.Token)) error {
	return a.client.Complete(ctx, system, messages, onToken)
}

// Reply streams and aggregates a completion from the assistant's server.
func (a *Assistant) Reply(ctx context.Context, system string, messages []model.Message, onUpdate func(model.Reply, model.Token)) (*model.Reply, error) {
	return a.client.Reply(ctx, system, messages, onUpdate)
}

// Close stops the underlying executor. It is idempotent: a container is
// stopped with an explicit stop command, a native process is killed.
func (a *Assistant) Close() error {
	a.once.Do(func() {
		a.err = a.exec.stop()
	})
	return a.err
}

// =============================================================================
// BOOT
// =============================================================================

// Boot brings up the inference server and blocks until it is healthy or has
// failed. Progress is reported through emit (which may be nil): Progressed
// stages, then every server log line as Logged while a concurrent health
// poll probes the /health endpoint each second. Whichever finishes first
// decides the outcome; the losing task is cancelled. There is no automatic
// retry of a failed boot.
func Boot(ctx context.Context, opts BootOptions, emit func(BootEvent)) (*Assistant, error) {
	opts.normalize()
	if emit == nil {
		emit = func(BootEvent) {}
	}

	if err := ensureModel(ctx, &opts, emit); err != nil {
		return nil, err
	}

	emit(Progressed{Stage: StageDetectingExecutor, Percent: 95})

	if binary, err := findServerBinary(opts.ServerBinary); err == nil {
		opts.Logger.Info().Str("binary", binary).Msg("detected native llama-server")
		return bootProcess(ctx, opts, binary, emit)
	}

	docker, err := exec.LookPath("docker")
	if err != nil {
		return nil, ErrNoExecutorAvailable
	}

	opts.Logger.Info().Str("docker", docker).Msg("no native binary, using container engine")
	return bootContainer(ctx, opts, docker, emit)
}

// ensureModel makes sure the model file exists, downloading it when a source
// URL is configured.
func ensureModel(ctx context.Context, opts *BootOptions, emit func(BootEvent)) error {
	if _, err := os.Stat(opts.ModelPath); err == nil {
		return nil
	}

	if opts.ModelURL == "" {
		return &Error{Type: ErrTypeIO, Message: "model file not found: " + opts.ModelPath}
	}

	emit(Progressed{Stage: StageFetchingModel, Percent: 0})

	return downloadModel(ctx, opts.ModelURL, opts.ModelPath, func(percent int) {
		emit(Progressed{Stage: StageFetchingModel, Percent: percent})
	})
}

// serverBinaryName is the llama.cpp server executable probed for in PATH.
const serverBinaryName = "llama-server"

// findServerBinary locates the native server binary, preferring an explicit
// override, then PATH, then common installation directories.
func findServerBinary(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("server binary not found: %s", override)
		}
		return override, nil
	}

	if path, err := exec.LookPath(serverBinaryName); err == nil {
		return path, nil
	}

	possiblePaths := []string{
		"/usr/local/bin/" + serverBinaryName,
		"/usr/bin/" + serverBinaryName,
		"/opt/llama.cpp/bin/" + serverBinaryName,
	}
	if home, err := os.UserHomeDir(); err == nil {
		possiblePaths = append(possiblePaths, filepath.Join(home, ".local", "bin", serverBinaryName))
	}

	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH or common installation directories", serverBinaryName)
}

// bootProcess launches the server as a native child process.
func bootProcess(ctx context.Context, opts BootOptions, binary string, emit func(BootEvent)) (*Assistant, error) {
	// Log the detected binary's version banner before launching.
	if out, err := exec.CommandContext(ctx, binary, "--version").CombinedOutput(); err == nil || len(out) > 0 {
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if line != "" {
				emit(Logged{Line: line})
			}
		}
	}

	args := []string{
		"-m", opts.ModelPath,
		"--host", opts.Host,
		"--port", strconv.Itoa(opts.Port),
	}
	if opts.Backend.usesGPU() {
		args = append(args, "-ngl", strconv.Itoa(opts.GPULayers))
	}

	cmd := exec.Command(binary, args...)
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Type: ErrTypeExecutorFailed, Message: "failed to open server stdout", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &Error{Type: ErrTypeExecutorFailed, Message: "failed to open server stderr", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &Error{Type: ErrTypeExecutorFailed, Message: "failed to launch " + binary, Cause: err}
	}

	return race(ctx, opts, &processExecutor{cmd: cmd}, []io.Reader{stdout, stderr}, emit)
}

// =============================================================================
// READINESS RACE
// =============================================================================

// race runs the log tee against the health poll. Health success wins by
// cancelling the tee and returning the ready Assistant; the tee ending first
// means the server died, which stops the executor and fails the boot.
func race(ctx context.Context, opts BootOptions, ex executor, logs []io.Reader, emit func(BootEvent)) (*Assistant, error) {
	emit(Progressed{Stage: StageLaunching, Percent: 99})

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string, 64)
	teeDone := make(chan struct{})
	go tee(raceCtx, logs, lines, teeDone)

	client := NewClient(opts.baseURL(), opts.ModelID)
	healthy := make(chan struct{})
	go pollHealth(raceCtx, client, healthy)

	for {
		select {
		case line := <-lines:
			emit(Logged{Line: line})

		case <-healthy:
			cancel()
			emit(Progressed{Stage: StageLaunching, Percent: 100})
			opts.Logger.Info().Str("url", opts.baseURL()).Msg("assistant ready")
			return &Assistant{client: client, exec: ex}, nil

		case <-teeDone:
			cancel()
			_ = ex.stop()
			opts.Logger.Error().Msg("inference server exited before becoming healthy")
			return nil, ErrExecutorFailed

		case <-ctx.Done():
			_ = ex.stop()
			return nil, ctx.Err()
		}
	}
}

// tee forwards every log line until the pipes close. After cancellation it
// keeps draining silently so the server never blocks on a full pipe.
func tee(ctx context.Context, readers []io.Reader, lines chan<- string, done chan<- struct{}) {
	var wg sync.WaitGroup

	for _, r := range readers {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()

			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-ctx.Done():
				}
			}
		}(r)
	}

	wg.Wait()
	close(done)
}

// pollHealth probes the health endpoint every second until it succeeds or
// the race is decided. There is no attempt cap; the poll is bounded by the
// server's lifetime through the racing log tee.
func pollHealth(ctx context.Context, client *Client, healthy chan<- struct{}) {
	for {
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		err := client.Healthy(probeCtx)
		cancel()

		if err == nil {
			close(healthy)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
