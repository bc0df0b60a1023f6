// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// DOCKER ERRORS
// =============================================================================

// DockerError is a failed container engine command.
type DockerError struct {
	Op     string
	Output string
	Err    error
}

func (e *DockerError) Error() string {
	msg := "docker " + e.Op + " failed"
	if e.Output != "" {
		msg += ": " + e.Output
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CONTAINER EXECUTOR
// =============================================================================

// containerExecutor hosts the server in a container. Stopping issues an
// explicit stop command so teardown runs on every exit path rather than
// relying on process-scope finalization.
type containerExecutor struct {
	docker  string
	id      string
	logsCmd *exec.Cmd
	logger  zerolog.Logger
	once    sync.Once
	err     error
}

func (e *containerExecutor) stop() error {
	e.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		out, err := exec.CommandContext(ctx, e.docker, "stop", e.id).CombinedOutput()
		if err != nil {
			e.err = &DockerError{Op: "stop", Output: strings.TrimSpace(string(out)), Err: err}
			e.logger.Error().Err(e.err).Str("container", e.id).Msg("failed to stop container")
		} else {
			e.logger.Info().Str("container", e.id).Msg("container stopped")
		}

		if e.logsCmd != nil && e.logsCmd.Process != nil {
			_ = e.logsCmd.Process.Kill()
			_ = e.logsCmd.Wait()
		}
	})
	return e.err
}

// =============================================================================
// CONTAINER BOOT
// =============================================================================

// bootContainer launches the server image with the container engine:
// create (capturing the container id from stdout), start, then logs -f teed
// into the boot progress stream.
func bootContainer(ctx context.Context, opts BootOptions, docker string, emit func(BootEvent)) (*Assistant, error) {
	modelDir, err := filepath.Abs(filepath.Dir(opts.ModelPath))
	if err != nil {
		return nil, &Error{Type: ErrTypeIO, Message: "failed to resolve model directory", Cause: err}
	}
	modelFile := filepath.Base(opts.ModelPath)
	port := strconv.Itoa(opts.Port)

	createArgs := []string{
		"create", "--rm",
		"-p", port + ":" + port,
		"-v", modelDir + ":/models",
	}
	switch opts.Backend {
	case BackendCUDA:
		createArgs = append(createArgs, "--gpus", "all")
	case BackendROCm:
		createArgs = append(createArgs, "--device", "/dev/kfd", "--device", "/dev/dri")
	}

	createArgs = append(createArgs,
		opts.Image+":"+opts.Backend.imageTag(),
		"-m", "/models/"+modelFile,
		"--host", "0.0.0.0",
		"--port", port,
	)
	if opts.Backend.usesGPU() {
		createArgs = append(createArgs, "-ngl", strconv.Itoa(opts.GPULayers))
	}

	out, err := exec.CommandContext(ctx, docker, createArgs...).CombinedOutput()
	if err != nil {
		return nil, &Error{
			Type:    ErrTypeDocker,
			Message: "failed to create container",
			Cause:   &DockerError{Op: "create", Output: strings.TrimSpace(string(out)), Err: err},
		}
	}

	// The container id is the last line of create's stdout; earlier lines
	// may be image pull progress.
	outLines := strings.Split(strings.TrimSpace(string(out)), "\n")
	id := strings.TrimSpace(outLines[len(outLines)-1])
	if id == "" {
		return nil, &Error{Type: ErrTypeDocker, Message: "container engine returned no container id"}
	}

	opts.Logger.Info().Str("container", id).Str("image", opts.Image+":"+opts.Backend.imageTag()).Msg("container created")

	ex := &containerExecutor{docker: docker, id: id, logger: opts.Logger}

	if out, err := exec.CommandContext(ctx, docker, "start", id).CombinedOutput(); err != nil {
		_ = ex.stop()
		return nil, &Error{
			Type:    ErrTypeDocker,
			Message: "failed to start container",
			Cause:   &DockerError{Op: "start", Output: strings.TrimSpace(string(out)), Err: err},
		}
	}

	logsCmd := exec.Command(docker, "logs", "-f", id)
	stdout, err := logsCmd.StdoutPipe()
	if err != nil {
		_ = ex.stop()
		return nil, &Error{Type: ErrTypeDocker, Message: "failed to open container logs", Cause: err}
	}
	stderr, err := logsCmd.StderrPipe()
	if err != nil {
		_ = ex.stop()
		return nil, &Error{Type: ErrTypeDocker, Message: "failed to open container logs", Cause: err}
	}
	if err := logsCmd.Start(); err != nil {
		_ = ex.stop()
		return nil, &Error{Type: ErrTypeDocker, Message: "failed to follow container logs", Cause: err}
	}
	ex.logsCmd = logsCmd

	return race(ctx, opts, ex, []io.Reader{stdout, stderr}, emit)
}
