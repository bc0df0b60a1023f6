// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeDocker creates an executable that records its arguments and
// exits with the given status.
func writeFakeDocker(t *testing.T, dir string, exitCode int) (binary, argsFile string) {
	t.Helper()

	argsFile = filepath.Join(dir, "docker-args")
	binary = filepath.Join(dir, "docker")
	script := "#!/bin/sh\n" +
		"echo \"$@\" >> " + argsFile + "\n" +
		"exit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	return binary, argsFile
}

func TestContainerExecutorStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}

	dir := t.TempDir()
	docker, argsFile := writeFakeDocker(t, dir, 0)

	ex := &containerExecutor{docker: docker, id: "abc123", logger: zerolog.Nop()}

	require.NoError(t, ex.stop())

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "stop abc123\n", string(args))

	// stop is idempotent: the engine is invoked exactly once.
	require.NoError(t, ex.stop())
	args, err = os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "stop abc123\n", string(args))
}

func TestContainerExecutorStopFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}

	dir := t.TempDir()
	docker, _ := writeFakeDocker(t, dir, 1)

	ex := &containerExecutor{docker: docker, id: "abc123", logger: zerolog.Nop()}

	err := ex.stop()
	require.Error(t, err)

	var dockerErr *DockerError
	require.True(t, errors.As(err, &dockerErr))
	assert.Equal(t, "stop", dockerErr.Op)

	// The first outcome is sticky across repeated stops.
	assert.Equal(t, err, ex.stop())
}

func TestDockerErrorMessage(t *testing.T) {
	err := &DockerError{Op: "create", Output: "no such image", Err: errors.New("exit status 125")}
	assert.Equal(t, "docker create failed: no such image: exit status 125", err.Error())

	bare := &DockerError{Op: "start"}
	assert.Equal(t, "docker start failed", bare.Error())
}
