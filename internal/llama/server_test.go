// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		input   string
		want    Backend
		wantErr bool
	}{
		{"cpu", BackendCPU, false},
		{"", BackendCPU, false},
		{"CUDA", BackendCUDA, false},
		{" rocm ", BackendROCm, false},
		{"metal", BackendCPU, true},
	}

	for _, tt := range tests {
		got, err := ParseBackend(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseBackend(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestBackendImageTag(t *testing.T) {
	tests := []struct {
		backend Backend
		want    string
	}{
		{BackendCPU, "server"},
		{BackendCUDA, "server-cuda"},
		{BackendROCm, "server-rocm"},
	}

	for _, tt := range tests {
		if got := tt.backend.imageTag(); got != tt.want {
			t.Errorf("%v.imageTag() = %q, want %q", tt.backend, got, tt.want)
		}
	}
}

func TestBootOptionsNormalize(t *testing.T) {
	opts := BootOptions{ModelPath: "/models/mistral-7b.gguf"}
	opts.normalize()

	if opts.Host != "localhost" || opts.Port != 8080 {
		t.Errorf("endpoint = %s:%d, want localhost:8080", opts.Host, opts.Port)
	}
	if opts.GPULayers != 80 {
		t.Errorf("GPULayers = %d, want 80", opts.GPULayers)
	}
	if opts.ModelID != "mistral-7b" {
		t.Errorf("ModelID = %q, want model file stem", opts.ModelID)
	}
	if opts.baseURL() != "http://localhost:8080" {
		t.Errorf("baseURL() = %q", opts.baseURL())
	}
}

// writeFakeModel creates a placeholder model file so boot gets past the
// existence check.
func writeFakeModel(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tiny.gguf")
	if err := os.WriteFile(path, []byte("gguf"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeFakeServer creates an executable that prints a version banner for
// --version and otherwise runs body.
func writeFakeServer(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "llama-server")
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--version\" ]; then\n" +
		"  echo \"llama-server test build 0.0.1\"\n" +
		"  exit 0\n" +
		"fi\n" +
		body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func healthEndpoint(t *testing.T, status int) (host string, port int, closeFn func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	h, p, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		t.Fatal(err)
	}
	return h, n, server.Close
}

func TestBootNoExecutorAvailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on unix PATH semantics")
	}

	dir := t.TempDir()
	modelPath := writeFakeModel(t, dir)

	// An empty PATH and HOME leave no binary and no container engine.
	t.Setenv("PATH", dir)
	t.Setenv("HOME", dir)

	var events []BootEvent
	_, err := Boot(context.Background(), BootOptions{
		ModelPath: modelPath,
		Logger:    zerolog.Nop(),
	}, func(e BootEvent) { events = append(events, e) })

	if !errors.Is(err, ErrNoExecutorAvailable) {
		t.Fatalf("Boot() error = %v, want ErrNoExecutorAvailable", err)
	}

	for _, e := range events {
		if logged, ok := e.(Logged); ok {
			t.Errorf("Logged event %q emitted with no executor", logged.Line)
		}
	}
}

func TestBootMissingModelWithoutURL(t *testing.T) {
	_, err := Boot(context.Background(), BootOptions{
		ModelPath: filepath.Join(t.TempDir(), "absent.gguf"),
		Logger:    zerolog.Nop(),
	}, nil)

	var llamaErr *Error
	if !errors.As(err, &llamaErr) || llamaErr.Type != ErrTypeIO {
		t.Fatalf("Boot() error = %v, want missing-model IO error", err)
	}
}

func TestBootNativeProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}

	dir := t.TempDir()
	modelPath := writeFakeModel(t, dir)
	binary := writeFakeServer(t, dir, "echo \"loading model\"\nsleep 30")

	host, port, closeHealth := healthEndpoint(t, http.StatusOK)
	defer closeHealth()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var events []BootEvent
	assistant, err := Boot(ctx, BootOptions{
		ModelPath:    modelPath,
		ServerBinary: binary,
		Host:         host,
		Port:         port,
		Logger:       zerolog.Nop(),
	}, func(e BootEvent) { events = append(events, e) })
	if err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	defer assistant.Close()

	if assistant.Model() != "tiny" {
		t.Errorf("Model() = %q, want %q", assistant.Model(), "tiny")
	}

	var sawDetect, sawLaunch99, sawLaunch100, sawVersion bool
	for _, e := range events {
		switch e := e.(type) {
		case Progressed:
			switch {
			case e.Stage == StageDetectingExecutor && e.Percent == 95:
				sawDetect = true
			case e.Stage == StageLaunching && e.Percent == 99:
				sawLaunch99 = true
			case e.Stage == StageLaunching && e.Percent == 100:
				sawLaunch100 = true
			}
		case Logged:
			if strings.Contains(e.Line, "test build") {
				sawVersion = true
			}
		}
	}

	if !sawDetect {
		t.Error("no detecting-executor progress event")
	}
	if !sawLaunch99 || !sawLaunch100 {
		t.Errorf("launch progress events: 99=%v 100=%v, want both", sawLaunch99, sawLaunch100)
	}
	if !sawVersion {
		t.Error("version banner was not forwarded as a Logged event")
	}

	// Close is idempotent.
	if err := assistant.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestBootExecutorDiesBeforeHealthy(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}

	dir := t.TempDir()
	modelPath := writeFakeModel(t, dir)
	binary := writeFakeServer(t, dir, "echo \"fatal: model load failed\"\nexit 1")

	host, port, closeHealth := healthEndpoint(t, http.StatusServiceUnavailable)
	defer closeHealth()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var lines []string
	_, err := Boot(ctx, BootOptions{
		ModelPath:    modelPath,
		ServerBinary: binary,
		Host:         host,
		Port:         port,
		Logger:       zerolog.Nop(),
	}, func(e BootEvent) {
		if logged, ok := e.(Logged); ok {
			lines = append(lines, logged.Line)
		}
	})

	if !errors.Is(err, ErrExecutorFailed) {
		t.Fatalf("Boot() error = %v, want ErrExecutorFailed", err)
	}

	var sawFatal bool
	for _, line := range lines {
		if strings.Contains(line, "model load failed") {
			sawFatal = true
		}
	}
	if !sawFatal {
		t.Errorf("dying server's output %v was not forwarded", lines)
	}
}

func TestAssistantDelegatesToClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sseBody("pong")))
	}))
	defer server.Close()

	assistant := &Assistant{client: NewClient(server.URL, "m"), exec: &processExecutor{}}

	reply, err := assistant.Reply(context.Background(), "", []model.Message{model.NewUserMessage("ping")}, nil)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply.Content != "pong" {
		t.Errorf("Content = %q, want %q", reply.Content, "pong")
	}
}
