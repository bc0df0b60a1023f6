// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llama supervises a local llama.cpp inference server and decodes
// its streaming completion protocol. It owns the server lifecycle (native
// process or container), the health check, and the typed token stream.
package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client and supervisor errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeTransport
	ErrTypeDecode
	ErrTypeNoExecutor
	ErrTypeExecutorFailed
	ErrTypeDocker
	ErrTypeIO
)

// Error represents an error from the llama client or supervisor.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows typed errors to match their sentinel by category.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Type == other.Type
	}
	return false
}

// Sentinel errors for easy checking.
var (
	// ErrNoExecutorAvailable means neither a server binary nor a container
	// engine was found on the host.
	ErrNoExecutorAvailable = &Error{Type: ErrTypeNoExecutor, Message: "no llama-server binary or container engine available"}

	// ErrExecutorFailed means the server exited before becoming healthy.
	ErrExecutorFailed = &Error{Type: ErrTypeExecutorFailed, Message: "inference server exited before becoming healthy"}
)

// decodeError wraps a malformed stream line; it aborts the whole call.
func decodeError(cause error) *Error {
	return &Error{Type: ErrTypeDecode, Message: "malformed completion stream", Cause: cause}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one running inference server. Construct it once and pass
// it by reference; it is safe for concurrent use.
type Client struct {
	baseURL string
	modelID string

	// httpClient serves short requests (health) with a fixed timeout.
	httpClient *http.Client

	// streamClient has no timeout; streaming calls are bounded by context.
	streamClient *http.Client
}

// NewClient creates a client for the server listening at baseURL
// (e.g. "http://localhost:8080"). modelID is sent in completion requests.
func NewClient(baseURL, modelID string) *Client {
	return &Client{
		baseURL:      baseURL,
		modelID:      modelID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}
}

// Model returns the model identifier used for completion requests.
func (c *Client) Model() string {
	return c.modelID
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// Healthy probes the server's health endpoint. Any 2xx response counts.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return &Error{Type: ErrTypeTransport, Message: "failed to create health request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Type: ErrTypeTransport, Message: "health check failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Type: ErrTypeTransport, Message: "unexpected health status: " + resp.Status}
	}

	return nil
}

// =============================================================================
// STREAMING COMPLETION
// =============================================================================

// completionRequest is the chat completion request body.
type completionRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	Stream      bool            `json:"stream"`
	CachePrompt bool            `json:"cache_prompt"`
}

// completionChunk is one decoded streaming envelope.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete sends a streaming chat completion and invokes onToken for every
// decoded token, in response-chunk arrival order. The system prompt is
// prepended to messages. A malformed stream line aborts the whole call with
// a decode error; there is no resynchronization past it.
func (c *Client) Complete(ctx context.Context, system string, messages []model.Message, onToken func(model.Token)) error {
	all := make([]model.Message, 0, len(messages)+1)
	if system != "" {
		all = append(all, model.NewSystemMessage(system))
	}
	all = append(all, messages...)

	body, err := json.Marshal(completionRequest{
		Model:       c.modelID,
		Messages:    all,
		Stream:      true,
		CachePrompt: true,
	})
	if err != nil {
		return &Error{Type: ErrTypeDecode, Message: "failed to marshal completion request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &Error{Type: ErrTypeTransport, Message: "failed to create completion request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &Error{Type: ErrTypeTransport, Message: "completion request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Type: ErrTypeTransport, Message: fmt.Sprintf("completion request failed: %s", resp.Status)}
	}

	return decodeStream(ctx, resp.Body, onToken)
}
