// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// Stream line framing. Significant lines carry a "data: " prefix and the
// stream ends at the literal "data: [DONE]" sentinel.
var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")
)

// =============================================================================
// STREAM DECODER
// =============================================================================

// decodeStream reassembles the chunked response body into lines, parses
// each "data: " envelope, and emits classified tokens. The bufio reader
// retains an unterminated trailing partial line across reads, so the token
// sequence does not depend on how the transport split the bytes.
func decodeStream(ctx context.Context, body io.Reader, onToken func(model.Token)) error {
	reader := bufio.NewReader(body)
	var classify classifier

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return &Error{Type: ErrTypeTransport, Message: "completion stream read failed", Cause: err}
		}

		atEOF := err == io.EOF
		line = bytes.TrimRight(line, "\r\n")

		if len(line) > 0 {
			data, ok := bytes.CutPrefix(line, dataPrefix)
			if ok {
				if bytes.Equal(data, doneSentinel) {
					return nil
				}

				var chunk completionChunk
				if err := json.Unmarshal(data, &chunk); err != nil {
					return decodeError(err)
				}

				if len(chunk.Choices) > 0 {
					for _, token := range classify.split(chunk.Choices[0].Delta.Content) {
						onToken(token)
					}
				}
			}
		}

		if atEOF {
			return nil
		}
	}
}

// =============================================================================
// REASONING CLASSIFIER
// =============================================================================

// In-band reasoning markers. Marker text is stripped from emitted tokens.
const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

type classifierState int

const (
	stateUnclassified classifierState = iota
	stateReasoning
	stateTalking
)

// classifier is the tri-state reasoning/talking classifier. It flips to
// reasoning on the first <think> marker and to talking on </think>; the
// decision is a pure function of arrival order and marker position.
type classifier struct {
	state classifierState
}

// split cuts one content fragment around any markers it contains and
// returns the resulting tokens in order. Fragments seen before any marker
// are emitted as talking.
func (c *classifier) split(fragment string) []model.Token {
	var tokens []model.Token

	for fragment != "" {
		open := strings.Index(fragment, thinkOpen)
		closing := strings.Index(fragment, thinkClose)

		// Whichever marker occurs first decides the cut.
		marker := -1
		markerLen := 0
		next := c.state

		switch {
		case open >= 0 && (closing < 0 || open < closing):
			marker, markerLen, next = open, len(thinkOpen), stateReasoning
		case closing >= 0:
			marker, markerLen, next = closing, len(thinkClose), stateTalking
		}

		if marker < 0 {
			tokens = c.emit(tokens, fragment)
			break
		}

		tokens = c.emit(tokens, fragment[:marker])
		c.state = next
		fragment = fragment[marker+markerLen:]
	}

	return tokens
}

// emit appends a token for the segment under the current state, skipping
// empty segments.
func (c *classifier) emit(tokens []model.Token, segment string) []model.Token {
	if segment == "" {
		return tokens
	}

	kind := model.TokenTalking
	if c.state == stateReasoning {
		kind = model.TokenReasoning
	}

	return append(tokens, model.Token{Kind: kind, Text: segment})
}
