// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// maxDesignAttempts is the total number of completion calls the designer
// makes before giving up on an unparseable model.
const maxDesignAttempts = 4

// designSystemPrompt constrains the model to the three executable
// functions and the $name evidence convention.
const designSystemPrompt = `You are a research planner. Given a user query, design a plan: an ordered list of steps that gathers evidence from the web and answers the query.

Each step calls exactly one function:

- "search": takes a search query string as its single input and collects a list of result links as evidence.
- "scrape_text": takes links as inputs and collects the relevant text content of those pages as evidence.
- "answer": takes collected evidence as inputs and writes the final answer for the user.

Each step stores its result under the evidence name you give it. Later steps reference earlier evidence by prefixing the name with a dollar sign, e.g. "$links". Inputs without the prefix are literal values.

Reply with a JSON array wrapped in a fenced code block. Each element has the fields "evidence", "description", "function", and "inputs". Example:

` + "```json" + `
[
  {
    "evidence": "links",
    "description": "Search the web for recent coverage",
    "function": "search",
    "inputs": ["latest news about the topic"]
  },
  {
    "evidence": "pages",
    "description": "Read the pages behind the results",
    "function": "scrape_text",
    "inputs": ["$links"]
  },
  {
    "evidence": "answer",
    "description": "Answer the query from the collected text",
    "function": "answer",
    "inputs": ["$pages"]
  }
]
` + "```" + `

The plan must end with an "answer" step. Use only the three functions listed above.`

// =============================================================================
// DESIGNER
// =============================================================================

// Designer asks the assistant to produce a step list for a query. The
// model's reply is expected to carry a fenced JSON array of steps;
// replies that fail to parse are retried up to maxDesignAttempts total
// calls.
type Designer struct {
	assistant Assistant
	logger    zerolog.Logger
}

// NewDesigner creates a designer backed by the given assistant.
func NewDesigner(assistant Assistant, logger zerolog.Logger) *Designer {
	return &Designer{assistant: assistant, logger: logger}
}

// Design produces a plan for the query. While the model is thinking,
// Designing events stream its reasoning; the returned plan carries the
// final reasoning and the parsed steps, with no outcomes yet.
func (d *Designer) Design(ctx context.Context, query string, emit func(Event)) (*model.Plan, error) {
	messages := []model.Message{model.NewUserMessage(query)}

	var lastErr error
	for attempt := 1; attempt <= maxDesignAttempts; attempt++ {
		reply, err := d.assistant.Reply(ctx, designSystemPrompt, messages, func(snapshot model.Reply, _ model.Token) {
			if emit != nil && snapshot.Reasoning != nil {
				emit(Designing{Reasoning: snapshot.Reasoning.Content})
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			d.logger.Warn().Err(err).Int("attempt", attempt).Msg("plan design completion failed")
			continue
		}

		steps, err := parseSteps(reply.Content)
		if err != nil {
			lastErr = err
			d.logger.Warn().Err(err).Int("attempt", attempt).Msg("plan design reply did not parse")
			continue
		}

		return &model.Plan{
			ID:        uuid.New().String(),
			Reasoning: reply.Reasoning,
			Steps:     steps,
		}, nil
	}

	return nil, fmt.Errorf("plan design failed after %d attempts: %w", maxDesignAttempts, lastErr)
}

// parseSteps decodes the step array from a model reply. The JSON is
// taken from the first fenced code block when one exists, otherwise
// from the whole trimmed reply.
func parseSteps(content string) ([]model.Step, error) {
	payload := extractFenced(content)

	var steps []model.Step
	if err := json.Unmarshal([]byte(payload), &steps); err != nil {
		return nil, fmt.Errorf("invalid step list: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("empty step list")
	}
	return steps, nil
}

// extractFenced returns the content of the first ``` fence pair,
// stripping an optional language tag. Without a complete fence the
// whole trimmed reply is returned.
func extractFenced(content string) string {
	open := strings.Index(content, "```")
	if open < 0 {
		return strings.TrimSpace(content)
	}

	rest := content[open+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(content)
	}

	inner := strings.TrimSpace(rest[:end])
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}
