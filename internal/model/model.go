// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the assistant runtime:
// chat history items, streamed tokens, replies, and research plans.
package model

import (
	"strings"
	"time"
)

// =============================================================================
// ROLE AND MESSAGE
// =============================================================================

// Role represents the sender of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single wire-level chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// =============================================================================
// TOKEN
// =============================================================================

// TokenKind classifies one streamed fragment.
type TokenKind int

const (
	// TokenTalking is regular response text.
	TokenTalking TokenKind = iota

	// TokenReasoning is text produced inside a <think> block.
	TokenReasoning
)

// String returns the string representation of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenReasoning:
		return "Reasoning"
	case TokenTalking:
		return "Talking"
	default:
		return "Unknown"
	}
}

// Token is one incremental decoded unit of generated text.
type Token struct {
	Kind TokenKind
	Text string
}

// =============================================================================
// REPLY
// =============================================================================

// Reasoning holds the accumulated <think> text of a reply and how long the
// model has spent producing it. Duration is a live estimate while streaming.
type Reasoning struct {
	Content  string
	Duration time.Duration
}

// Reply is the result of one streaming completion call. It is mutated only
// by the aggregator during the call; afterwards it is a plain snapshot.
type Reply struct {
	Reasoning *Reasoning
	Content   string

	// LastToken is the raw text of the most recent token while streaming.
	// It is nil on the final reply.
	LastToken *string
}

// =============================================================================
// HISTORY ITEMS
// =============================================================================

// Item is one entry of an in-memory chat history: a user message, an
// assistant reply, or an executed research plan.
type Item interface {
	isItem()
}

// UserItem is a message typed by the user.
type UserItem struct {
	Text string
}

// ReplyItem is a completed assistant reply.
type ReplyItem struct {
	Reply *Reply
}

// PlanItem is an executed research plan.
type PlanItem struct {
	Plan *Plan
}

func (UserItem) isItem()  {}
func (ReplyItem) isItem() {}
func (PlanItem) isItem()  {}

// LastQuery returns the text of the most recent user item in the history.
func LastQuery(items []Item) (string, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if user, ok := items[i].(UserItem); ok {
			return user.Text, true
		}
	}
	return "", false
}

// Messages renders a history as wire-level chat messages. Plan items render
// their answer reply when one completed, otherwise a bullet summary of the
// plan's steps so later turns keep the context.
func Messages(items []Item) []Message {
	messages := make([]Message, 0, len(items))

	for _, item := range items {
		switch item := item.(type) {
		case UserItem:
			messages = append(messages, NewUserMessage(item.Text))
		case ReplyItem:
			messages = append(messages, NewAssistantMessage(item.Reply.Content))
		case PlanItem:
			messages = append(messages, NewAssistantMessage(item.Plan.Transcript()))
		}
	}

	return messages
}

// Transcript renders a plan as assistant-visible text: the answer content if
// the plan produced one, otherwise the list of step descriptions.
func (p *Plan) Transcript() string {
	for _, outcome := range p.Outcomes {
		if answer, ok := outcome.(AnswerOutcome); ok && answer.Status.Kind == StatusDone {
			return answer.Status.Value.Content
		}
	}

	var b strings.Builder
	for _, step := range p.Steps {
		b.WriteString("- ")
		b.WriteString(step.Description)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the extracted and condensed text of one scraped page.
type Summary struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}
