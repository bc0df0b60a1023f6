// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llama

import (
	"context"
	"strings"
	"time"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// =============================================================================
// REPLY AGGREGATOR
// =============================================================================

// replyAggregator folds a token stream into a running Reply. Content and
// reasoning accumulate in separate builders; snapshots carry trimmed copies
// so surrounding whitespace never leaks to callers.
type replyAggregator struct {
	content        strings.Builder
	reasoning      strings.Builder
	reasoningStart time.Time
	duration       time.Duration
}

// add folds one token into the aggregate. The reasoning duration is a live
// estimate: it restarts from zero on the first reasoning token and is
// refreshed on every later one.
func (a *replyAggregator) add(token model.Token) {
	switch token.Kind {
	case model.TokenReasoning:
		if a.reasoningStart.IsZero() {
			a.reasoningStart = time.Now()
		}
		a.reasoning.WriteString(token.Text)
		a.duration = time.Since(a.reasoningStart)
	case model.TokenTalking:
		a.content.WriteString(token.Text)
	}
}

// snapshot builds the externally visible Reply. lastToken is nil on the
// final snapshot.
func (a *replyAggregator) snapshot(lastToken *string) model.Reply {
	reply := model.Reply{
		Content:   strings.TrimSpace(a.content.String()),
		LastToken: lastToken,
	}

	if a.reasoning.Len() > 0 {
		reply.Reasoning = &model.Reasoning{
			Content:  strings.TrimSpace(a.reasoning.String()),
			Duration: a.duration,
		}
	}

	return reply
}

// Reply streams a completion and aggregates it into a Reply. onUpdate, when
// non-nil, receives a (snapshot, token) pair for every token. The returned
// reply is final: its LastToken is nil.
func (c *Client) Reply(ctx context.Context, system string, messages []model.Message, onUpdate func(model.Reply, model.Token)) (*model.Reply, error) {
	var agg replyAggregator

	err := c.Complete(ctx, system, messages, func(token model.Token) {
		agg.add(token)

		if onUpdate != nil {
			text := token.Text
			onUpdate(agg.snapshot(&text), token)
		}
	})
	if err != nil {
		return nil, err
	}

	reply := agg.snapshot(nil)
	return &reply, nil
}
