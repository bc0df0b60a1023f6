// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import "github.com/hecrj/icebreaker-sub000/internal/model"

// =============================================================================
// PLAN EVENTS
// =============================================================================

// Event is a progress notification emitted while a plan is designed and
// executed. Callers receive events synchronously, in order.
type Event interface {
	isEvent()
}

// Designing carries the model's live reasoning while the step list is
// still being generated.
type Designing struct {
	Reasoning string
}

// Designed announces the finished step list, before execution begins.
type Designed struct {
	Plan *model.Plan
}

// OutcomeAdded announces a new outcome appended for the step that just
// started executing. Index is its position in Plan.Outcomes.
type OutcomeAdded struct {
	Index   int
	Outcome model.Outcome
}

// OutcomeChanged announces an in-place update of an existing outcome,
// either a progress refresh or a terminal transition.
type OutcomeChanged struct {
	Index   int
	Outcome model.Outcome
}

func (Designing) isEvent()      {}
func (Designed) isEvent()       {}
func (OutcomeAdded) isEvent()   {}
func (OutcomeChanged) isEvent() {}
