// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// STEP FUNCTIONS
// =============================================================================

// Function names the action a plan step performs. The vocabulary is fixed;
// anything else is carried through verbatim and skipped by the executor.
type Function string

const (
	FunctionSearch     Function = "search"
	FunctionScrapeText Function = "scrape_text"
	FunctionAnswer     Function = "answer"
)

// Known reports whether the function is part of the fixed vocabulary.
func (f Function) Known() bool {
	switch f {
	case FunctionSearch, FunctionScrapeText, FunctionAnswer:
		return true
	default:
		return false
	}
}

// =============================================================================
// STEP
// =============================================================================

// Step is a single model-authored plan step. Inputs are either literal
// strings or $name references to evidence produced by an earlier step.
type Step struct {
	// Evidence is the name this step's output is stored under.
	Evidence string `json:"evidence"`

	// Description is a human-readable summary of the step.
	Description string `json:"description"`

	// Function selects the action: search, scrape_text, or answer.
	Function Function `json:"function"`

	// Inputs are literal values or $name evidence references.
	Inputs []string `json:"inputs"`
}

// Reference returns the evidence name an input refers to, or false when the
// input is a literal.
func Reference(input string) (string, bool) {
	if name, ok := strings.CutPrefix(input, "$"); ok {
		return name, true
	}
	return "", false
}

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the externally visible record of one step's execution. Each
// variant pairs the step's function with the Status of its typed payload.
type Outcome interface {
	isOutcome()

	// Terminal reports whether the outcome can no longer change.
	Terminal() bool
}

// SearchOutcome is the outcome of a search step: a list of result URLs.
type SearchOutcome struct {
	Status Status[[]string]
}

// ScrapeOutcome is the outcome of a scrape_text step: page summaries in the
// order of the step's inputs.
type ScrapeOutcome struct {
	Status Status[[]Summary]
}

// AnswerOutcome is the outcome of an answer step: the synthesized reply.
type AnswerOutcome struct {
	Status Status[*Reply]
}

func (SearchOutcome) isOutcome() {}
func (ScrapeOutcome) isOutcome() {}
func (AnswerOutcome) isOutcome() {}

func (o SearchOutcome) Terminal() bool { return o.Status.Terminal() }
func (o ScrapeOutcome) Terminal() bool { return o.Status.Terminal() }
func (o AnswerOutcome) Terminal() bool { return o.Status.Terminal() }

// =============================================================================
// EVIDENCE OUTPUTS
// =============================================================================

// Output is a committed evidence value, referenceable by later steps.
type Output interface {
	isOutput()
}

// Links is the committed output of a search step.
type Links []string

// Text is the committed output of a scrape_text step.
type Text []Summary

// Answered marks that an answer step completed; it carries no data because
// the reply itself lives in the outcome.
type Answered struct{}

func (Links) isOutput()    {}
func (Text) isOutput()     {}
func (Answered) isOutput() {}

// =============================================================================
// PLAN
// =============================================================================

// Plan is a model-authored step list together with the record of its
// execution. Outcomes holds at most one entry per processed step, in step
// order; only the most recently started entry may be Active.
type Plan struct {
	ID        string
	Reasoning *Reasoning
	Steps     []Step
	Outcomes  []Outcome
}
