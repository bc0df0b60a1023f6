// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package plan turns a user query into a multi-step research plan and
// executes it against the local assistant and the web.
//
// The package drives a ReAct-style loop: the model designs an ordered
// list of steps (search, scrape_text, answer), the executor runs them
// in a single pass, and evidence collected by earlier steps flows to
// later ones through $name references.
//
// # Key Types
//
//   - Designer: Prompts the model for a fenced-JSON step list, with retries
//   - Executor: Runs the steps in order against search, scrape, and answer
//   - Event: Progress notifications (Designing, Designed, OutcomeAdded,
//     OutcomeChanged) for live rendering
//
// # Usage
//
// Execute a plan for the latest user query in a conversation:
//
//	executor := plan.NewExecutor(assistant, searcher, scraper, logger)
//	p, err := executor.Run(ctx, items, func(event plan.Event) {
//	    render(event)
//	})
//
// # Failure Policy
//
// Search and answer failures abort the run. Individual scrape sub-tasks
// that fail are logged and dropped; the step commits whatever summaries
// it did collect.
package plan
