// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// maxSearchResults caps how many links one search step feeds into the
// rest of the plan.
const maxSearchResults = 5

// answerPreamble opens the synthetic system prompt handed to the final
// answer completion.
const answerPreamble = "You are a helpful assistant. You researched a user query by executing the steps below. Answer the query using the collected evidence, citing source URLs where relevant."

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Assistant is the completion surface plans run against.
// *llama.Assistant satisfies it.
type Assistant interface {
	Reply(ctx context.Context, system string, messages []model.Message, onUpdate func(model.Reply, model.Token)) (*model.Reply, error)
}

// Searcher turns a query into result URLs. *web.Searcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Scraper condenses one page into a query-focused summary.
type Scraper interface {
	Summarize(ctx context.Context, assistant Assistant, query, pageURL string) (model.Summary, error)
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor designs and runs plans. Steps execute in order, in a single
// pass; search and answer failures abort the run, while failed scrape
// sub-tasks are logged and dropped.
type Executor struct {
	assistant Assistant
	searcher  Searcher
	scraper   Scraper
	designer  *Designer
	logger    zerolog.Logger
}

// NewExecutor wires an executor to its collaborators.
func NewExecutor(assistant Assistant, searcher Searcher, scraper Scraper, logger zerolog.Logger) *Executor {
	return &Executor{
		assistant: assistant,
		searcher:  searcher,
		scraper:   scraper,
		designer:  NewDesigner(assistant, logger),
		logger:    logger,
	}
}

// Run designs a plan for the latest user query in history and executes
// it. When history holds no user query the call is a no-op returning
// (nil, nil). The returned plan carries whatever outcomes were recorded,
// even when an error aborted the run partway.
func (e *Executor) Run(ctx context.Context, history []model.Item, emit func(Event)) (*model.Plan, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	query, ok := model.LastQuery(history)
	if !ok {
		return nil, nil
	}

	plan, err := e.designer.Design(ctx, query, emit)
	if err != nil {
		return nil, err
	}
	emit(Designed{Plan: plan})

	run := &planRun{plan: plan, evidence: make(map[string]model.Output), emit: emit}

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		switch step.Function {
		case model.FunctionSearch:
			if err := e.runSearch(ctx, run, step); err != nil {
				return plan, err
			}
		case model.FunctionScrapeText:
			if err := e.runScrape(ctx, run, step, query); err != nil {
				return plan, err
			}
		case model.FunctionAnswer:
			if err := e.runAnswer(ctx, run, step, plan.Steps[:i], query); err != nil {
				return plan, err
			}
		default:
			e.logger.Warn().
				Str("function", string(step.Function)).
				Str("step", step.Description).
				Msg("unknown plan function, skipping step")
		}
	}

	return plan, nil
}

// runSearch executes one search step. The first input is the literal
// query; results are capped at maxSearchResults. Failure is fatal to
// the plan.
func (e *Executor) runSearch(ctx context.Context, run *planRun, step model.Step) error {
	if len(step.Inputs) == 0 {
		return fmt.Errorf("search step %q has no query input", step.Evidence)
	}

	idx := run.push(model.SearchOutcome{Status: model.Active[[]string](nil)})

	links, err := e.searcher.Search(ctx, step.Inputs[0])
	if err != nil {
		run.set(idx, model.SearchOutcome{Status: model.Errored[[]string](err.Error())})
		return fmt.Errorf("search %q: %w", step.Inputs[0], err)
	}
	if len(links) > maxSearchResults {
		links = links[:maxSearchResults]
	}

	run.plan.Outcomes[idx] = model.SearchOutcome{Status: model.Active[[]string](links)}
	run.commit(idx, step.Evidence)
	return nil
}

// runScrape executes one scrape_text step: the inputs resolve to a URL
// list, each URL is summarized concurrently, and results land in the
// slot matching their input position regardless of completion order.
// Sub-task failures are logged and dropped.
func (e *Executor) runScrape(ctx context.Context, run *planRun, step model.Step, query string) error {
	urls := run.resolveURLs(step, e.logger)

	idx := run.push(model.ScrapeOutcome{Status: model.Active[[]model.Summary](nil)})

	type result struct {
		slot    int
		summary model.Summary
		err     error
	}

	results := make(chan result, len(urls))
	for i, pageURL := range urls {
		go func(slot int, pageURL string) {
			summary, err := e.scraper.Summarize(ctx, e.assistant, query, pageURL)
			results <- result{slot: slot, summary: summary, err: err}
		}(i, pageURL)
	}

	slots := make([]*model.Summary, len(urls))
	for range urls {
		res := <-results
		if res.err != nil {
			e.logger.Warn().Err(res.err).Str("url", urls[res.slot]).Msg("scrape failed, dropping page")
		} else {
			summary := res.summary
			slots[res.slot] = &summary
		}
		run.set(idx, model.ScrapeOutcome{Status: model.Active[[]model.Summary](collect(slots))})
	}

	if err := ctx.Err(); err != nil {
		run.set(idx, model.ScrapeOutcome{Status: model.Errored[[]model.Summary](err.Error())})
		return err
	}

	run.plan.Outcomes[idx] = model.ScrapeOutcome{Status: model.Active[[]model.Summary](collect(slots))}
	run.commit(idx, step.Evidence)
	return nil
}

// runAnswer executes the final answer step: a synthetic system prompt
// carries the prior step descriptions and the referenced text evidence,
// and the user's original query is asked against it. Failure is fatal
// to the plan.
func (e *Executor) runAnswer(ctx context.Context, run *planRun, step model.Step, prior []model.Step, query string) error {
	var system strings.Builder
	system.WriteString(answerPreamble)
	system.WriteString("\n\nSteps executed:\n")
	for _, s := range prior {
		system.WriteString("- ")
		system.WriteString(s.Description)
		system.WriteString("\n")
	}

	system.WriteString("\nCollected evidence:\n")
	for _, input := range step.Inputs {
		name, ok := model.Reference(input)
		if !ok {
			continue
		}
		for _, summary := range run.texts(name) {
			system.WriteString("\n## ")
			system.WriteString(summary.URL)
			system.WriteString("\n")
			system.WriteString(summary.Content)
			system.WriteString("\n")
		}
	}

	idx := run.push(model.AnswerOutcome{Status: model.Active[*model.Reply](nil)})

	reply, err := e.assistant.Reply(ctx, system.String(), []model.Message{model.NewUserMessage(query)}, func(snapshot model.Reply, _ model.Token) {
		live := snapshot
		run.set(idx, model.AnswerOutcome{Status: model.Active[*model.Reply](&live)})
	})
	if err != nil {
		run.set(idx, model.AnswerOutcome{Status: model.Errored[*model.Reply](err.Error())})
		return fmt.Errorf("answer step %q: %w", step.Evidence, err)
	}

	run.plan.Outcomes[idx] = model.AnswerOutcome{Status: model.Active[*model.Reply](reply)}
	run.commit(idx, step.Evidence)
	return nil
}

// =============================================================================
// RUN STATE
// =============================================================================

// planRun tracks the mutable state of one execution: the outcome list
// and the committed evidence store.
type planRun struct {
	plan     *model.Plan
	evidence map[string]model.Output
	emit     func(Event)
}

// push appends a fresh outcome and returns its index.
func (r *planRun) push(outcome model.Outcome) int {
	r.plan.Outcomes = append(r.plan.Outcomes, outcome)
	idx := len(r.plan.Outcomes) - 1
	r.emit(OutcomeAdded{Index: idx, Outcome: outcome})
	return idx
}

// set replaces the outcome at idx in place and announces the change.
func (r *planRun) set(idx int, outcome model.Outcome) {
	r.plan.Outcomes[idx] = outcome
	r.emit(OutcomeChanged{Index: idx, Outcome: outcome})
}

// commit converts the Active outcome at idx into evidence stored under
// name and marks it Done. When the outcome is already terminal the call
// is a strict no-op: no mutation, no event.
func (r *planRun) commit(idx int, name string) {
	switch outcome := r.plan.Outcomes[idx].(type) {
	case model.SearchOutcome:
		if outcome.Status.Kind != model.StatusActive {
			return
		}
		r.evidence[name] = model.Links(outcome.Status.Value)
		r.set(idx, model.SearchOutcome{Status: model.Done(outcome.Status.Value)})
	case model.ScrapeOutcome:
		if outcome.Status.Kind != model.StatusActive {
			return
		}
		r.evidence[name] = model.Text(outcome.Status.Value)
		r.set(idx, model.ScrapeOutcome{Status: model.Done(outcome.Status.Value)})
	case model.AnswerOutcome:
		if outcome.Status.Kind != model.StatusActive {
			return
		}
		r.evidence[name] = model.Answered{}
		r.set(idx, model.AnswerOutcome{Status: model.Done(outcome.Status.Value)})
	}
}

// links resolves committed search evidence; anything else is empty.
func (r *planRun) links(name string) []string {
	if out, ok := r.evidence[name].(model.Links); ok {
		return []string(out)
	}
	return nil
}

// texts resolves committed scrape evidence; anything else is empty.
func (r *planRun) texts(name string) []model.Summary {
	if out, ok := r.evidence[name].(model.Text); ok {
		return []model.Summary(out)
	}
	return nil
}

// resolveURLs expands a scrape step's inputs into a flat URL list.
// $name references resolve against committed evidence (missing or
// uncommitted names contribute nothing); literals must parse as
// absolute URLs or they are logged and skipped.
func (r *planRun) resolveURLs(step model.Step, logger zerolog.Logger) []string {
	var urls []string
	for _, input := range step.Inputs {
		if name, ok := model.Reference(input); ok {
			urls = append(urls, r.links(name)...)
			continue
		}

		parsed, err := url.Parse(input)
		if err != nil || parsed.Scheme == "" {
			logger.Warn().Str("input", input).Msg("scrape input is not a URL, skipping")
			continue
		}
		urls = append(urls, input)
	}
	return urls
}

// collect flattens the slot array in input order, skipping slots whose
// sub-task has not finished or failed.
func collect(slots []*model.Summary) []model.Summary {
	var summaries []model.Summary
	for _, s := range slots {
		if s != nil {
			summaries = append(summaries, *s)
		}
	}
	return summaries
}
