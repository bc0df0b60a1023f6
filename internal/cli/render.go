// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/llama"
	"github.com/hecrj/icebreaker-sub000/internal/model"
	"github.com/hecrj/icebreaker-sub000/internal/plan"
)

// =============================================================================
// BOOT PROGRESS
// =============================================================================

// bootRenderer draws boot progress on one reusable line and forwards
// server log output to the debug log.
type bootRenderer struct {
	out    io.Writer
	logger zerolog.Logger
	drawn  bool
}

func newBootRenderer(out io.Writer, logger zerolog.Logger) *bootRenderer {
	return &bootRenderer{out: out, logger: logger}
}

func (r *bootRenderer) render(event llama.BootEvent) {
	switch e := event.(type) {
	case llama.Progressed:
		fmt.Fprintf(r.out, "\r\033[K%s... %d%%", e.Stage, e.Percent)
		r.drawn = true
	case llama.Logged:
		r.logger.Debug().Str("server", e.Line).Msg("boot log")
	}
}

// finish terminates the progress line, if one was drawn.
func (r *bootRenderer) finish() {
	if r.drawn {
		fmt.Fprint(r.out, "\r\033[K")
	}
}

// =============================================================================
// REPLY STREAMING
// =============================================================================

// replyPrinter streams a reply's tokens to out, marking the reasoning
// block so it reads apart from the answer.
type replyPrinter struct {
	out  io.Writer
	mode model.TokenKind
	open bool
}

func newReplyPrinter(out io.Writer) *replyPrinter {
	return &replyPrinter{out: out, mode: model.TokenTalking}
}

// update is an onUpdate callback for Assistant.Reply.
func (p *replyPrinter) update(_ model.Reply, token model.Token) {
	if token.Kind != p.mode {
		if p.mode == model.TokenReasoning {
			fmt.Fprint(p.out, "\n---\n")
		} else if p.open {
			fmt.Fprintln(p.out)
		}
		p.mode = token.Kind
	}
	fmt.Fprint(p.out, token.Text)
	p.open = true
}

// finish closes the stream with a newline when anything was printed.
func (p *replyPrinter) finish() {
	if p.open {
		fmt.Fprintln(p.out)
	}
}

// =============================================================================
// PLAN PROGRESS
// =============================================================================

// planRenderer prints plan design and execution progress as it happens.
type planRenderer struct {
	out       io.Writer
	thinking  bool
	announced map[int]bool
	printed   map[int]int
}

func newPlanRenderer(out io.Writer) *planRenderer {
	return &planRenderer{
		out:       out,
		announced: make(map[int]bool),
		printed:   make(map[int]int),
	}
}

// render is an emit callback for plan.Executor.Run.
func (r *planRenderer) render(event plan.Event) {
	switch e := event.(type) {
	case plan.Designing:
		if !r.thinking {
			fmt.Fprint(r.out, "designing plan...")
			r.thinking = true
		}

	case plan.Designed:
		if r.thinking {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintln(r.out, "plan:")
		for i, step := range e.Plan.Steps {
			fmt.Fprintf(r.out, "  %d. [%s] %s\n", i+1, step.Function, step.Description)
		}

	case plan.OutcomeAdded:
		r.announce(e.Index, e.Outcome)

	case plan.OutcomeChanged:
		r.progress(e.Index, e.Outcome)
	}
}

func (r *planRenderer) announce(idx int, outcome model.Outcome) {
	if r.announced[idx] {
		return
	}
	r.announced[idx] = true

	switch outcome.(type) {
	case model.SearchOutcome:
		fmt.Fprint(r.out, "searching...")
	case model.ScrapeOutcome:
		fmt.Fprint(r.out, "reading pages...")
	case model.AnswerOutcome:
		fmt.Fprintln(r.out)
	}
}

func (r *planRenderer) progress(idx int, outcome model.Outcome) {
	switch o := outcome.(type) {
	case model.SearchOutcome:
		if o.Terminal() {
			r.terminalLine(o.Status.Kind, fmt.Sprintf("%d links", len(o.Status.Value)), o.Status.Message)
		}

	case model.ScrapeOutcome:
		if o.Terminal() {
			r.terminalLine(o.Status.Kind, fmt.Sprintf("%d pages summarized", len(o.Status.Value)), o.Status.Message)
		}

	case model.AnswerOutcome:
		// Stream only the unseen suffix of the growing answer.
		if o.Status.Value != nil {
			content := o.Status.Value.Content
			if done := r.printed[idx]; len(content) > done {
				fmt.Fprint(r.out, content[done:])
				r.printed[idx] = len(content)
			}
		}
		if o.Terminal() {
			if o.Status.Kind == model.StatusErrored {
				fmt.Fprintf(r.out, "\nanswer failed: %s\n", o.Status.Message)
			} else {
				fmt.Fprintln(r.out)
			}
		}
	}
}

func (r *planRenderer) terminalLine(kind model.StatusKind, done, message string) {
	if kind == model.StatusErrored {
		fmt.Fprintf(r.out, " failed: %s\n", message)
		return
	}
	fmt.Fprintf(r.out, " %s\n", strings.TrimSpace(done))
}
