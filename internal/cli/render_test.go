// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
	"testing"

	"github.com/hecrj/icebreaker-sub000/internal/model"
	"github.com/hecrj/icebreaker-sub000/internal/plan"
)

func TestReplyPrinterSeparatesReasoning(t *testing.T) {
	var out strings.Builder
	p := newReplyPrinter(&out)

	p.update(model.Reply{}, model.Token{Kind: model.TokenReasoning, Text: "thinking"})
	p.update(model.Reply{}, model.Token{Kind: model.TokenTalking, Text: "answer"})
	p.finish()

	got := out.String()
	if !strings.Contains(got, "thinking") || !strings.Contains(got, "answer") {
		t.Fatalf("output = %q, want both reasoning and answer", got)
	}
	if !strings.Contains(got, "---") {
		t.Errorf("output = %q, want a separator between reasoning and answer", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Errorf("output = %q, want trailing newline", got)
	}
}

func TestPlanRendererStreamsAnswerSuffix(t *testing.T) {
	var out strings.Builder
	r := newPlanRenderer(&out)

	r.render(plan.OutcomeAdded{Index: 0, Outcome: model.AnswerOutcome{Status: model.Active[*model.Reply](nil)}})
	r.render(plan.OutcomeChanged{Index: 0, Outcome: model.AnswerOutcome{
		Status: model.Active(&model.Reply{Content: "Hel"}),
	}})
	r.render(plan.OutcomeChanged{Index: 0, Outcome: model.AnswerOutcome{
		Status: model.Active(&model.Reply{Content: "Hello"}),
	}})
	r.render(plan.OutcomeChanged{Index: 0, Outcome: model.AnswerOutcome{
		Status: model.Done(&model.Reply{Content: "Hello"}),
	}})

	if got := out.String(); !strings.Contains(got, "Hello") || strings.Contains(got, "HelHello") {
		t.Errorf("output = %q, want each character printed once", got)
	}
}

func TestPlanRendererListsSteps(t *testing.T) {
	var out strings.Builder
	r := newPlanRenderer(&out)

	r.render(plan.Designed{Plan: &model.Plan{Steps: []model.Step{
		{Function: model.FunctionSearch, Description: "look it up"},
		{Function: model.FunctionAnswer, Description: "answer it"},
	}}})

	got := out.String()
	if !strings.Contains(got, "1. [search] look it up") {
		t.Errorf("output = %q, want numbered step list", got)
	}
	if !strings.Contains(got, "2. [answer] answer it") {
		t.Errorf("output = %q, want second step", got)
	}
}
