// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "testing"

func TestReference(t *testing.T) {
	tests := []struct {
		input string
		name  string
		ok    bool
	}{
		{"$links", "links", true},
		{"$", "", true},
		{"links", "", false},
		{"https://example.com", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		name, ok := Reference(tt.input)
		if name != tt.name || ok != tt.ok {
			t.Errorf("Reference(%q) = (%q, %v), want (%q, %v)", tt.input, name, ok, tt.name, tt.ok)
		}
	}
}

func TestFunctionKnown(t *testing.T) {
	for _, f := range []Function{FunctionSearch, FunctionScrapeText, FunctionAnswer} {
		if !f.Known() {
			t.Errorf("Function(%q).Known() = false, want true", f)
		}
	}
	if Function("browse").Known() {
		t.Error(`Function("browse").Known() = true, want false`)
	}
}

func TestOutcomeTerminal(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    bool
	}{
		{"active search", SearchOutcome{Status: Active[[]string](nil)}, false},
		{"done search", SearchOutcome{Status: Done([]string{"a"})}, true},
		{"errored scrape", ScrapeOutcome{Status: Errored[[]Summary]("boom")}, true},
		{"active answer", AnswerOutcome{Status: Active[*Reply](nil)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}
