// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// echoAssistant returns a fixed summary and records the prompt it saw.
type echoAssistant struct {
	content    string
	lastSystem string
	lastPrompt string
}

func (a *echoAssistant) Reply(ctx context.Context, system string, messages []model.Message, onUpdate func(model.Reply, model.Token)) (*model.Reply, error) {
	a.lastSystem = system
	if len(messages) > 0 {
		a.lastPrompt = messages[len(messages)-1].Content
	}
	return &model.Reply{Content: a.content}, nil
}

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Go Concurrency</title></head>
<body>
<article>
<h1>Go Concurrency</h1>
<p>Goroutines are lightweight threads managed by the Go runtime. They
make it practical to structure programs as independently executing
functions.</p>
<p>Channels connect goroutines, letting one send values to another with
synchronization built in.</p>
</article>
</body>
</html>`

func TestSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	assistant := &echoAssistant{content: "Goroutines are cheap threads; channels connect them."}
	s := NewScraper(zerolog.Nop())

	summary, err := s.Summarize(context.Background(), assistant, "what are goroutines?", server.URL)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if summary.URL != server.URL {
		t.Errorf("Summary.URL = %q, want %q", summary.URL, server.URL)
	}
	if summary.Content != assistant.content {
		t.Errorf("Summary.Content = %q, want the nested completion's reply", summary.Content)
	}

	if !strings.Contains(assistant.lastPrompt, "what are goroutines?") {
		t.Error("prompt is missing the query")
	}
	if !strings.Contains(assistant.lastPrompt, "Goroutines are lightweight") {
		t.Error("prompt is missing the extracted page text")
	}
	if assistant.lastSystem == "" {
		t.Error("nested completion was sent without a system prompt")
	}
}

func TestSummarizeTruncatesLongPages(t *testing.T) {
	long := "<html><body><article><p>" + strings.Repeat("word ", 10000) + "</p></article></body></html>"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(long))
	}))
	defer server.Close()

	assistant := &echoAssistant{content: "summary"}
	s := NewScraper(zerolog.Nop())
	s.MaxChars = 500

	if _, err := s.Summarize(context.Background(), assistant, "q", server.URL); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	// Prompt holds query + URL + truncated text; it must stay near the cap.
	if len(assistant.lastPrompt) > 1000 {
		t.Errorf("prompt length = %d, want text truncated to ~500 chars", len(assistant.lastPrompt))
	}
}

func TestSummarizeFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := NewScraper(zerolog.Nop())
	if _, err := s.Summarize(context.Background(), &echoAssistant{}, "q", server.URL); err == nil {
		t.Error("Summarize() accepted a 404 page")
	}
}
