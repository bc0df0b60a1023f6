// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// summarizeSystemPrompt constrains the nested completion to condensation.
const summarizeSystemPrompt = "You are a research assistant. You are given a " +
	"search query and the text content of a web page. Extract and condense " +
	"the information from the page that is relevant to the query. Reply with " +
	"plain text only. If the page contains nothing relevant, say so briefly."

// =============================================================================
// SCRAPER
// =============================================================================

// Scraper fetches a page, extracts its readable text, and condenses it with
// a nested completion call against the assistant.
type Scraper struct {
	// UserAgent is sent with every page request.
	UserAgent string

	// MaxChars bounds how much extracted text is handed to the model.
	MaxChars int

	httpClient *http.Client
	logger     zerolog.Logger
}

// NewScraper creates a scraper with sane defaults.
func NewScraper(logger zerolog.Logger) *Scraper {
	return &Scraper{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MaxChars:  12000,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Summarize fetches pageURL and returns a summary of its content focused on
// the query. The page text comes from readability extraction, falling back
// to a crude tag strip for pages readability cannot parse.
func (s *Scraper) Summarize(ctx context.Context, assistant Assistant, query, pageURL string) (model.Summary, error) {
	text, err := s.fetchText(ctx, pageURL)
	if err != nil {
		return model.Summary{}, err
	}

	if len(text) > s.MaxChars {
		text = text[:s.MaxChars]
	}

	prompt := fmt.Sprintf("Query: %s\n\nPage (%s):\n%s", query, pageURL, text)

	reply, err := assistant.Reply(ctx, summarizeSystemPrompt, []model.Message{model.NewUserMessage(prompt)}, nil)
	if err != nil {
		return model.Summary{}, fmt.Errorf("summarize %s: %w", pageURL, err)
	}

	return model.Summary{URL: pageURL, Content: reply.Content}, nil
}

// fetchText downloads the page and extracts its main readable text.
func (s *Scraper) fetchText(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: %d %s", pageURL, resp.StatusCode, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(string(raw)), parsed)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		s.logger.Debug().Str("url", pageURL).Msg("readability extraction failed, stripping tags")
		return cleanHTML(string(raw)), nil
	}

	return strings.TrimSpace(article.TextContent), nil
}
