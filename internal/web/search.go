// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package web is the plan executor's window on the outside world: keyless
// DuckDuckGo HTML search and page summarization (readability extraction
// followed by a nested completion call).
package web

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// Assistant is the completion surface the collaborator needs for nested
// summarization calls. *llama.Assistant satisfies it.
type Assistant interface {
	Reply(ctx context.Context, system string, messages []model.Message, onUpdate func(model.Reply, model.Token)) (*model.Reply, error)
}

// DuckDuckGo HTML parsing patterns, compiled once at startup.
var (
	ddgResultRegex     = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>`)
	ddgTagRegex        = regexp.MustCompile(`<[^>]*>`)
	ddgWhitespaceRegex = regexp.MustCompile(`\s+`)
)

// =============================================================================
// SEARCHER
// =============================================================================

// Searcher performs web searches against the DuckDuckGo HTML endpoint.
// No API key is required; requests are rate limited to stay polite.
type Searcher struct {
	// BaseURL is the DuckDuckGo HTML search endpoint.
	BaseURL string

	// MaxResults caps how many result URLs one search returns.
	MaxResults int

	// UserAgent is sent with every request.
	UserAgent string

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewSearcher creates a searcher with sane defaults.
func NewSearcher(logger zerolog.Logger) *Searcher {
	return &Searcher{
		BaseURL:    "https://html.duckduckgo.com/html/",
		MaxResults: 10,
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		logger:  logger,
	}
}

// Search runs one query and returns result URLs in ranking order.
func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty search query")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, err
	}

	links := s.parseHTML(string(body))
	s.logger.Debug().Str("query", query).Int("results", len(links)).Msg("web search completed")
	return links, nil
}

// parseHTML extracts result URLs from DuckDuckGo HTML, unwrapping the
// uddg redirect parameter.
func (s *Searcher) parseHTML(page string) []string {
	matches := ddgResultRegex.FindAllStringSubmatch(page, -1)

	var links []string
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}

		raw := strings.ReplaceAll(match[1], "&amp;", "&")
		actual := unwrapRedirect(raw)
		if actual == "" {
			continue
		}

		links = append(links, actual)
		if len(links) >= s.MaxResults {
			break
		}
	}

	return links
}

// unwrapRedirect extracts the real URL from DuckDuckGo's redirect wrapper
// (//duckduckgo.com/l/?uddg=ENCODED). Direct URLs pass through.
func unwrapRedirect(ddgURL string) string {
	if strings.Contains(ddgURL, "uddg=") {
		if strings.HasPrefix(ddgURL, "//") {
			ddgURL = "https:" + ddgURL
		}
		parsed, err := url.Parse(ddgURL)
		if err != nil {
			return ""
		}
		if target := parsed.Query().Get("uddg"); target != "" {
			return target
		}
	}

	if strings.HasPrefix(ddgURL, "http://") || strings.HasPrefix(ddgURL, "https://") {
		return ddgURL
	}

	return ""
}

// cleanHTML strips tags, decodes entities, and collapses whitespace.
func cleanHTML(fragment string) string {
	text := ddgTagRegex.ReplaceAllString(fragment, "")
	text = html.UnescapeString(text)
	text = ddgWhitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
