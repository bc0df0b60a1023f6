// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

// ddgFixture renders a minimal DuckDuckGo HTML result page.
func ddgFixture(links ...string) string {
	page := "<html><body>"
	for _, link := range links {
		page += fmt.Sprintf(`<div class="result"><a rel="nofollow" class="result__a" href="%s">Title</a></div>`, link)
	}
	return page + "</body></html>"
}

func TestSearchParsesResults(t *testing.T) {
	wrapped := "//duckduckgo.com/l/?uddg=" + url.QueryEscape("https://go.dev/doc/")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang docs" {
			t.Errorf("query parameter = %q, want %q", got, "golang docs")
		}
		_, _ = w.Write([]byte(ddgFixture(wrapped, "https://pkg.go.dev/std")))
	}))
	defer server.Close()

	s := NewSearcher(zerolog.Nop())
	s.BaseURL = server.URL + "/"

	links, err := s.Search(context.Background(), "golang docs")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(links) != 2 {
		t.Fatalf("got %d links %v, want 2", len(links), links)
	}
	if links[0] != "https://go.dev/doc/" {
		t.Errorf("links[0] = %q, want unwrapped redirect target", links[0])
	}
	if links[1] != "https://pkg.go.dev/std" {
		t.Errorf("links[1] = %q, want direct URL passed through", links[1])
	}
}

func TestSearchHonorsMaxResults(t *testing.T) {
	var links []string
	for i := 0; i < 20; i++ {
		links = append(links, fmt.Sprintf("https://example.com/%d", i))
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ddgFixture(links...)))
	}))
	defer server.Close()

	s := NewSearcher(zerolog.Nop())
	s.BaseURL = server.URL + "/"
	s.MaxResults = 3

	got, err := s.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d links, want 3", len(got))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	s := NewSearcher(zerolog.Nop())
	if _, err := s.Search(context.Background(), "   "); err == nil {
		t.Error("Search() accepted a blank query")
	}
}

func TestSearchNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer server.Close()

	s := NewSearcher(zerolog.Nop())
	s.BaseURL = server.URL + "/"

	if _, err := s.Search(context.Background(), "q"); err == nil {
		t.Error("Search() accepted a 403 response")
	}
}

func TestUnwrapRedirect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"uddg wrapper",
			"//duckduckgo.com/l/?uddg=" + url.QueryEscape("https://example.com/page") + "&rut=abc",
			"https://example.com/page",
		},
		{"direct https", "https://example.com", "https://example.com"},
		{"direct http", "http://example.com", "http://example.com"},
		{"relative junk", "/settings", ""},
		{"javascript", "javascript:void(0)", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unwrapRedirect(tt.input); got != tt.want {
				t.Errorf("unwrapRedirect(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanHTML(t *testing.T) {
	input := "<p>Hello &amp; welcome</p>\n\n<div>to   the\tpage</div>"
	want := "Hello & welcome to the page"

	if got := cleanHTML(input); got != want {
		t.Errorf("cleanHTML() = %q, want %q", got, want)
	}
}
