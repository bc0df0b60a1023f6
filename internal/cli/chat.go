// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/hecrj/icebreaker-sub000/internal/config"
	"github.com/hecrj/icebreaker-sub000/internal/llama"
	"github.com/hecrj/icebreaker-sub000/internal/model"
	"github.com/hecrj/icebreaker-sub000/internal/plan"
	"github.com/hecrj/icebreaker-sub000/internal/web"
)

// chatSystemPrompt is the default persona for plain chat turns.
const chatSystemPrompt = "You are a helpful assistant running locally on the user's machine. Be concise and accurate."

// runChat boots the assistant and enters the interactive loop. When
// stdin is not a terminal the whole input is answered as one question.
func runChat(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	assistant, err := bootAssistant(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer assistant.Close()

	fmt.Fprintf(os.Stderr, "model %s ready. /plan <question> researches the web, /quit exits.\n\n", assistant.Model())

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		question := strings.TrimSpace(string(input))
		if question == "" {
			return nil
		}
		return ask(ctx, assistant, question)
	}

	return repl(ctx, cfg, assistant, logger)
}

// repl is the interactive read-eval-print loop.
func repl(ctx context.Context, cfg *config.Config, assistant *llama.Assistant, logger zerolog.Logger) error {
	prompt := liner.NewLiner()
	defer prompt.Close()
	prompt.SetCtrlCAborts(true)

	searcher := web.NewSearcher(logger)
	searcher.MaxResults = cfg.Web.MaxSearchResults
	scraper := web.NewScraper(logger)
	scraper.MaxChars = cfg.Web.MaxPageChars
	executor := plan.NewExecutor(assistant, searcher, scrapeAdapter{scraper}, logger)

	var history []model.Item

	for {
		input, err := prompt.Prompt("> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			fmt.Println()
			return nil
		case err != nil:
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		prompt.AppendHistory(input)

		switch {
		case input == "/quit" || input == "/exit":
			return nil

		case input == "/help":
			fmt.Println("/plan <question>  research the web before answering")
			fmt.Println("/quit             exit")

		case strings.HasPrefix(input, "/plan"):
			question := strings.TrimSpace(strings.TrimPrefix(input, "/plan"))
			if question == "" {
				fmt.Println("usage: /plan <question>")
				continue
			}
			history = append(history, model.UserItem{Text: question})

			renderer := newPlanRenderer(os.Stdout)
			p, err := executor.Run(ctx, history, renderer.render)
			if err != nil {
				logger.Error().Err(err).Msg("plan failed")
				fmt.Println("plan failed:", err)
			}
			if p != nil {
				history = append(history, model.PlanItem{Plan: p})
			}
			fmt.Println()

		case strings.HasPrefix(input, "/"):
			fmt.Println("unknown command; /help lists commands")

		default:
			history = append(history, model.UserItem{Text: input})

			printer := newReplyPrinter(os.Stdout)
			reply, err := assistant.Reply(ctx, chatSystemPrompt, model.Messages(history), printer.update)
			printer.finish()
			if err != nil {
				logger.Error().Err(err).Msg("completion failed")
				fmt.Println("completion failed:", err)
				continue
			}
			history = append(history, model.ReplyItem{Reply: reply})
		}
	}
}

// bootAssistant launches the inference server, rendering boot progress
// to stderr.
func bootAssistant(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*llama.Assistant, error) {
	backend, err := llama.ParseBackend(cfg.Server.Backend)
	if err != nil {
		return nil, err
	}

	opts := llama.BootOptions{
		ModelPath: cfg.Model.Path,
		ModelURL:  cfg.Model.URL,
		ModelID:   cfg.Model.ID,
		Backend:   backend,
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		GPULayers: cfg.Server.GPULayers,
		Image:     cfg.Server.Image,
		Logger:    logger,
	}

	progress := newBootRenderer(os.Stderr, logger)
	assistant, err := llama.Boot(ctx, opts, progress.render)
	progress.finish()
	return assistant, err
}

// scrapeAdapter narrows *web.Scraper's assistant parameter to the plan
// package's interface.
type scrapeAdapter struct {
	scraper *web.Scraper
}

func (a scrapeAdapter) Summarize(ctx context.Context, assistant plan.Assistant, query, pageURL string) (model.Summary, error) {
	return a.scraper.Summarize(ctx, assistant, query, pageURL)
}
