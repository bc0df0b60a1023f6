// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hecrj/icebreaker-sub000/internal/llama"
	"github.com/hecrj/icebreaker-sub000/internal/model"
)

// newAskCommand answers one question and exits, without the REPL.
func newAskCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("empty question")
			}

			cfg, logger, err := flags.setup()
			if err != nil {
				return err
			}

			assistant, err := bootAssistant(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer assistant.Close()

			return ask(cmd.Context(), assistant, question)
		},
	}
}

// ask streams one reply for a single question.
func ask(ctx context.Context, assistant *llama.Assistant, question string) error {
	printer := newReplyPrinter(os.Stdout)
	_, err := assistant.Reply(ctx, chatSystemPrompt, []model.Message{model.NewUserMessage(question)}, printer.update)
	printer.finish()
	return err
}
