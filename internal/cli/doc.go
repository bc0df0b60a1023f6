// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the icebreaker command line interface.
//
// The root command boots the local inference server and drops into an
// interactive chat loop. Plain input streams a completion; /plan runs a
// web-research plan for the question instead.
//
// # Commands
//
//   - icebreaker: Boot the assistant and chat interactively
//   - icebreaker ask: One-shot completion without the REPL
//   - icebreaker config: Print the effective configuration
//
// # Usage
//
//	icebreaker --model ~/models/llama.gguf
//	icebreaker ask "What is the capital of Australia?"
//	icebreaker --backend cuda --port 9090
package cli
