// icebreaker - chat with a local LLM that can research the web.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/hecrj/icebreaker-sub000/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
