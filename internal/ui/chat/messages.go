// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/ragchat/internal/orchestrator"
	"github.com/jeranaias/ragchat/internal/ragapi"
)

// =============================================================================
// TRANSCRIPT MESSAGES
// =============================================================================

// TranscriptChangedMsg signals that the transcript changed at least once
// since the last redraw.
type TranscriptChangedMsg struct{}

// InputGateMsg signals that the orchestrator opened or closed the input gate.
// The current state is read from the Bridge, not carried by the message.
type InputGateMsg struct{}

// =============================================================================
// REQUEST MESSAGES
// =============================================================================

// SendDoneMsg reports the end of a user turn.
type SendDoneMsg struct {
	Result orchestrator.Result
	Err    error
}

// ReplayDoneMsg reports the end of a history replay.
type ReplayDoneMsg struct {
	Result orchestrator.Result
	Err    error
}

// ResetDoneMsg reports the end of a conversation reset.
type ResetDoneMsg struct {
	Err error
}

// InitLoadedMsg delivers the assistant description fetched at startup.
type InitLoadedMsg struct {
	Init *ragapi.ChatInit
	Err  error
}
