package core

import (
	"strings"

	"pkt.systems/codebench/schema"
)

// chatHistory is the ordered list of answered queries of a session.
type chatHistory struct {
	turns []schema.ChatTurn
	max   int
}

func newChatHistory(max int) *chatHistory {
	if max <= 0 {
		max = schema.DefaultMaxChatTurns
	}
	return &chatHistory{max: max}
}

// Append adds one turn. When the history is full the oldest turn is dropped.
func (h *chatHistory) Append(turn schema.ChatTurn) bool {
	if h == nil || strings.TrimSpace(turn.Query) == "" {
		return false
	}
	h.turns = append(h.turns, turn)
	if len(h.turns) > h.max {
		h.turns = append([]schema.ChatTurn(nil), h.turns[len(h.turns)-h.max:]...)
	}
	return true
}

func (h *chatHistory) Turns() []schema.ChatTurn {
	if h == nil {
		return []schema.ChatTurn{}
	}
	return append([]schema.ChatTurn{}, h.turns...)
}

func (h *chatHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

func (h *chatHistory) Clear() {
	if h != nil {
		h.turns = nil
	}
}
