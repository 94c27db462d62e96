package models

import (
	"time"

	"github.com/google/uuid"
)

// Session represents one run of the dialogue screen in the transcript archive. It provides basic
// identification and labeling for grouping the entries shown during that run.
type Session struct {
	ID        string
	Title     string
	StartedAt time.Time
}

// DialogueEntry represents one displayed (speaker, message) pair in the conversation list. Entries are
// values: once appended to a dialogue they are never mutated or removed.
type DialogueEntry struct {
	ID        string
	Role      Role
	Speaker   string
	Message   string
	Timestamp time.Time
}

// ChatRequest is the body posted to the conversation endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the body returned by the conversation endpoint. Reply is nil when the field is absent.
type ChatReply struct {
	Reply *string `json:"reply,omitempty"`
}

// Role represents who produced a dialogue entry.
type Role string

const (
	// RoleUser represents text typed into the input box.
	RoleUser Role = "user"
	// RoleAssistant represents a reply, including the fallback strings used when no reply could be had.
	RoleAssistant Role = "assistant"
	// RoleSystem represents notices generated by the screen itself.
	RoleSystem Role = "system"
)

const (
	// SpeakerUser labels entries typed by the user.
	SpeakerUser = "你"
	// SpeakerAssistant labels reply entries.
	SpeakerAssistant = "AI"
	// SpeakerSystem labels screen notices.
	SpeakerSystem = "系统提示"

	// NoticeEmptyInput is shown when the input box is submitted empty.
	NoticeEmptyInput = "请输入内容！"
	// NoReply replaces a reply that is absent or empty.
	NoReply = "AI无回复"
	// RequestFailed replaces the reply when the exchange failed for any reason.
	RequestFailed = "请求失败。"
)

// NewDialogueEntry creates an entry with a fresh ID and the current time.
func NewDialogueEntry(role Role, speaker, message string) DialogueEntry {
	return DialogueEntry{
		ID:        uuid.New().String(),
		Role:      role,
		Speaker:   speaker,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Text returns the reply text, or placeholder if the reply is absent or empty.
func (r ChatReply) Text(placeholder string) string {
	if r.Reply == nil || *r.Reply == "" {
		return placeholder
	}
	return *r.Reply
}
