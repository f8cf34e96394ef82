package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat roles accepted in an uploaded transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one turn of an uploaded transcript
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptUpload is the body of POST /api/chat-upload
type TranscriptUpload struct {
	UserID        uuid.UUID     `json:"user_id"`
	SessionID     uuid.UUID     `json:"session_id"`
	CharacterName string        `json:"character_name"`
	Messages      []ChatMessage `json:"messages"`
	EndedAt       time.Time     `json:"ended_at"`
}

// ValidTranscriptRole reports whether role may appear in an uploaded transcript.
func ValidTranscriptRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// StructuredMessage is a role-tagged turn sent to the inference endpoint
type StructuredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AcceptedResponse is returned once an upload is persisted and scheduled
type AcceptedResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	RequestID uuid.UUID `json:"request_id"`
}
