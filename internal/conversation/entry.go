package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one conversation item. Streaming assistant entries and partial
// transcripts are mutated in place until finalized; everything else is
// append-only.
type Entry struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	IsVoice         bool      `json:"is_voice,omitempty"`
	IsPartial       bool      `json:"is_partial,omitempty"`
	IsStreaming     bool      `json:"is_streaming,omitempty"`
	IsClipboard     bool      `json:"is_clipboard,omitempty"`
	IsAdviceRequest bool      `json:"is_advice_request,omitempty"`
	HasImage        bool      `json:"has_image,omitempty"`
	IsError         bool      `json:"is_error,omitempty"`
}
