package types

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn sent to a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Optional request context attached by the client.
	Context           *ChatContext        `json:"context,omitempty"`
	CurrentFile       *CurrentFile        `json:"current_file,omitempty"`
	AdditionalContext []AdditionalContext `json:"additional_context,omitempty"`
}

// ChatContext describes the resource the user is looking at (issue, epic, ...).
type ChatContext struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// AdditionalContext is an extra snippet pinned to the conversation.
type AdditionalContext struct {
	Category string `json:"category"`
	ID       string `json:"id,omitempty"`
	Content  string `json:"content"`
}

// CurrentFile is the editor state around the cursor.
type CurrentFile struct {
	FileName           string `json:"file_name"`
	LanguageIdentifier string `json:"language_identifier,omitempty"`
	ContentAboveCursor string `json:"content_above_cursor"`
	ContentBelowCursor string `json:"content_below_cursor"`
}
