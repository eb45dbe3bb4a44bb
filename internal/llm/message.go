package llm

// Chat roles used throughout the task conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single role-tagged entry in a task conversation.
// The conversation is append-only; every role reads and extends the
// same transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewChatMessage creates a message with the given role and content.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}
