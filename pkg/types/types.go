// Package types defines the shared value types used across all Parrot
// packages.
//
// These types form the lingua franca between providers, sessions, and the
// application orchestrator. They carry no behaviour beyond small helpers so
// that every package can import them without creating dependency cycles.
package types

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single message in an LLM conversation request.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role Role

	// Content is the text content of the message.
	Content string
}

// ChatMessage is one entry of the visible conversation history.
type ChatMessage struct {
	Role    Role
	Content string

	// CreatedAt is set when the message is appended. Its millisecond value
	// doubles as the message identifier, see [ChatMessage.ID].
	CreatedAt time.Time
}

// ID returns the identifier used to correlate a message with playback.
func (m ChatMessage) ID() int64 {
	return m.CreatedAt.UnixMilli()
}

// AsMessage converts m into the request form sent to an LLM.
func (m ChatMessage) AsMessage() Message {
	return Message{Role: m.Role, Content: m.Content}
}

// VoiceProfile describes a voice offered by a speech backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 tag of the voice (e.g. "en-US"). May be empty
	// for multilingual remote voices.
	Language string

	// Provider identifies which backend this voice belongs to.
	Provider string

	// Description is a short human-readable characterisation.
	Description string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
