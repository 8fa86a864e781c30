package models

// Conversation is the derived per-thread view shown in the inbox list. It is
// never persisted; it is recomputed from the message list on every refresh and
// the unread count is attached from the relay's snapshot afterwards.
type Conversation struct {
	Key         string   `json:"key"`
	Platform    Platform `json:"platform"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	// Initial is the single-character fallback the console renders when no
	// avatar URL is available.
	Initial     string   `json:"initial"`
	LastMessage *Message `json:"last_message,omitempty"`
	Unread      int      `json:"unread"`
}
