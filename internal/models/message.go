package models

import (
	"time"
)

// Platform identifies the external chat network a message arrived from.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformFacebook Platform = "facebook"
	PlatformTiktok   Platform = "tiktok"
	PlatformViber    Platform = "viber"
)

// AllPlatforms lists every supported platform in display order.
var AllPlatforms = []Platform{PlatformTelegram, PlatformFacebook, PlatformTiktok, PlatformViber}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTelegram, PlatformFacebook, PlatformTiktok, PlatformViber:
		return true
	}
	return false
}

// Message is one record from the shared message store. Records are written by
// the platform webhooks and by the relay; this service only reads them, except
// for locally recording operator sends.
//
// CreatedAt is kept as the raw stored string: the store is externally owned
// and rows with malformed timestamps must still aggregate (they coerce to
// epoch rather than failing).
type Message struct {
	ID             uint     `json:"id" gorm:"primaryKey"`
	ExternalID     string   `json:"external_id" gorm:"index"`
	Platform       Platform `json:"platform" gorm:"index"`
	Sender         string   `json:"sender" gorm:"index"`
	Recipient      string   `json:"recipient"`
	PlatformUserID string   `json:"platform_user_id" gorm:"column:platform_user_id;index"`
	Content        string   `json:"message" gorm:"column:message"`
	MediaURL       string   `json:"media_url"`
	MessageType    string   `json:"message_type"`
	CreatedAt      string   `json:"created_at" gorm:"column:created_at;index"`

	// Platform-specific display fields.
	FirstName  string `json:"first_name,omitempty"` // telegram
	LastName   string `json:"last_name,omitempty"`  // telegram
	Username   string `json:"username,omitempty"`   // telegram
	Name       string `json:"name,omitempty"`       // facebook, viber
	ProfilePic string `json:"profile_pic,omitempty"` // facebook, viber
	Nickname   string `json:"nickname,omitempty"`   // tiktok
}

// TableName maps to the shared store table.
func (Message) TableName() string {
	return "pony_messages"
}

// ConversationKey is the grouping identifier for the thread this message
// belongs to: the platform-specific user ID when present, else the raw sender.
func (m *Message) ConversationKey() string {
	if m.PlatformUserID != "" {
		return m.PlatformUserID
	}
	return m.Sender
}

// IsAdmin reports whether the message was authored by the operator.
func (m *Message) IsAdmin(adminEmail string) bool {
	return m.Sender == adminEmail
}

// timestampLayouts are the formats the store has been observed to contain.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

// CreatedAtTime parses the stored timestamp. A malformed value coerces to the
// epoch so it never wins a most-recent comparison and never fails aggregation.
func (m *Message) CreatedAtTime() time.Time {
	return ParseTimestamp(m.CreatedAt)
}

// ParseTimestamp parses a store timestamp, coercing malformed values to epoch.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}
