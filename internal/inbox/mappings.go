package inbox

import (
	"strings"

	"pony-chat-admin/backend/internal/models"
)

// FieldMapping declares which message fields carry a platform's display
// identity. One table entry per platform replaces the per-page variants the
// console used to duplicate.
type FieldMapping struct {
	// DisplayName derives the human-readable name for a conversation from a
	// metadata-holder message. Falls back to the sender when nothing richer
	// is present.
	DisplayName func(m *models.Message) string
	// AvatarURL derives the avatar/profile picture, "" when none.
	AvatarURL func(m *models.Message) string
	// HasDisplayFields reports whether the message carries any of the
	// platform's identity fields; such messages out-rank bare ones when
	// electing a metadata holder.
	HasDisplayFields func(m *models.Message) bool
}

// Mappings holds the per-platform display-field policies.
var Mappings = map[models.Platform]FieldMapping{
	models.PlatformTelegram: {
		DisplayName: func(m *models.Message) string {
			if m.FirstName != "" && m.LastName != "" {
				return m.FirstName + " " + m.LastName
			}
			if m.FirstName != "" {
				return m.FirstName
			}
			if m.Username != "" {
				return m.Username
			}
			return m.Sender
		},
		AvatarURL: func(m *models.Message) string { return m.MediaURL },
		HasDisplayFields: func(m *models.Message) bool {
			return m.FirstName != "" || m.LastName != "" || m.Username != ""
		},
	},
	models.PlatformFacebook: {
		DisplayName: func(m *models.Message) string {
			if m.Name != "" {
				return m.Name
			}
			return m.Sender
		},
		AvatarURL: func(m *models.Message) string {
			if m.ProfilePic != "" {
				return m.ProfilePic
			}
			return m.MediaURL
		},
		HasDisplayFields: func(m *models.Message) bool {
			return m.Name != "" || m.ProfilePic != ""
		},
	},
	models.PlatformViber: {
		DisplayName: func(m *models.Message) string {
			if m.Name != "" {
				return m.Name
			}
			return m.Sender
		},
		AvatarURL: func(m *models.Message) string {
			if m.ProfilePic != "" {
				return m.ProfilePic
			}
			return m.MediaURL
		},
		HasDisplayFields: func(m *models.Message) bool {
			return m.Name != "" || m.ProfilePic != ""
		},
	},
	models.PlatformTiktok: {
		DisplayName: func(m *models.Message) string {
			if m.Nickname != "" {
				return m.Nickname
			}
			return m.Sender
		},
		AvatarURL: func(m *models.Message) string { return m.MediaURL },
		HasDisplayFields: func(m *models.Message) bool {
			return m.Nickname != ""
		},
	},
}

// MappingFor returns the display policy for a platform. Unknown platforms get
// a sender-only fallback so aggregation never fails.
func MappingFor(platform models.Platform) FieldMapping {
	if mapping, ok := Mappings[platform]; ok {
		return mapping
	}
	return FieldMapping{
		DisplayName:      func(m *models.Message) string { return m.Sender },
		AvatarURL:        func(m *models.Message) string { return "" },
		HasDisplayFields: func(m *models.Message) bool { return false },
	}
}

// Initial returns the single-character avatar fallback for a display name.
func Initial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "?"
	}
	return strings.ToUpper(string([]rune(name)[0]))
}
