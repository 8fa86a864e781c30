package inbox

import (
	"pony-chat-admin/backend/internal/models"
)

// Aggregator derives the conversation view from a flat platform message list.
// It is a pure function of its inputs: no I/O, no clock, no shared state.
type Aggregator struct {
	adminEmail string
}

func NewAggregator(adminEmail string) *Aggregator {
	return &Aggregator{adminEmail: adminEmail}
}

// previewKey is the thread a message counts toward for last-message purposes.
// Operator-authored messages belong to the conversation they were sent to.
func (a *Aggregator) previewKey(m *models.Message) string {
	if m.IsAdmin(a.adminEmail) && m.Recipient != "" {
		return m.Recipient
	}
	return m.ConversationKey()
}

// Aggregate produces the distinct conversations for one platform, in order of
// first appearance, with display metadata and last-message previews attached.
//
// Rules:
//   - a conversation exists iff at least one non-admin message carries its key;
//     operator-authored messages never originate a conversation
//   - the metadata holder for a key starts as the first message seen and is
//     replaced by a later message that carries display fields when the holder
//     does not, or that is strictly more recent when both do
//   - the preview is the message with the maximum created_at among all
//     messages of the thread, operator replies included; on equal or
//     unparsable timestamps the later message in input order wins
//   - a malformed created_at coerces to epoch, so it can never displace a
//     preview that has any valid timestamp
func (a *Aggregator) Aggregate(platform models.Platform, messages []models.Message) []models.Conversation {
	mapping := MappingFor(platform)

	var order []string
	meta := make(map[string]*models.Message)
	last := make(map[string]*models.Message)
	seen := make(map[string]bool)

	for i := range messages {
		m := &messages[i]
		isAdmin := m.IsAdmin(a.adminEmail)

		if !isAdmin {
			key := m.ConversationKey()
			if key == "" {
				continue
			}
			if !seen[key] {
				seen[key] = true
				order = append(order, key)
			}

			holder, ok := meta[key]
			switch {
			case !ok:
				meta[key] = m
			case mapping.HasDisplayFields(m) && !mapping.HasDisplayFields(holder):
				meta[key] = m
			case mapping.HasDisplayFields(m) && mapping.HasDisplayFields(holder) &&
				m.CreatedAtTime().After(holder.CreatedAtTime()):
				meta[key] = m
			}
		}

		pkey := a.previewKey(m)
		if pkey == "" {
			continue
		}
		if prev, ok := last[pkey]; !ok || !m.CreatedAtTime().Before(prev.CreatedAtTime()) {
			last[pkey] = m
		}
	}

	conversations := make([]models.Conversation, 0, len(order))
	for _, key := range order {
		holder := meta[key]
		displayName := mapping.DisplayName(holder)
		conversations = append(conversations, models.Conversation{
			Key:         key,
			Platform:    platform,
			DisplayName: displayName,
			AvatarURL:   mapping.AvatarURL(holder),
			Initial:     Initial(displayName),
			LastMessage: last[key],
		})
	}
	return conversations
}

// Thread returns the messages belonging to one conversation, in input order:
// inbound messages keyed to it plus operator replies addressed to it.
func (a *Aggregator) Thread(key string, messages []models.Message) []models.Message {
	var thread []models.Message
	for i := range messages {
		m := &messages[i]
		if m.IsAdmin(a.adminEmail) {
			if m.Recipient == key {
				thread = append(thread, *m)
			}
			continue
		}
		if m.ConversationKey() == key {
			thread = append(thread, *m)
		}
	}
	return thread
}

// AttachUnread copies counts from the relay snapshot onto the conversation
// list. Keys absent from the map get 0, which renders as no badge.
func AttachUnread(conversations []models.Conversation, counts map[string]int) {
	for i := range conversations {
		conversations[i].Unread = counts[conversations[i].Key]
	}
}
