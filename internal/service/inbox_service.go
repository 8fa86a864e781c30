package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"pony-chat-admin/backend/internal/inbox"
	"pony-chat-admin/backend/internal/metrics"
	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/internal/store"
	"pony-chat-admin/backend/internal/view"
	"pony-chat-admin/backend/pkg/cache"
	"pony-chat-admin/backend/pkg/logger"

	"github.com/google/uuid"
)

// RelaySender is the slice of the relay client the composer needs.
type RelaySender interface {
	Send(ctx context.Context, platform models.Platform, key, text, adminEmail string) error
	SendPlatform(ctx context.Context, platform models.Platform, key, text string) error
}

// UnreadProvider is the slice of the unread syncer the inbox needs.
type UnreadProvider interface {
	Counts(platform models.Platform) map[string]int
	TotalUnread(platform models.Platform) int
	MarkRead(ctx context.Context, platform models.Platform, key string) error
	Poll(ctx context.Context, platform models.Platform)
}

// PlatformSummary is one entry of the landing page: a platform and its total
// unread badge.
type PlatformSummary struct {
	Platform models.Platform `json:"platform"`
	Unread   int             `json:"unread"`
}

// platformState is the in-memory message snapshot for one platform. The
// cursor is the newest stored created_at already fetched; refreshes pull only
// rows from it onward instead of refetching the whole table. The fetch
// includes the cursor timestamp itself, so rows sharing it that commit after
// the previous fetch are not skipped; seen dedupes the refetched boundary by
// row ID.
type platformState struct {
	mu       sync.Mutex
	messages []models.Message
	cursor   string
	seen     map[uint]bool
}

// InboxService derives the conversation views the console renders: message
// snapshots, aggregation, unread badges, the composer and the per-session
// view state machine.
type InboxService struct {
	repo       store.MessageRepository
	aggregator *inbox.Aggregator
	unread     UnreadProvider
	relay      RelaySender
	views      *view.Controller
	fresh      *cache.Cache
	freshTTL   time.Duration
	adminEmail string
	log        *logger.Logger

	mu     sync.Mutex
	states map[models.Platform]*platformState
}

func NewInboxService(
	repo store.MessageRepository,
	aggregator *inbox.Aggregator,
	unread UnreadProvider,
	relay RelaySender,
	views *view.Controller,
	fresh *cache.Cache,
	freshTTL time.Duration,
	adminEmail string,
	log *logger.Logger,
) *InboxService {
	if freshTTL <= 0 {
		freshTTL = 10 * time.Second
	}
	return &InboxService{
		repo:       repo,
		aggregator: aggregator,
		unread:     unread,
		relay:      relay,
		views:      views,
		fresh:      fresh,
		freshTTL:   freshTTL,
		adminEmail: adminEmail,
		log:        log,
		states:     make(map[models.Platform]*platformState),
	}
}

func (s *InboxService) state(platform models.Platform) *platformState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[platform]
	if !ok {
		st = &platformState{seen: make(map[uint]bool)}
		s.states[platform] = st
	}
	return st
}

func freshKey(platform models.Platform) string {
	return "messages:" + string(platform)
}

// Invalidate forces the next read to refresh the platform's snapshot.
func (s *InboxService) Invalidate(platform models.Platform) {
	s.fresh.Delete(freshKey(platform))
}

// snapshot returns the platform's message list, refreshing it when stale.
// A failed refresh keeps the last-known snapshot: the view goes stale rather
// than empty, and the next read retries.
func (s *InboxService) snapshot(platform models.Platform) []models.Message {
	st := s.state(platform)
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := s.fresh.Get(freshKey(platform)); !ok {
		batch, err := s.repo.ListByPlatformSince(platform, st.cursor)
		if err != nil {
			s.log.LogError(err, "Failed to refresh message snapshot",
				"platform", string(platform),
			)
		} else {
			added := 0
			for i := range batch {
				m := batch[i]
				if m.ID != 0 && st.seen[m.ID] {
					continue
				}
				st.messages = append(st.messages, m)
				if m.ID != 0 {
					st.seen[m.ID] = true
				}
				added++
			}
			if added > 0 {
				st.cursor = maxCursor(st.cursor, batch)
				metrics.MessagesFetched.WithLabelValues(string(platform)).Add(float64(added))
			}
			s.fresh.SetWithExpiration(freshKey(platform), true, s.freshTTL)
		}
	}

	out := make([]models.Message, len(st.messages))
	copy(out, st.messages)
	return out
}

// maxCursor returns the newest raw created_at between the current cursor and
// a fetched batch. Stored timestamps order lexicographically.
func maxCursor(cursor string, batch []models.Message) string {
	for i := range batch {
		if batch[i].CreatedAt > cursor {
			cursor = batch[i].CreatedAt
		}
	}
	return cursor
}

// Conversations returns the aggregated conversation list for one platform
// with unread badges attached.
func (s *InboxService) Conversations(ctx context.Context, platform models.Platform) []models.Conversation {
	messages := s.snapshot(platform)
	conversations := s.aggregator.Aggregate(platform, messages)
	metrics.Aggregations.WithLabelValues(string(platform)).Inc()
	inbox.AttachUnread(conversations, s.unread.Counts(platform))
	return conversations
}

// Thread returns the messages of one conversation, oldest first.
func (s *InboxService) Thread(ctx context.Context, platform models.Platform, key string) []models.Message {
	return s.aggregator.Thread(key, s.snapshot(platform))
}

// Open transitions the session's view to the conversation and fires the
// mark-read side effect. Mark-read is fire-and-forget: its completion
// triggers a message and unread refresh, and its failure only logs.
func (s *InboxService) Open(ctx context.Context, sessionID string, platform models.Platform, key string) view.State {
	state := s.views.Open(sessionID, platform, key)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.unread.MarkRead(ctx, platform, key); err == nil {
			s.Invalidate(platform)
		}
	}()

	return state
}

// Close returns the session's view to the conversation list. In-flight work
// is not cancelled.
func (s *InboxService) Close(sessionID string, platform models.Platform) view.State {
	return s.views.Close(sessionID, platform)
}

// ViewState returns the session's current view of a platform.
func (s *InboxService) ViewState(sessionID string, platform models.Platform) view.State {
	return s.views.Get(sessionID, platform)
}

// ToggleTimestamp flips timestamp visibility for one message of the open
// conversation.
func (s *InboxService) ToggleTimestamp(sessionID string, platform models.Platform, messageID string) (bool, view.State) {
	return s.views.ToggleTimestamp(sessionID, platform, messageID)
}

// Send forwards an operator reply through the platform-specific relay
// endpoint. Blank text after trimming, or no selected conversation, is a
// silent no-op: no relay call, no state change. Returns whether a send was
// attempted.
//
// The composer clears regardless of outcome; a failed send does not restore
// the text. That matches the console's observed behavior.
func (s *InboxService) Send(ctx context.Context, platform models.Platform, key, text string) (bool, error) {
	if strings.TrimSpace(text) == "" || key == "" {
		return false, nil
	}

	if err := s.relay.Send(ctx, platform, key, text, s.adminEmail); err != nil {
		metrics.RelaySends.WithLabelValues(string(platform), metrics.OutcomeError).Inc()
		s.log.LogError(err, "Send failed",
			"platform", string(platform),
			"conversation", key,
		)
		return true, err
	}

	metrics.RelaySends.WithLabelValues(string(platform), metrics.OutcomeOK).Inc()
	s.recordSend(platform, key, text)
	s.Invalidate(platform)
	s.unread.Poll(ctx, platform)
	return true, nil
}

// SendAny forwards a reply through the platform-agnostic relay endpoint.
func (s *InboxService) SendAny(ctx context.Context, platform models.Platform, key, text string) (bool, error) {
	if strings.TrimSpace(text) == "" || key == "" {
		return false, nil
	}

	if err := s.relay.SendPlatform(ctx, platform, key, text); err != nil {
		metrics.RelaySends.WithLabelValues(string(platform), metrics.OutcomeError).Inc()
		s.log.LogError(err, "Send failed",
			"platform", string(platform),
			"conversation", key,
		)
		return true, err
	}

	metrics.RelaySends.WithLabelValues(string(platform), metrics.OutcomeOK).Inc()
	s.recordSend(platform, key, text)
	s.Invalidate(platform)
	return true, nil
}

// recordSend writes the operator's message to the store so the thread shows
// it on the next refresh. The relay only delivers; it does not write back.
func (s *InboxService) recordSend(platform models.Platform, key, text string) {
	message := &models.Message{
		ExternalID:  uuid.New().String(),
		Platform:    platform,
		Sender:      s.adminEmail,
		Recipient:   key,
		Content:     text,
		MessageType: "text",
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.repo.Create(message); err != nil {
		s.log.LogError(err, "Failed to record operator message",
			"platform", string(platform),
			"conversation", key,
		)
	}
}

// Platforms returns every configured platform with its total unread badge.
func (s *InboxService) Platforms() []PlatformSummary {
	summaries := make([]PlatformSummary, 0, len(models.AllPlatforms))
	for _, platform := range models.AllPlatforms {
		summaries = append(summaries, PlatformSummary{
			Platform: platform,
			Unread:   s.unread.TotalUnread(platform),
		})
	}
	return summaries
}
