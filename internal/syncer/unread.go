package syncer

import (
	"context"
	"sync"
	"time"

	"pony-chat-admin/backend/internal/metrics"
	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/logger"
)

// CountsSource is the slice of the relay this syncer needs.
type CountsSource interface {
	UnreadCounts(ctx context.Context, platform models.Platform) (map[string]int, error)
	MarkRead(ctx context.Context, platform models.Platform, key string) error
}

// SnapshotStore persists the last-known counts so a restart starts from the
// previous snapshot instead of zero badges. Optional.
type SnapshotStore interface {
	SaveCounts(ctx context.Context, platform models.Platform, counts map[string]int) error
	LoadCounts(ctx context.Context, platform models.Platform) (map[string]int, error)
}

// Publisher receives the new count map whenever a poll changes it.
type Publisher interface {
	PublishUnread(platform models.Platform, counts map[string]int)
}

// UnreadSyncer polls the relay's unread-count endpoint for every configured
// platform on a fixed interval and holds the latest snapshot per platform.
//
// Polls may overlap when the relay is slow; each outgoing poll is tagged with
// a monotonic sequence and a response only applies if no newer poll has
// applied yet, so a stale response can never overwrite a fresher one. Failed
// polls keep the previous counts; they are logged and nothing retries before
// the next tick.
type UnreadSyncer struct {
	source    CountsSource
	snapshots SnapshotStore
	publisher Publisher
	platforms []models.Platform
	interval  time.Duration
	log       *logger.Logger

	mu      sync.RWMutex
	counts  map[models.Platform]map[string]int
	issued  map[models.Platform]uint64
	applied map[models.Platform]uint64
}

// Option configures an UnreadSyncer.
type Option func(*UnreadSyncer)

// WithSnapshotStore enables snapshot persistence.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *UnreadSyncer) { s.snapshots = store }
}

// WithPublisher enables push notification of count changes.
func WithPublisher(p Publisher) Option {
	return func(s *UnreadSyncer) { s.publisher = p }
}

func New(source CountsSource, platforms []models.Platform, interval time.Duration, log *logger.Logger, opts ...Option) *UnreadSyncer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &UnreadSyncer{
		source:    source,
		platforms: platforms,
		interval:  interval,
		log:       log,
		counts:    make(map[models.Platform]map[string]int),
		issued:    make(map[models.Platform]uint64),
		applied:   make(map[models.Platform]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts one poller per platform and blocks until ctx is cancelled. The
// tickers are the only long-lived resources; cancellation releases them.
func (s *UnreadSyncer) Run(ctx context.Context) {
	if s.snapshots != nil {
		s.restore(ctx)
	}

	var wg sync.WaitGroup
	for _, platform := range s.platforms {
		wg.Add(1)
		go func(p models.Platform) {
			defer wg.Done()
			s.pollLoop(ctx, p)
		}(platform)
	}
	wg.Wait()
}

func (s *UnreadSyncer) pollLoop(ctx context.Context, platform models.Platform) {
	// Immediate first poll, then the fixed interval.
	s.Poll(ctx, platform)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll(ctx, platform)
		}
	}
}

// Poll fetches the counts for one platform once and applies the response if
// it is still the freshest one issued.
func (s *UnreadSyncer) Poll(ctx context.Context, platform models.Platform) {
	s.mu.Lock()
	s.issued[platform]++
	seq := s.issued[platform]
	s.mu.Unlock()

	counts, err := s.source.UnreadCounts(ctx, platform)
	if err != nil {
		// Keep the previous snapshot; the next tick is the retry.
		metrics.UnreadPolls.WithLabelValues(string(platform), metrics.OutcomeError).Inc()
		s.log.Warn("Failed to fetch unread counts",
			"platform", string(platform),
			"error", err.Error(),
		)
		return
	}

	metrics.UnreadPolls.WithLabelValues(string(platform), metrics.OutcomeOK).Inc()
	s.apply(ctx, platform, seq, counts)
}

func (s *UnreadSyncer) apply(ctx context.Context, platform models.Platform, seq uint64, counts map[string]int) {
	s.mu.Lock()
	if seq <= s.applied[platform] {
		s.mu.Unlock()
		metrics.StaleUnreadResponses.WithLabelValues(string(platform)).Inc()
		s.log.Debug("Discarding stale unread poll response",
			"platform", string(platform),
			"seq", seq,
		)
		return
	}
	s.applied[platform] = seq
	changed := !countsEqual(s.counts[platform], counts)
	s.counts[platform] = counts
	s.mu.Unlock()

	if !changed {
		return
	}

	if s.snapshots != nil {
		if err := s.snapshots.SaveCounts(ctx, platform, counts); err != nil {
			s.log.Warn("Failed to persist unread snapshot",
				"platform", string(platform),
				"error", err.Error(),
			)
		}
	}
	if s.publisher != nil {
		s.publisher.PublishUnread(platform, counts)
	}
}

// Counts returns a copy of the latest snapshot for a platform. Conversations
// absent from the map have zero unread messages.
func (s *UnreadSyncer) Counts(platform models.Platform) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]int, len(s.counts[platform]))
	for k, v := range s.counts[platform] {
		snapshot[k] = v
	}
	return snapshot
}

// TotalUnread sums the counts for a platform, for the landing-page badge.
func (s *UnreadSyncer) TotalUnread(platform models.Platform) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, v := range s.counts[platform] {
		total += v
	}
	return total
}

// MarkRead tells the relay a conversation was opened, then re-polls so the
// badge converges without waiting a full interval. There is no optimistic
// local decrement; the relay stays the source of truth.
func (s *UnreadSyncer) MarkRead(ctx context.Context, platform models.Platform, key string) error {
	if err := s.source.MarkRead(ctx, platform, key); err != nil {
		s.log.Warn("Failed to mark conversation read",
			"platform", string(platform),
			"conversation", key,
			"error", err.Error(),
		)
		return err
	}
	s.Poll(ctx, platform)
	return nil
}

// restore seeds the in-memory counts from the snapshot store.
func (s *UnreadSyncer) restore(ctx context.Context) {
	for _, platform := range s.platforms {
		counts, err := s.snapshots.LoadCounts(ctx, platform)
		if err != nil || counts == nil {
			continue
		}
		s.mu.Lock()
		if s.counts[platform] == nil {
			s.counts[platform] = counts
		}
		s.mu.Unlock()
	}
}

func countsEqual(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
