package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"pony-chat-admin/backend/internal/inbox"
	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/internal/view"
	"pony-chat-admin/backend/pkg/cache"
	"pony-chat-admin/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "khamoo@pony.com"

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

// fakeRepo serves a scripted message list and records operator writes. Rows
// get incrementing IDs like the real store assigns them.
type fakeRepo struct {
	mu       sync.Mutex
	messages []models.Message
	created  []models.Message
	listErr  error
	queries  []string
	nextID   uint
}

func newFakeRepo(messages ...models.Message) *fakeRepo {
	f := &fakeRepo{}
	for _, m := range messages {
		f.seed(m)
	}
	return f
}

func (f *fakeRepo) seed(m models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	m.ID = f.nextID
	f.messages = append(f.messages, m)
}

func (f *fakeRepo) Create(message *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	message.ID = f.nextID
	f.created = append(f.created, *message)
	f.messages = append(f.messages, *message)
	return nil
}

func (f *fakeRepo) ListByPlatform(platform models.Platform) ([]models.Message, error) {
	return f.ListByPlatformSince(platform, "")
}

func (f *fakeRepo) ListByPlatformSince(platform models.Platform, cursor string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, cursor)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Message
	for _, m := range f.messages {
		if m.Platform == platform && (cursor == "" || m.CreatedAt >= cursor) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeRelay struct {
	mu           sync.Mutex
	sends        []string
	sendErr      error
	anyPlatforms []models.Platform
}

func (f *fakeRelay) Send(_ context.Context, _ models.Platform, key, text, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, key+":"+text)
	return nil
}

func (f *fakeRelay) SendPlatform(_ context.Context, platform models.Platform, key, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.anyPlatforms = append(f.anyPlatforms, platform)
	f.sends = append(f.sends, key+":"+text)
	return nil
}

type fakeUnread struct {
	mu        sync.Mutex
	counts    map[string]int
	markReads []string
	polls     int
}

func (f *fakeUnread) Counts(models.Platform) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

func (f *fakeUnread) TotalUnread(models.Platform) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, v := range f.counts {
		total += v
	}
	return total
}

func (f *fakeUnread) MarkRead(_ context.Context, _ models.Platform, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, key)
	return nil
}

func (f *fakeUnread) Poll(context.Context, models.Platform) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
}

func newTestService(repo *fakeRepo, relay *fakeRelay, unread *fakeUnread) *InboxService {
	if unread.counts == nil {
		unread.counts = map[string]int{}
	}
	return NewInboxService(
		repo,
		inbox.NewAggregator(testAdmin),
		unread,
		relay,
		view.NewController(cache.NewCacheWithOptions(time.Hour, time.Hour, 1000)),
		cache.NewCacheWithOptions(time.Hour, time.Hour, 1000),
		time.Hour,
		testAdmin,
		testLogger(),
	)
}

func storedMsg(userID, content, createdAt string) models.Message {
	return models.Message{
		Platform:       models.PlatformTelegram,
		Sender:         userID + "_sender",
		PlatformUserID: userID,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

func TestConversationsAttachUnreadBadges(t *testing.T) {
	repo := newFakeRepo(
		storedMsg("u1", "hello", "2026-01-02T10:00:00Z"),
		storedMsg("u2", "hi", "2026-01-02T10:01:00Z"),
	)
	unread := &fakeUnread{counts: map[string]int{"u1": 3}}
	svc := newTestService(repo, &fakeRelay{}, unread)

	conversations := svc.Conversations(context.Background(), models.PlatformTelegram)

	require.Len(t, conversations, 2)
	assert.Equal(t, 3, conversations[0].Unread)
	assert.Equal(t, 0, conversations[1].Unread)
}

func TestSnapshotRefreshesIncrementally(t *testing.T) {
	repo := newFakeRepo(storedMsg("u1", "hello", "2026-01-02T10:00:00Z"))
	svc := newTestService(repo, &fakeRelay{}, &fakeUnread{})

	first := svc.Conversations(context.Background(), models.PlatformTelegram)
	require.Len(t, first, 1)

	// New rows arrive; invalidate so the next read refreshes.
	repo.seed(storedMsg("u2", "new arrival", "2026-01-02T11:00:00Z"))
	svc.Invalidate(models.PlatformTelegram)

	second := svc.Conversations(context.Background(), models.PlatformTelegram)
	require.Len(t, second, 2)

	// The second refresh queried past the cursor instead of refetching all.
	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.queries, 2)
	assert.Equal(t, "", repo.queries[0])
	assert.Equal(t, "2026-01-02T10:00:00Z", repo.queries[1])
}

func TestSnapshotCatchesLateRowWithEqualTimestamp(t *testing.T) {
	repo := newFakeRepo(storedMsg("u1", "hello", "2026-01-02T10:00:00Z"))
	svc := newTestService(repo, &fakeRelay{}, &fakeUnread{})

	require.Len(t, svc.Conversations(context.Background(), models.PlatformTelegram), 1)

	// A row sharing the cursor's created_at commits after the first fetch.
	repo.seed(storedMsg("u2", "same instant", "2026-01-02T10:00:00Z"))
	svc.Invalidate(models.PlatformTelegram)

	conversations := svc.Conversations(context.Background(), models.PlatformTelegram)
	require.Len(t, conversations, 2)

	// The refetched boundary row is deduped, not duplicated.
	assert.Len(t, svc.Thread(context.Background(), models.PlatformTelegram, "u1"), 1)
}

func TestSnapshotFailedRefreshKeepsLastKnown(t *testing.T) {
	repo := newFakeRepo(storedMsg("u1", "hello", "2026-01-02T10:00:00Z"))
	svc := newTestService(repo, &fakeRelay{}, &fakeUnread{})

	require.Len(t, svc.Conversations(context.Background(), models.PlatformTelegram), 1)

	repo.mu.Lock()
	repo.listErr = errors.New("store down")
	repo.mu.Unlock()
	svc.Invalidate(models.PlatformTelegram)

	// Stale but present beats empty.
	assert.Len(t, svc.Conversations(context.Background(), models.PlatformTelegram), 1)
}

func TestSendBlankTextIsNoOp(t *testing.T) {
	relay := &fakeRelay{}
	svc := newTestService(&fakeRepo{}, relay, &fakeUnread{})

	sent, err := svc.Send(context.Background(), models.PlatformTelegram, "u1", "   ")

	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, relay.sends)
}

func TestSendWithoutConversationIsNoOp(t *testing.T) {
	relay := &fakeRelay{}
	svc := newTestService(&fakeRepo{}, relay, &fakeUnread{})

	sent, err := svc.Send(context.Background(), models.PlatformTelegram, "", "hello")

	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, relay.sends)
}

func TestSendRecordsMessageAndRepolls(t *testing.T) {
	repo := &fakeRepo{}
	relay := &fakeRelay{}
	unread := &fakeUnread{}
	svc := newTestService(repo, relay, unread)

	sent, err := svc.Send(context.Background(), models.PlatformTelegram, "u1", "hello there")

	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []string{"u1:hello there"}, relay.sends)
	assert.Equal(t, 1, unread.polls)

	require.Len(t, repo.created, 1)
	recorded := repo.created[0]
	assert.Equal(t, testAdmin, recorded.Sender)
	assert.Equal(t, "u1", recorded.Recipient)
	assert.Equal(t, "hello there", recorded.Content)
	assert.NotEmpty(t, recorded.ExternalID)
}

func TestSendFailureReturnsErrorWithoutRecording(t *testing.T) {
	repo := &fakeRepo{}
	relay := &fakeRelay{sendErr: errors.New("relay refused")}
	svc := newTestService(repo, relay, &fakeUnread{})

	sent, err := svc.Send(context.Background(), models.PlatformTelegram, "u1", "hello")

	assert.True(t, sent)
	assert.Error(t, err)
	assert.Empty(t, repo.created)
}

func TestSentReplyAppearsInThread(t *testing.T) {
	repo := newFakeRepo(storedMsg("u1", "hello", "2026-01-02T10:00:00Z"))
	svc := newTestService(repo, &fakeRelay{}, &fakeUnread{})

	// Prime the snapshot, then send; the reply must show after the refresh.
	svc.Conversations(context.Background(), models.PlatformTelegram)
	_, err := svc.Send(context.Background(), models.PlatformTelegram, "u1", "got it")
	require.NoError(t, err)

	thread := svc.Thread(context.Background(), models.PlatformTelegram, "u1")

	require.Len(t, thread, 2)
	assert.Equal(t, "got it", thread[1].Content)
	assert.Equal(t, testAdmin, thread[1].Sender)
}

func TestOpenMarksReadAndSetsViewState(t *testing.T) {
	repo := &fakeRepo{}
	unread := &fakeUnread{}
	svc := newTestService(repo, &fakeRelay{}, unread)

	state := svc.Open(context.Background(), "session-1", models.PlatformTelegram, "u1")

	assert.Equal(t, view.ModeOpen, state.Mode)
	assert.Equal(t, "u1", state.ActiveKey)

	// Mark-read fires asynchronously.
	assert.Eventually(t, func() bool {
		unread.mu.Lock()
		defer unread.mu.Unlock()
		return len(unread.markReads) == 1 && unread.markReads[0] == "u1"
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, view.ModeList, svc.Close("session-1", models.PlatformTelegram).Mode)
}

func TestPlatformsSummaries(t *testing.T) {
	unread := &fakeUnread{counts: map[string]int{"u1": 2, "u2": 1}}
	svc := newTestService(&fakeRepo{}, &fakeRelay{}, unread)

	summaries := svc.Platforms()

	require.Len(t, summaries, len(models.AllPlatforms))
	assert.Equal(t, models.PlatformTelegram, summaries[0].Platform)
	assert.Equal(t, 3, summaries[0].Unread)
}

func TestSendAnyUsesSharedEndpoint(t *testing.T) {
	relay := &fakeRelay{}
	svc := newTestService(&fakeRepo{}, relay, &fakeUnread{})

	sent, err := svc.SendAny(context.Background(), models.PlatformViber, "u1", "hi")

	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, []models.Platform{models.PlatformViber}, relay.anyPlatforms)
}
