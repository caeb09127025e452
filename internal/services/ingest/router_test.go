package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zentra/quartzite/internal/discord"
	"github.com/zentra/quartzite/internal/models"
)

type tripleKey struct {
	messageID, userID, emojiID string
}

// memStore mirrors the SQL store's semantics in memory: create-only
// emoji upsert, identity-keyed usage rows, cascade on guild removal and
// a monotonic deleted_on.
type memStore struct {
	emojis  map[string]models.Emoji
	usage   map[tripleKey]models.EmojiUsage
	failure error

	channelRemovals []string
}

func newMemStore() *memStore {
	return &memStore{
		emojis: make(map[string]models.Emoji),
		usage:  make(map[tripleKey]models.EmojiUsage),
	}
}

func (m *memStore) RecordReaction(ctx context.Context, usage models.EmojiUsage, emoji models.Emoji) error {
	if m.failure != nil {
		return m.failure
	}
	if err := m.RegisterEmoji(ctx, emoji); err != nil {
		return err
	}
	key := tripleKey{usage.MessageID, usage.UserID, usage.EmojiID}
	if _, ok := m.usage[key]; !ok {
		m.usage[key] = usage
	}
	return nil
}

func (m *memStore) RemoveReaction(ctx context.Context, messageID, userID, emojiID string) error {
	if m.failure != nil {
		return m.failure
	}
	delete(m.usage, tripleKey{messageID, userID, emojiID})
	return nil
}

func (m *memStore) RemoveChannel(ctx context.Context, channelID string) error {
	if m.failure != nil {
		return m.failure
	}
	m.channelRemovals = append(m.channelRemovals, channelID)
	for key, u := range m.usage {
		if u.ChannelID == channelID {
			delete(m.usage, key)
		}
	}
	return nil
}

func (m *memStore) RemoveGuild(ctx context.Context, guildID string) error {
	if m.failure != nil {
		return m.failure
	}
	for id, e := range m.emojis {
		if e.GuildID != guildID {
			continue
		}
		delete(m.emojis, id)
		for key := range m.usage {
			if key.emojiID == id {
				delete(m.usage, key)
			}
		}
	}
	return nil
}

func (m *memStore) RegisterEmoji(ctx context.Context, emoji models.Emoji) error {
	if m.failure != nil {
		return m.failure
	}
	if _, ok := m.emojis[emoji.ID]; !ok {
		m.emojis[emoji.ID] = emoji
	}
	return nil
}

func (m *memStore) RenameEmoji(ctx context.Context, emojiID, name string) (bool, error) {
	if m.failure != nil {
		return false, m.failure
	}
	e, ok := m.emojis[emojiID]
	if !ok {
		return false, nil
	}
	e.Name = name
	m.emojis[emojiID] = e
	return true, nil
}

func (m *memStore) SoftDeleteEmoji(ctx context.Context, emojiID string, at time.Time) error {
	if m.failure != nil {
		return m.failure
	}
	e, ok := m.emojis[emojiID]
	if !ok || e.DeletedOn != nil {
		return nil
	}
	e.DeletedOn = &at
	m.emojis[emojiID] = e
	return nil
}

type memArchiver struct {
	enqueued []string
}

func (m *memArchiver) Enqueue(emojiID string) {
	m.enqueued = append(m.enqueued, emojiID)
}

const (
	testGuildID   = "100"
	testChannelID = "200"
	testThreadID  = "210"
	testVoiceID   = "220"
	testEmojiID   = "300"
)

func newTestRouter(t *testing.T) (*Router, *memStore, *memArchiver) {
	t.Helper()

	store := newMemStore()
	archiver := &memArchiver{}
	state := discord.NewState()
	router := NewRouter(state, store, NewReconciler(store), archiver)

	err := router.Handle(&discord.GuildCreate{Guild: discord.Guild{
		ID:   testGuildID,
		Name: "testing grounds",
		Channels: []*discord.Channel{
			{ID: testChannelID, Type: discord.ChannelTypeGuildText, Name: "general"},
			{ID: testVoiceID, Type: discord.ChannelTypeGuildVoice, Name: "voice"},
		},
		Threads: []*discord.Channel{
			{ID: testThreadID, Type: discord.ChannelTypePublicThread, ParentID: testChannelID, Name: "a thread"},
		},
		Emojis: []discord.Emoji{{ID: testEmojiID, Name: "partyparrot"}},
	}})
	require.NoError(t, err)

	return router, store, archiver
}

func reactionAdd(messageID, userID string) *discord.ReactionAdd {
	return &discord.ReactionAdd{
		UserID:    userID,
		ChannelID: testChannelID,
		MessageID: messageID,
		GuildID:   testGuildID,
		Member:    &discord.Member{User: &discord.User{ID: userID}},
		Emoji:     discord.Emoji{ID: testEmojiID, Name: "partyparrot"},
	}
}

func TestReactionAddRecordsUsage(t *testing.T) {
	router, store, archiver := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))

	require.Len(t, store.usage, 1)
	row := store.usage[tripleKey{"m1", "u1", testEmojiID}]
	assert.Equal(t, testChannelID, row.ChannelID)
	assert.False(t, row.Date.IsZero())

	emoji := store.emojis[testEmojiID]
	assert.Equal(t, "partyparrot", emoji.Name)
	assert.Equal(t, testGuildID, emoji.GuildID)
	assert.Equal(t, discord.SnowflakeTime(testEmojiID), emoji.CreatedOn)

	assert.Equal(t, []string{testEmojiID}, archiver.enqueued)
}

func TestReactionAddIdempotent(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))
	first := store.usage[tripleKey{"m1", "u1", testEmojiID}]

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))

	require.Len(t, store.usage, 1)
	assert.Equal(t, first, store.usage[tripleKey{"m1", "u1", testEmojiID}])
}

func TestReactionAddCreateOnlyCatalog(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))

	// A later reaction carrying a stale name must not rewrite the entry.
	stale := reactionAdd("m2", "u1")
	stale.Emoji.Name = "oldname"
	require.NoError(t, router.Handle(stale))

	assert.Equal(t, "partyparrot", store.emojis[testEmojiID].Name)
}

func TestReactionAddFilters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *discord.ReactionAdd)
	}{
		{"bot user", func(e *discord.ReactionAdd) {
			e.Member = &discord.Member{User: &discord.User{ID: "u1", Bot: true}}
		}},
		{"unicode emoji", func(e *discord.ReactionAdd) {
			e.Emoji = discord.Emoji{ID: "", Name: "🦜"}
		}},
		{"unknown channel", func(e *discord.ReactionAdd) {
			e.ChannelID = "999"
		}},
		{"voice channel", func(e *discord.ReactionAdd) {
			e.ChannelID = testVoiceID
		}},
		{"missing emoji name", func(e *discord.ReactionAdd) {
			e.Emoji.Name = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, store, archiver := newTestRouter(t)

			evt := reactionAdd("m1", "u1")
			tt.mutate(evt)

			require.NoError(t, router.Handle(evt))
			assert.Empty(t, store.usage)
			assert.Empty(t, archiver.enqueued)
		})
	}
}

func TestThreadReactionUsesParentChannel(t *testing.T) {
	router, store, _ := newTestRouter(t)

	evt := reactionAdd("m1", "u1")
	evt.ChannelID = testThreadID
	require.NoError(t, router.Handle(evt))

	row := store.usage[tripleKey{"m1", "u1", testEmojiID}]
	assert.Equal(t, testChannelID, row.ChannelID)
}

func TestThreadWithoutParentDropped(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(&discord.ThreadCreate{Channel: discord.Channel{
		ID: "215", GuildID: testGuildID, Type: discord.ChannelTypePublicThread, Name: "orphan",
	}}))

	evt := reactionAdd("m1", "u1")
	evt.ChannelID = "215"
	require.NoError(t, router.Handle(evt))
	assert.Empty(t, store.usage)
}

func TestReactionRemove(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))
	require.NoError(t, router.Handle(reactionAdd("m1", "u2")))

	require.NoError(t, router.Handle(&discord.ReactionRemove{
		UserID:    "u1",
		ChannelID: testChannelID,
		MessageID: "m1",
		GuildID:   testGuildID,
		Emoji:     discord.Emoji{ID: testEmojiID, Name: "partyparrot"},
	}))

	require.Len(t, store.usage, 1)
	_, remaining := store.usage[tripleKey{"m1", "u2", testEmojiID}]
	assert.True(t, remaining)
}

func TestReactionRemoveBeforeAdd(t *testing.T) {
	router, store, _ := newTestRouter(t)

	// A removal for a row that was never recorded must be a no-op.
	require.NoError(t, router.Handle(&discord.ReactionRemove{
		UserID:    "u1",
		ChannelID: testChannelID,
		MessageID: "m1",
		GuildID:   testGuildID,
		Emoji:     discord.Emoji{ID: testEmojiID, Name: "partyparrot"},
	}))
	assert.Empty(t, store.usage)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))
	assert.Len(t, store.usage, 1)
}

func TestChannelDeleteDropsUsage(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))

	require.NoError(t, router.Handle(&discord.ChannelDelete{Channel: discord.Channel{
		ID: testChannelID, GuildID: testGuildID, Type: discord.ChannelTypeGuildText,
	}}))

	assert.Empty(t, store.usage)
	assert.Contains(t, store.channelRemovals, testChannelID)
}

func TestThreadDeleteKeepsUsage(t *testing.T) {
	router, store, _ := newTestRouter(t)

	evt := reactionAdd("m1", "u1")
	evt.ChannelID = testThreadID
	require.NoError(t, router.Handle(evt))

	// Thread rows are keyed to the parent channel; deleting the thread
	// only clears the cache entry.
	require.NoError(t, router.Handle(&discord.ThreadDelete{Channel: discord.Channel{
		ID: testThreadID, GuildID: testGuildID, Type: discord.ChannelTypePublicThread,
	}}))

	assert.Len(t, store.usage, 1)
	assert.Empty(t, store.channelRemovals)
}

func TestVoiceChannelDeleteTouchesNothing(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(&discord.ChannelDelete{Channel: discord.Channel{
		ID: testVoiceID, GuildID: testGuildID, Type: discord.ChannelTypeGuildVoice,
	}}))

	assert.Empty(t, store.channelRemovals)
}

func TestGuildDeleteCascades(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))

	require.NoError(t, router.Handle(&discord.GuildDelete{ID: testGuildID}))

	assert.Empty(t, store.emojis)
	assert.Empty(t, store.usage)
}

func TestGuildOutageKeepsData(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))

	require.NoError(t, router.Handle(&discord.GuildDelete{ID: testGuildID, Unavailable: true}))

	assert.Len(t, store.emojis, 1)
	assert.Len(t, store.usage, 1)

	// The cache survives too, so reactions keep flowing during the outage.
	require.NoError(t, router.Handle(reactionAdd("m2", "u1")))
	assert.Len(t, store.usage, 2)
}

func TestEmojiUpdateLifecycle(t *testing.T) {
	router, store, archiver := newTestRouter(t)

	// New emoji appears.
	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis: []discord.Emoji{
			{ID: testEmojiID, Name: "partyparrot"},
			{ID: "301", Name: "peepoglad"},
		},
	}))
	require.Contains(t, store.emojis, "301")
	assert.Equal(t, "peepoglad", store.emojis["301"].Name)
	assert.Contains(t, archiver.enqueued, "301")

	// Rename.
	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis: []discord.Emoji{
			{ID: testEmojiID, Name: "partyparrot"},
			{ID: "301", Name: "peeposad"},
		},
	}))
	assert.Equal(t, "peeposad", store.emojis["301"].Name)

	// Removal soft-deletes; the catalog row and its history survive.
	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis:  []discord.Emoji{{ID: testEmojiID, Name: "partyparrot"}},
	}))
	require.Contains(t, store.emojis, "301")
	require.NotNil(t, store.emojis["301"].DeletedOn)
	assert.Nil(t, store.emojis[testEmojiID].DeletedOn)
}

func TestRemovedEmojiReappearingKeepsDeletion(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis:  []discord.Emoji{},
	}))
	require.NotNil(t, store.emojis[testEmojiID].DeletedOn)

	// The id coming back (e.g. events replayed after a resume) must not
	// clear the deletion stamp: the catalog entry is create-only.
	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis:  []discord.Emoji{{ID: testEmojiID, Name: "partyparrot"}},
	}))
	assert.NotNil(t, store.emojis[testEmojiID].DeletedOn)
}

func TestEmojiUpdateRenameUntrackedSkipped(t *testing.T) {
	router, store, _ := newTestRouter(t)

	// Seed the cache with an emoji the store never saw, then rename it.
	// The mismatch is logged, not fatal.
	delete(store.emojis, testEmojiID)
	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis:  []discord.Emoji{{ID: testEmojiID, Name: "newname"}},
	}))

	assert.NotContains(t, store.emojis, testEmojiID)
}

func TestStoreFailureIsFatal(t *testing.T) {
	router, store, _ := newTestRouter(t)

	store.failure = errors.New("connection refused")

	err := router.Handle(reactionAdd("m1", "u1"))
	require.ErrorContains(t, err, "connection refused")
}

func TestDoubleAddDoubleRemove(t *testing.T) {
	router, store, _ := newTestRouter(t)

	remove := &discord.ReactionRemove{
		UserID:    "u1",
		ChannelID: testChannelID,
		MessageID: "m1",
		GuildID:   testGuildID,
		Emoji:     discord.Emoji{ID: testEmojiID, Name: "partyparrot"},
	}

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))
	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))
	require.NoError(t, router.Handle(remove))
	require.NoError(t, router.Handle(remove))

	assert.Empty(t, store.usage)
	assert.Contains(t, store.emojis, testEmojiID)
}

// End to end: a guild comes up, members react in a text channel and a
// thread, one reaction is withdrawn, an emoji gets retired.
func TestIngestionScenario(t *testing.T) {
	router, store, _ := newTestRouter(t)

	require.NoError(t, router.Handle(reactionAdd("m1", "u1")))
	require.NoError(t, router.Handle(reactionAdd("m1", "u2")))

	inThread := reactionAdd("m2", "u1")
	inThread.ChannelID = testThreadID
	require.NoError(t, router.Handle(inThread))

	require.NoError(t, router.Handle(&discord.ReactionRemove{
		UserID:    "u2",
		ChannelID: testChannelID,
		MessageID: "m1",
		GuildID:   testGuildID,
		Emoji:     discord.Emoji{ID: testEmojiID, Name: "partyparrot"},
	}))

	require.NoError(t, router.Handle(&discord.GuildEmojisUpdate{
		GuildID: testGuildID,
		Emojis:  []discord.Emoji{},
	}))

	require.Len(t, store.usage, 2)
	for _, u := range store.usage {
		assert.Equal(t, testChannelID, u.ChannelID)
	}
	require.NotNil(t, store.emojis[testEmojiID].DeletedOn)
}
