package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zentra/quartzite/internal/discord"
	"github.com/zentra/quartzite/internal/models"
)

// Archiver receives first-seen emoji ids for best-effort image
// snapshotting. Never blocks and never fails ingestion.
type Archiver interface {
	Enqueue(emojiID string)
}

// Router turns the typed gateway event stream into store mutations. It
// is stateless apart from the channel/emoji snapshot it maintains for
// filtering; all durable state lives in the store.
//
// Handle is called from the single supervisor run loop, one event at a
// time, each to completion, so mutations for the same identity triple
// never interleave.
type Router struct {
	state      *discord.State
	store      Store
	reconciler *Reconciler
	archiver   Archiver
}

func NewRouter(state *discord.State, store Store, reconciler *Reconciler, archiver Archiver) *Router {
	return &Router{
		state:      state,
		store:      store,
		reconciler: reconciler,
		archiver:   archiver,
	}
}

// Handle dispatches one event. Returned errors are store failures and
// are fatal for the process; everything recoverable is logged and
// swallowed here.
func (r *Router) Handle(evt discord.Event) error {
	ctx := context.Background()

	switch e := evt.(type) {
	case *discord.Ready:
		log.Info().Str("username", e.User.Username).Msg("Signed in to gateway")

	case *discord.Resumed:
		log.Info().Msg("Gateway session resumed")

	case *discord.GuildCreate:
		r.state.ApplyGuildCreate(e)

	case *discord.GuildDelete:
		if e.Unavailable {
			// Outage, not a departure; keep everything.
			return nil
		}
		if err := r.store.RemoveGuild(ctx, e.ID); err != nil {
			return err
		}
		r.state.ApplyGuildDelete(e)
		log.Info().Str("guildId", e.ID).Msg("Guild removed, usage dropped")

	case *discord.GuildEmojisUpdate:
		return r.handleEmojiUpdate(ctx, e)

	case *discord.ChannelCreate:
		r.state.ApplyChannel(&e.Channel)

	case *discord.ChannelUpdate:
		r.state.ApplyChannel(&e.Channel)

	case *discord.ChannelDelete:
		if e.Channel.Type == discord.ChannelTypeGuildText {
			if err := r.store.RemoveChannel(ctx, e.Channel.ID); err != nil {
				return err
			}
		}
		r.state.ApplyChannelDelete(e.Channel.ID)

	case *discord.ThreadCreate:
		r.state.ApplyChannel(&e.Channel)

	case *discord.ThreadDelete:
		r.state.ApplyChannelDelete(e.Channel.ID)

	case *discord.ReactionAdd:
		return r.handleReactionAdd(ctx, e)

	case *discord.ReactionRemove:
		return r.handleReactionRemove(ctx, e)
	}

	return nil
}

func (r *Router) handleReactionAdd(ctx context.Context, e *discord.ReactionAdd) error {
	if e.Member != nil && e.Member.User != nil && e.Member.User.Bot {
		return nil
	}
	if !e.Emoji.Custom() {
		return nil
	}

	channelID, ok := r.resolveChannel(e.GuildID, e.ChannelID)
	if !ok {
		return nil
	}

	if e.Emoji.Name == "" {
		// The catalog requires a name; without one the row is useless.
		log.Error().
			Str("emojiId", e.Emoji.ID).
			Str("guildId", e.GuildID).
			Str("guild", r.state.GuildName(e.GuildID)).
			Msg("Can't resolve name for emoji, dropping reaction")
		return nil
	}

	err := r.store.RecordReaction(ctx,
		models.EmojiUsage{
			MessageID: e.MessageID,
			UserID:    e.UserID,
			EmojiID:   e.Emoji.ID,
			ChannelID: channelID,
			Date:      time.Now().UTC(),
		},
		models.Emoji{
			ID:        e.Emoji.ID,
			GuildID:   e.GuildID,
			Name:      e.Emoji.Name,
			CreatedOn: discord.SnowflakeTime(e.Emoji.ID),
		},
	)
	if err != nil {
		return err
	}

	if r.archiver != nil {
		r.archiver.Enqueue(e.Emoji.ID)
	}
	return nil
}

func (r *Router) handleReactionRemove(ctx context.Context, e *discord.ReactionRemove) error {
	// Removal events carry no member payload, so the bot check can't be
	// applied here; deleting a row a bot never created is a no-op anyway.
	if !e.Emoji.Custom() {
		return nil
	}
	if _, ok := r.resolveChannel(e.GuildID, e.ChannelID); !ok {
		return nil
	}

	return r.store.RemoveReaction(ctx, e.MessageID, e.UserID, e.Emoji.ID)
}

// resolveChannel applies the channel filter and maps public sub-threads
// onto their parent text channel. Returns the channel id usage rows
// should carry, or ok=false when the reaction should be dropped.
func (r *Router) resolveChannel(guildID, channelID string) (string, bool) {
	ch := r.state.Channel(channelID)
	if ch == nil {
		return "", false
	}

	switch ch.Type {
	case discord.ChannelTypeGuildText:
		return ch.ID, true
	case discord.ChannelTypePublicThread:
		if ch.ParentID == "" {
			// Usage keyed to a thread we can't root is unrecoverable at
			// ingestion time. Reported, not fatal.
			log.Error().
				Str("threadId", ch.ID).
				Str("thread", ch.Name).
				Str("guildId", guildID).
				Str("guild", r.state.GuildName(guildID)).
				Msg("Can't resolve parent for thread, dropping reaction")
			return "", false
		}
		return ch.ParentID, true
	default:
		// Voice chats, forums, announcement channels and the rest are
		// out of scope.
		return "", false
	}
}

func (r *Router) handleEmojiUpdate(ctx context.Context, e *discord.GuildEmojisUpdate) error {
	diff := r.state.ApplyEmojiUpdate(e.GuildID, e.Emojis)

	for _, em := range diff.Added {
		if em.Name == "" {
			log.Error().Str("emojiId", em.ID).Str("guildId", e.GuildID).Msg("Can't resolve name for new emoji, skipping")
			continue
		}
		err := r.store.RegisterEmoji(ctx, models.Emoji{
			ID:        em.ID,
			GuildID:   e.GuildID,
			Name:      em.Name,
			CreatedOn: discord.SnowflakeTime(em.ID),
		})
		if err != nil {
			return err
		}
		if r.archiver != nil {
			r.archiver.Enqueue(em.ID)
		}
	}

	for _, em := range diff.Renamed {
		if em.Name == "" {
			log.Error().Str("emojiId", em.ID).Str("guildId", e.GuildID).Msg("Can't resolve name for emoji, skipping rename")
			continue
		}
		if err := r.reconciler.RenameEmoji(ctx, em.ID, em.Name); err != nil {
			return err
		}
	}

	for _, em := range diff.Removed {
		if err := r.reconciler.SoftDeleteEmoji(ctx, em.ID); err != nil {
			return err
		}
	}

	return nil
}
