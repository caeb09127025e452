package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zentra/quartzite/internal/models"
	"github.com/zentra/quartzite/pkg/database"
)

// Store is the ledger's persistence contract. Every operation is a
// single atomic transaction; failures are surfaced to the caller and
// terminate the process (upstream redelivery on reconnect is the retry
// mechanism, there is no retry queue here).
type Store interface {
	// RecordReaction upserts the emoji (create-only: an existing row's
	// name and created_on are left untouched) and inserts the usage row.
	// Re-delivery of the same reaction is a silent no-op.
	RecordReaction(ctx context.Context, usage models.EmojiUsage, emoji models.Emoji) error

	// RemoveReaction deletes the usage row for the identity triple.
	// Removing a row that doesn't exist is a no-op.
	RemoveReaction(ctx context.Context, messageID, userID, emojiID string) error

	// RemoveChannel bulk-deletes every usage row for the channel.
	RemoveChannel(ctx context.Context, channelID string) error

	// RemoveGuild deletes the guild's emoji rows; their usage rows go
	// with them via the foreign key cascade.
	RemoveGuild(ctx context.Context, guildID string) error

	// RegisterEmoji adds a catalog entry if it's not already there.
	RegisterEmoji(ctx context.Context, emoji models.Emoji) error

	// RenameEmoji updates the display name in place. Reports whether
	// the emoji was known.
	RenameEmoji(ctx context.Context, emojiID, name string) (bool, error)

	// SoftDeleteEmoji stamps deleted_on. Once set it is never cleared,
	// so repeating the call is harmless.
	SoftDeleteEmoji(ctx context.Context, emojiID string, at time.Time) error
}

// SQLStore is the PostgreSQL ledger.
type SQLStore struct {
	pool *pgxpool.Pool
}

func NewSQLStore(pool *pgxpool.Pool) *SQLStore {
	return &SQLStore{pool: pool}
}

func (s *SQLStore) RecordReaction(ctx context.Context, usage models.EmojiUsage, emoji models.Emoji) error {
	// The emoji upsert and the usage insert commit together so the
	// foreign key holds even when a reaction races the catalog.
	err := database.WithTransaction(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO emojis (id, guild_id, name, created_on)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			emoji.ID, emoji.GuildID, emoji.Name, emoji.CreatedOn,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO emoji_usage (message_id, user_id, emoji_id, channel_id, date)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (message_id, user_id, emoji_id) DO NOTHING`,
			usage.MessageID, usage.UserID, usage.EmojiID, usage.ChannelID, usage.Date,
		); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record reaction: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveReaction(ctx context.Context, messageID, userID, emojiID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM emoji_usage WHERE message_id = $1 AND user_id = $2 AND emoji_id = $3`,
		messageID, userID, emojiID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveChannel(ctx context.Context, channelID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM emoji_usage WHERE channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("failed to remove channel usage: %w", err)
	}
	return nil
}

func (s *SQLStore) RemoveGuild(ctx context.Context, guildID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM emojis WHERE guild_id = $1`, guildID)
	if err != nil {
		return fmt.Errorf("failed to remove guild emojis: %w", err)
	}
	return nil
}

func (s *SQLStore) RegisterEmoji(ctx context.Context, emoji models.Emoji) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO emojis (id, guild_id, name, created_on)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		emoji.ID, emoji.GuildID, emoji.Name, emoji.CreatedOn,
	)
	if err != nil {
		return fmt.Errorf("failed to register emoji: %w", err)
	}
	return nil
}

func (s *SQLStore) RenameEmoji(ctx context.Context, emojiID, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE emojis SET name = $1 WHERE id = $2`, name, emojiID)
	if err != nil {
		return false, fmt.Errorf("failed to rename emoji: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SQLStore) SoftDeleteEmoji(ctx context.Context, emojiID string, at time.Time) error {
	// deleted_on is monotonic: the guard keeps an already-set timestamp.
	_, err := s.pool.Exec(ctx,
		`UPDATE emojis SET deleted_on = $1 WHERE id = $2 AND deleted_on IS NULL`,
		at, emojiID,
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete emoji: %w", err)
	}
	return nil
}
