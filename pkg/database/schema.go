package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// The ingestion core is the only writer of these tables; the dashboard
// API reads them through independent aggregate queries.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS emojis (
		id         TEXT PRIMARY KEY,
		guild_id   TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_on TIMESTAMPTZ NOT NULL,
		deleted_on TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emojis_guild_id ON emojis (guild_id)`,
	`CREATE TABLE IF NOT EXISTS emoji_usage (
		message_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		emoji_id   TEXT NOT NULL REFERENCES emojis (id) ON DELETE CASCADE,
		channel_id TEXT NOT NULL,
		date       TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (message_id, user_id, emoji_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emoji_usage_channel_id ON emoji_usage (channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_emoji_usage_emoji_id ON emoji_usage (emoji_id)`,
	`CREATE INDEX IF NOT EXISTS idx_emoji_usage_date ON emoji_usage (date)`,
}

// Migrate applies the schema. Every statement is idempotent, so running
// it on every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	log.Info().Msg("Database schema up to date")
	return nil
}
