package models

import (
	"time"
)

// Emoji is a catalog entry for a guild's custom emoji. The id is the
// platform-assigned snowflake and is stable for the emoji's lifetime.
type Emoji struct {
	ID        string     `json:"id" db:"id"`
	GuildID   string     `json:"guildId" db:"guild_id"`
	Name      string     `json:"name" db:"name"`
	CreatedOn time.Time  `json:"createdOn" db:"created_on"`
	DeletedOn *time.Time `json:"deletedOn,omitempty" db:"deleted_on"`
}

// EmojiUsage records one user reacting with one emoji to one message.
// (MessageID, UserID, EmojiID) is the identity triple; a given user
// reacting with a given emoji to a given message is stored at most once.
type EmojiUsage struct {
	MessageID string    `json:"messageId" db:"message_id"`
	UserID    string    `json:"userId" db:"user_id"`
	EmojiID   string    `json:"emojiId" db:"emoji_id"`
	ChannelID string    `json:"channelId" db:"channel_id"`
	Date      time.Time `json:"date" db:"date"`
}

// EmojiDayCount is one bucket of the per-day usage chart.
type EmojiDayCount struct {
	Day     string `json:"day" db:"day"`
	EmojiID string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Count   int64  `json:"count" db:"count"`
}

// LeaderboardEntry is one row of the all-time leaderboard.
type LeaderboardEntry struct {
	EmojiID   string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	CreatedOn time.Time  `json:"createdOn" db:"created_on"`
	DeletedOn *time.Time `json:"deletedOn,omitempty" db:"deleted_on"`
	Count     int64      `json:"count" db:"count"`
}
