package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zentra/quartzite/internal/models"
)

// Service answers the dashboard's aggregate queries. It only ever reads;
// the ingestion core is the sole writer of these tables.
//
// Day bucketing uses a fixed UTC-8 offset. There's no way to know the
// viewer's timezone at query time, so the buckets are pinned to the US
// west coast; this is a documented inaccuracy for users elsewhere.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// UsageByDay returns per-day-per-emoji usage counts for a guild within
// (start, end), ordered by day then count.
func (s *Service) UsageByDay(ctx context.Context, guildID string, start, end time.Time) ([]models.EmojiDayCount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT to_char(u.date - interval '8 hours', 'YYYY-MM-DD') AS day,
		        e.id, e.name, count(*) AS count
		FROM emoji_usage u
		JOIN emojis e ON e.id = u.emoji_id
		WHERE e.guild_id = $1 AND u.date > $2 AND u.date < $3
		GROUP BY day, e.id, e.name
		ORDER BY day ASC, count DESC`,
		guildID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage by day: %w", err)
	}
	defer rows.Close()

	var counts []models.EmojiDayCount
	for rows.Next() {
		var c models.EmojiDayCount
		if err := rows.Scan(&c.Day, &c.EmojiID, &c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		counts = append(counts, c)
	}
	if counts == nil {
		counts = []models.EmojiDayCount{}
	}
	return counts, rows.Err()
}

// Leaderboard returns every emoji the guild has (or had), with all-time
// usage counts and first-seen timestamps, busiest first.
func (s *Service) Leaderboard(ctx context.Context, guildID string) ([]models.LeaderboardEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT e.id, e.name, e.created_on, e.deleted_on, count(u.message_id) AS count
		FROM emojis e
		LEFT JOIN emoji_usage u ON u.emoji_id = e.id
		WHERE e.guild_id = $1
		GROUP BY e.id, e.name, e.created_on, e.deleted_on
		ORDER BY count DESC, e.name ASC`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.EmojiID, &e.Name, &e.CreatedOn, &e.DeletedOn, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	return entries, rows.Err()
}

// EarliestUsage returns the date of the guild's first recorded reaction,
// or nil when there is none; the dashboard shows it as "since …".
func (s *Service) EarliestUsage(ctx context.Context, guildID string) (*time.Time, error) {
	var earliest *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT min(u.date)
		FROM emoji_usage u
		JOIN emojis e ON e.id = u.emoji_id
		WHERE e.guild_id = $1`,
		guildID,
	).Scan(&earliest)
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest usage: %w", err)
	}
	return earliest, nil
}
