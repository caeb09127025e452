package models

import (
	"time"
)

// DiscordGuild is the slice of a guild the dashboard cares about,
// as returned by the Discord /users/@me/guilds endpoint.
type DiscordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// DiscordUser is the signed-in user's Discord identity.
type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Session is a dashboard sign-in session, stored in redis under the
// refresh token hash and expired via TTL.
type Session struct {
	ID        string         `json:"id"`
	User      DiscordUser    `json:"user"`
	Guilds    []DiscordGuild `json:"guilds"`
	CreatedAt time.Time      `json:"createdAt"`
	// Discord OAuth access token, sealed with the process encryption key
	// before the session is written out.
	SealedAccessToken string `json:"sealedAccessToken,omitempty"`
}
