package discord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Gateway opcodes
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// Gateway intents. The connection declares interest in guild membership,
// guild messages, message reactions and custom-emoji lifecycle.
const (
	IntentGuilds               = 1 << 0
	IntentGuildMembers         = 1 << 1
	IntentGuildExpressions     = 1 << 3
	IntentGuildMessages        = 1 << 9
	IntentGuildMessageReaction = 1 << 10
)

// DefaultIntents is the fixed subscription set for the tracker.
const DefaultIntents = IntentGuilds | IntentGuildMembers | IntentGuildExpressions |
	IntentGuildMessages | IntentGuildMessageReaction

// Channel types (the subset the tracker distinguishes)
const (
	ChannelTypeGuildText     = 0
	ChannelTypeGuildVoice    = 2
	ChannelTypeGuildCategory = 4
	ChannelTypeAnnouncement  = 5
	ChannelTypePublicThread  = 11
	ChannelTypePrivateThread = 12
)

// payload is a raw gateway frame.
type payload struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Seq  int64           `json:"s,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// User is a Discord user as carried inside gateway events.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot"`
}

type Member struct {
	User *User `json:"user"`
}

// Emoji is a guild custom emoji as carried in GUILD_CREATE and
// GUILD_EMOJIS_UPDATE payloads. Reaction events carry a partial form
// where ID is empty for built-in unicode emoji.
type Emoji struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Custom reports whether the emoji is a guild custom emoji rather than
// a built-in unicode one.
func (e Emoji) Custom() bool { return e.ID != "" }

type ThreadMetadata struct {
	Archived bool `json:"archived"`
	Locked   bool `json:"locked"`
}

// Channel describes a guild channel or thread.
type Channel struct {
	ID             string          `json:"id"`
	GuildID        string          `json:"guild_id"`
	ParentID       string          `json:"parent_id"`
	Type           int             `json:"type"`
	Name           string          `json:"name"`
	ThreadMetadata *ThreadMetadata `json:"thread_metadata,omitempty"`
	// Set on THREAD_CREATE when the thread was just created rather than
	// merely becoming visible to the connection.
	NewlyCreated bool `json:"newly_created,omitempty"`
}

// Joinable reports whether the tracker can join the thread to keep
// receiving its reaction events.
func (c *Channel) Joinable() bool {
	if c.Type != ChannelTypePublicThread {
		return false
	}
	if c.ThreadMetadata != nil && (c.ThreadMetadata.Archived || c.ThreadMetadata.Locked) {
		return false
	}
	return true
}

// Guild is the GUILD_CREATE payload slice the tracker keeps.
type Guild struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Unavailable bool       `json:"unavailable"`
	Channels    []*Channel `json:"channels"`
	Threads     []*Channel `json:"threads"`
	Emojis      []Emoji    `json:"emojis"`
}

// Event is the closed set of typed gateway events the tracker handles.
// Unrecognized dispatch kinds decode to nil and are dropped before they
// reach the router.
type Event interface {
	eventName() string
}

type Ready struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             User   `json:"user"`
}

type Resumed struct{}

type GuildCreate struct {
	Guild
}

type GuildDelete struct {
	ID string `json:"id"`
	// Unavailable means the guild went down with an outage rather than
	// removing the connection; no data should be dropped for it.
	Unavailable bool `json:"unavailable"`
}

type GuildEmojisUpdate struct {
	GuildID string  `json:"guild_id"`
	Emojis  []Emoji `json:"emojis"`
}

type ChannelCreate struct{ Channel }

type ChannelUpdate struct{ Channel }

type ChannelDelete struct{ Channel }

type ThreadCreate struct{ Channel }

type ThreadDelete struct{ Channel }

type ReactionAdd struct {
	UserID    string  `json:"user_id"`
	ChannelID string  `json:"channel_id"`
	MessageID string  `json:"message_id"`
	GuildID   string  `json:"guild_id"`
	Member    *Member `json:"member"`
	Emoji     Emoji   `json:"emoji"`
}

type ReactionRemove struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id"`
	Emoji     Emoji  `json:"emoji"`
}

func (*Ready) eventName() string             { return "READY" }
func (*Resumed) eventName() string           { return "RESUMED" }
func (*GuildCreate) eventName() string       { return "GUILD_CREATE" }
func (*GuildDelete) eventName() string       { return "GUILD_DELETE" }
func (*GuildEmojisUpdate) eventName() string { return "GUILD_EMOJIS_UPDATE" }
func (*ChannelCreate) eventName() string     { return "CHANNEL_CREATE" }
func (*ChannelUpdate) eventName() string     { return "CHANNEL_UPDATE" }
func (*ChannelDelete) eventName() string     { return "CHANNEL_DELETE" }
func (*ThreadCreate) eventName() string      { return "THREAD_CREATE" }
func (*ThreadDelete) eventName() string      { return "THREAD_DELETE" }
func (*ReactionAdd) eventName() string       { return "MESSAGE_REACTION_ADD" }
func (*ReactionRemove) eventName() string    { return "MESSAGE_REACTION_REMOVE" }

// decodeDispatch converts a dispatch frame into a typed event. A nil
// event with nil error means the kind is not one the tracker consumes;
// the caller drops it for forward compatibility with upstream additions.
func decodeDispatch(kind string, data json.RawMessage) (Event, error) {
	var evt Event
	switch kind {
	case "READY":
		evt = &Ready{}
	case "RESUMED":
		return &Resumed{}, nil
	case "GUILD_CREATE":
		evt = &GuildCreate{}
	case "GUILD_DELETE":
		evt = &GuildDelete{}
	case "GUILD_EMOJIS_UPDATE":
		evt = &GuildEmojisUpdate{}
	case "CHANNEL_CREATE":
		evt = &ChannelCreate{}
	case "CHANNEL_UPDATE":
		evt = &ChannelUpdate{}
	case "CHANNEL_DELETE":
		evt = &ChannelDelete{}
	case "THREAD_CREATE":
		evt = &ThreadCreate{}
	case "THREAD_DELETE":
		evt = &ThreadDelete{}
	case "MESSAGE_REACTION_ADD":
		evt = &ReactionAdd{}
	case "MESSAGE_REACTION_REMOVE":
		evt = &ReactionRemove{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return evt, nil
}

// discordEpoch is the first second of 2015, the zero point of snowflake ids.
const discordEpoch = 1420070400000

// SnowflakeTime extracts the creation time embedded in a snowflake id.
// Returns the zero time for ids that don't parse.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + discordEpoch
	return time.UnixMilli(ms).UTC()
}
