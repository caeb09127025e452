package discord

// State is the in-memory snapshot of channels and emoji the connection
// has been told about. Reaction events only carry a channel id, so
// channel type and thread parent filtering need this cache, and
// GUILD_EMOJIS_UPDATE only ships the full emoji list, so rename and
// delete detection needs the previous one.
//
// The supervisor run loop is the sole reader and writer; events are
// handled to completion one at a time, so no locking is needed.
type State struct {
	channels map[string]*Channel
	guilds   map[string]*guildState
}

type guildState struct {
	name   string
	emojis map[string]Emoji
}

func NewState() *State {
	return &State{
		channels: make(map[string]*Channel),
		guilds:   make(map[string]*guildState),
	}
}

// Channel returns the cached channel or thread, or nil if unknown.
func (s *State) Channel(id string) *Channel {
	return s.channels[id]
}

// GuildName returns the cached guild name, for log context only.
func (s *State) GuildName(id string) string {
	if g, ok := s.guilds[id]; ok {
		return g.name
	}
	return ""
}

// ApplyGuildCreate replaces the guild's channel and emoji snapshot.
func (s *State) ApplyGuildCreate(e *GuildCreate) {
	g := &guildState{name: e.Name, emojis: make(map[string]Emoji, len(e.Emojis))}
	for _, em := range e.Emojis {
		g.emojis[em.ID] = em
	}
	s.guilds[e.ID] = g

	for _, ch := range e.Channels {
		if ch.GuildID == "" {
			ch.GuildID = e.ID
		}
		s.channels[ch.ID] = ch
	}
	for _, th := range e.Threads {
		if th.GuildID == "" {
			th.GuildID = e.ID
		}
		s.channels[th.ID] = th
	}
}

// ApplyGuildDelete drops the guild and all of its cached channels.
// Outage-flagged deletes keep the cache; the guild is still a member.
func (s *State) ApplyGuildDelete(e *GuildDelete) {
	if e.Unavailable {
		return
	}
	delete(s.guilds, e.ID)
	for id, ch := range s.channels {
		if ch.GuildID == e.ID {
			delete(s.channels, id)
		}
	}
}

// ApplyChannel upserts a channel or thread into the cache.
func (s *State) ApplyChannel(ch *Channel) {
	s.channels[ch.ID] = ch
}

// ApplyChannelDelete removes a channel or thread from the cache.
func (s *State) ApplyChannelDelete(id string) {
	delete(s.channels, id)
}

// EmojiDiff is the outcome of reconciling a GUILD_EMOJIS_UPDATE payload
// against the previous snapshot.
type EmojiDiff struct {
	Added   []Emoji
	Renamed []Emoji
	Removed []Emoji
}

// ApplyEmojiUpdate replaces the guild's emoji snapshot and reports what
// changed. An update for an untracked guild diffs against an empty set,
// so everything shows up as added.
func (s *State) ApplyEmojiUpdate(guildID string, emojis []Emoji) EmojiDiff {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &guildState{emojis: make(map[string]Emoji)}
		s.guilds[guildID] = g
	}

	var diff EmojiDiff
	next := make(map[string]Emoji, len(emojis))
	for _, em := range emojis {
		next[em.ID] = em
		prev, existed := g.emojis[em.ID]
		switch {
		case !existed:
			diff.Added = append(diff.Added, em)
		case prev.Name != em.Name:
			diff.Renamed = append(diff.Renamed, em)
		}
	}
	for id, em := range g.emojis {
		if _, still := next[id]; !still {
			diff.Removed = append(diff.Removed, em)
		}
	}

	g.emojis = next
	return diff
}
