package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zentra/quartzite/internal/discord"
	"github.com/zentra/quartzite/internal/models"
	pkgauth "github.com/zentra/quartzite/pkg/auth"
	"github.com/zentra/quartzite/pkg/database"
	"github.com/zentra/quartzite/pkg/encryption"
)

var (
	ErrNotAllowed     = errors.New("user is not a member of any allowed guild")
	ErrInvalidState   = errors.New("invalid or expired oauth state")
	ErrInvalidSession = errors.New("invalid or expired session")
)

const stateTTL = 10 * time.Minute

// Service implements dashboard sign-in with Discord OAuth. Users may
// only authenticate if they belong to at least one whitelisted guild.
// Sessions live in redis and expire via TTL, so stale sessions prune
// themselves.
type Service struct {
	redis *redis.Client
	rest  *discord.Rest

	clientID     string
	clientSecret string
	redirectURL  string
	allowed      map[string]struct{}

	jwtSecret  string
	accessTTL  time.Duration
	sessionTTL time.Duration
	sealKey    []byte
}

func NewService(redisClient *redis.Client, rest *discord.Rest, clientID, clientSecret, redirectURL string,
	allowedGuilds []string, jwtSecret string, accessTTL, sessionTTL time.Duration, sealKey []byte) *Service {

	allowed := make(map[string]struct{}, len(allowedGuilds))
	for _, id := range allowedGuilds {
		allowed[id] = struct{}{}
	}

	return &Service{
		redis:        redisClient,
		rest:         rest,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		allowed:      allowed,
		jwtSecret:    jwtSecret,
		accessTTL:    accessTTL,
		sessionTTL:   sessionTTL,
		sealKey:      sealKey,
	}
}

// BeginLogin creates a one-time state token and returns the Discord
// authorization URL to redirect the user to. The guilds scope is needed
// to see which servers the user belongs to.
func (s *Service) BeginLogin(ctx context.Context) (string, error) {
	state, err := pkgauth.GenerateSecureToken(24)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	if err := s.redis.Set(ctx, database.KeyPrefixOAuth+state, "1", stateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}

	q := url.Values{}
	q.Set("client_id", s.clientID)
	q.Set("redirect_uri", s.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "identify guilds")
	q.Set("state", state)

	return "https://discord.com/api/oauth2/authorize?" + q.Encode(), nil
}

// CompleteLogin verifies the state, exchanges the code, checks the
// guild whitelist and opens a session.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*pkgauth.TokenPair, *models.Session, error) {
	deleted, err := s.redis.Del(ctx, database.KeyPrefixOAuth+state).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check state: %w", err)
	}
	if deleted == 0 {
		return nil, nil, ErrInvalidState
	}

	accessToken, err := s.rest.ExchangeCode(ctx, s.clientID, s.clientSecret, s.redirectURL, code)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.rest.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}

	guilds, err := s.rest.CurrentUserGuilds(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}

	var allowedGuilds []models.DiscordGuild
	for _, g := range guilds {
		if _, ok := s.allowed[g.ID]; ok {
			allowedGuilds = append(allowedGuilds, g)
		}
	}
	if len(allowedGuilds) == 0 {
		return nil, nil, ErrNotAllowed
	}

	sealed, err := encryption.SealString(accessToken, s.sealKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal access token: %w", err)
	}

	session := &models.Session{
		ID:                uuid.New().String(),
		User:              *user,
		Guilds:            allowedGuilds,
		CreatedAt:         time.Now().UTC(),
		SealedAccessToken: sealed,
	}

	pair, err := s.openSession(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	return pair, session, nil
}

// Refresh rotates a refresh token and issues a new access token. The
// old refresh token is single-use and dies with the rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*pkgauth.TokenPair, *models.Session, error) {
	key := database.KeyPrefixSession + pkgauth.HashToken(refreshToken)

	raw, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil, ErrInvalidSession
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	pair, err := s.openSession(ctx, &session)
	if err != nil {
		return nil, nil, err
	}
	return pair, &session, nil
}

// Logout drops the session behind a refresh token. Unknown tokens are
// already logged out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.redis.Del(ctx, database.KeyPrefixSession+pkgauth.HashToken(refreshToken)).Err()
}

func (s *Service) openSession(ctx context.Context, session *models.Session) (*pkgauth.TokenPair, error) {
	guildIDs := make([]string, len(session.Guilds))
	for i, g := range session.Guilds {
		guildIDs[i] = g.ID
	}

	pair, err := pkgauth.GenerateTokenPair(session.User.ID, session.User.Username, guildIDs, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	key := database.KeyPrefixSession + pkgauth.HashToken(pair.RefreshToken)
	if err := s.redis.Set(ctx, key, raw, s.sessionTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return pair, nil
}
