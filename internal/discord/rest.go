package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zentra/quartzite/internal/models"
)

// APIBaseURL is the Discord REST endpoint.
const APIBaseURL = "https://discord.com/api/v10"

// Rest is the small slice of the Discord REST API the tracker needs:
// joining threads with the bot token and the OAuth dance for dashboard
// sign-in.
type Rest struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
}

func NewRest(botToken string) *Rest {
	return &Rest{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    APIBaseURL,
		botToken:   botToken,
	}
}

// WithBaseURL overrides the API endpoint; for tests.
func (r *Rest) WithBaseURL(base string) *Rest {
	r.baseURL = strings.TrimRight(base, "/")
	return r
}

// JoinThread adds the bot to a thread so reaction events keep flowing
// for it.
func (r *Rest) JoinThread(ctx context.Context, channelID string) error {
	endpoint := fmt.Sprintf("%s/channels/%s/thread-members/@me", r.baseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+r.botToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to join thread: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to join thread: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// ExchangeCode swaps an OAuth authorization code for an access token.
func (r *Rest) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURL, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("failed to exchange code: status %d: %s", resp.StatusCode, body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return token.AccessToken, nil
}

// CurrentUser fetches the identity behind an OAuth access token.
func (r *Rest) CurrentUser(ctx context.Context, accessToken string) (*models.DiscordUser, error) {
	var user models.DiscordUser
	if err := r.getJSON(ctx, "/users/@me", accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CurrentUserGuilds fetches the guilds the token's user belongs to.
func (r *Rest) CurrentUserGuilds(ctx context.Context, accessToken string) ([]models.DiscordGuild, error) {
	var guilds []models.DiscordGuild
	if err := r.getJSON(ctx, "/users/@me/guilds", accessToken, &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

func (r *Rest) getJSON(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request to %s failed: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
