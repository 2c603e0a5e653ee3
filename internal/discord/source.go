package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/open-format/rewarder/internal/model"
)

// DefaultAPIBase is the public REST endpoint for the chat platform.
const DefaultAPIBase = "https://discord.com/api/v10"

// RESTSource resolves message locators against the Discord REST API. It
// fetches the message body, the channel topic, and the author's guild
// membership, and folds them into a single snapshot.
type RESTSource struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// NewRESTSource builds a source authenticated with a bot token. baseURL
// may be empty, in which case the public API endpoint is used.
func NewRESTSource(baseURL, token string, logger *slog.Logger) *RESTSource {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
	return &RESTSource{
		baseURL: baseURL,
		token:   token,
		http:    client,
		logger:  logger,
	}
}

type messagePayload struct {
	Content string `json:"content"`
	Author  struct {
		ID string `json:"id"`
	} `json:"author"`
	Reactions []struct {
		Count int `json:"count"`
	} `json:"reactions"`
	Thread *struct {
		MessageCount int `json:"message_count"`
	} `json:"thread"`
}

type channelPayload struct {
	Topic string `json:"topic"`
}

type memberPayload struct {
	Roles []string `json:"roles"`
}

// Snapshot resolves a message locator to a snapshot. A missing message or
// channel maps to ErrNotResolvable; a missing guild membership does not
// fail the snapshot, it only leaves the member fields empty.
func (s *RESTSource) Snapshot(ctx context.Context, ref model.MessageRef) (model.MessageSnapshot, error) {
	var msg messagePayload
	path := fmt.Sprintf("/channels/%s/messages/%s", ref.ChannelID, ref.MessageID)
	if err := s.get(ctx, path, &msg); err != nil {
		return model.MessageSnapshot{}, err
	}

	var channel channelPayload
	if err := s.get(ctx, "/channels/"+ref.ChannelID, &channel); err != nil {
		return model.MessageSnapshot{}, err
	}

	snap := model.MessageSnapshot{
		Ref:             ref,
		Content:         boundContent(msg.Content),
		AuthorID:        msg.Author.ID,
		AuthorCreatedAt: snowflakeTime(msg.Author.ID),
		ChannelTopic:    channel.Topic,
	}
	for _, r := range msg.Reactions {
		snap.ReactionCount += r.Count
	}
	if msg.Thread != nil {
		snap.ThreadReplyCount = msg.Thread.MessageCount
	}

	var member memberPayload
	memberPath := fmt.Sprintf("/guilds/%s/members/%s", ref.GuildID, msg.Author.ID)
	switch err := s.get(ctx, memberPath, &member); {
	case err == nil:
		snap.HasMember = true
		snap.RoleCount = len(member.Roles)
	default:
		s.logger.Debug("member lookup failed, scoring without membership",
			"guild_id", ref.GuildID, "author_id", msg.Author.ID, "error", err)
	}

	return snap, nil
}

// boundContent truncates oversized message content at a rune boundary.
// Platform messages stay far below the bound; it guards against a
// misbehaving API endpoint inflating the scoring token sets.
func boundContent(content string) string {
	if len(content) <= model.MaxContentLen {
		return content
	}
	cut := model.MaxContentLen
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}

func (s *RESTSource) get(ctx context.Context, path string, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+s.token)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("discord request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", ErrNotResolvable, path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord request %s: status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
