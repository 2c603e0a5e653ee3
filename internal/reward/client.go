package reward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/open-format/rewarder/internal/model"
)

// ErrIssuance is the sentinel wrapped by every failed external reward call.
// Issuance failures are recoverable: the coordinator releases the
// reservation so a later retry can succeed.
var ErrIssuance = errors.New("reward: issuance failed")

// Issuer is the external reward API collaborator. Failures are reported as
// errors, never encoded in the receipt.
type Issuer interface {
	Issue(ctx context.Context, ref model.MessageRef, score model.ScoreResult) (model.IssueReceipt, error)
}

// StubIssuer always succeeds. It mirrors the upstream reward API stub and
// is the default when no reward API URL is configured.
type StubIssuer struct{}

func (StubIssuer) Issue(_ context.Context, _ model.MessageRef, _ model.ScoreResult) (model.IssueReceipt, error) {
	return model.IssueReceipt{Status: "success", Message: "Reward API call successful"}, nil
}

// APIClient issues rewards over HTTP. Each request carries a short-lived
// HS256 bearer so the reward API can attribute issuance to this agent
// without a shared session.
type APIClient struct {
	baseURL string
	agentID string
	secret  []byte
	http    *retryablehttp.Client
}

const tokenTTL = 2 * time.Minute

// NewAPIClient creates a reward API client. The retry policy is conservative:
// reservation release on failure makes a duplicate POST after an ambiguous
// timeout the reward API's problem to dedupe, not ours, so retries stay low.
func NewAPIClient(baseURL, agentID string, secret []byte, logger *slog.Logger) *APIClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = slog.NewLogLogger(logger.Handler(), slog.LevelDebug)
	return &APIClient{baseURL: baseURL, agentID: agentID, secret: secret, http: rc}
}

type issueRequest struct {
	GuildID      string  `json:"guild_id"`
	ChannelID    string  `json:"channel_id"`
	MessageID    string  `json:"message_id"`
	QualityScore float64 `json:"quality_score"`
	TrustScore   float64 `json:"trust_score"`
}

func (c *APIClient) bearer(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   c.agentID,
		Issuer:    "rewarder",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *APIClient) Issue(ctx context.Context, ref model.MessageRef, score model.ScoreResult) (model.IssueReceipt, error) {
	body, err := json.Marshal(issueRequest{
		GuildID:      ref.GuildID,
		ChannelID:    ref.ChannelID,
		MessageID:    ref.MessageID,
		QualityScore: score.QualityScore,
		TrustScore:   score.TrustScore,
	})
	if err != nil {
		return model.IssueReceipt{}, fmt.Errorf("%w: marshal request: %v", ErrIssuance, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rewards", bytes.NewReader(body))
	if err != nil {
		return model.IssueReceipt{}, fmt.Errorf("%w: build request: %v", ErrIssuance, err)
	}
	token, err := c.bearer(time.Now().UTC())
	if err != nil {
		return model.IssueReceipt{}, fmt.Errorf("%w: sign token: %v", ErrIssuance, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.IssueReceipt{}, fmt.Errorf("%w: %v", ErrIssuance, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.IssueReceipt{}, fmt.Errorf("%w: reward API returned %d: %s", ErrIssuance, resp.StatusCode, snippet)
	}

	var receipt model.IssueReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return model.IssueReceipt{}, fmt.Errorf("%w: decode response: %v", ErrIssuance, err)
	}
	return receipt, nil
}
