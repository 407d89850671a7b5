// Package dingtalk implements the DingTalk transport: an outbound robot
// message client and an inbound webhook receiver.
package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// APIBaseURL is the DingTalk open-platform endpoint (overridable in tests).
var APIBaseURL = "https://api.dingtalk.com"

// Client sends robot messages through the DingTalk API. It caches the access
// token until shortly before expiry and rate-limits sends to stay inside the
// platform's per-robot quota.
type Client struct {
	appKey    string
	appSecret string
	robotCode string

	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a DingTalk robot client.
func NewClient(appKey, appSecret, robotCode string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		appKey:    appKey,
		appSecret: appSecret,
		robotCode: robotCode,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(15), 15),
		logger:    logger,
	}
}

// SendText delivers a plain-text message to one user.
func (c *Client) SendText(ctx context.Context, userID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	msgParam, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return err
	}
	body := map[string]any{
		"robotCode": c.robotCode,
		"userIds":   []string{userID},
		"msgKey":    "sampleText",
		"msgParam":  string(msgParam),
	}

	var result struct {
		ProcessQueryKey string   `json:"processQueryKey"`
		InvalidStaffIDs []string `json:"invalidStaffIdList"`
	}
	err = c.postJSON(ctx, "/v1.0/robot/oToMessages/batchSend", token, body, &result)
	if err != nil {
		return errors.Wrapf(err, "send text to %s", userID)
	}
	if len(result.InvalidStaffIDs) > 0 {
		return errors.Errorf("invalid staff id %s", result.InvalidStaffIDs[0])
	}
	return nil
}

// accessToken returns a cached token, refreshing when within a minute of
// expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	var result struct {
		AccessToken string `json:"accessToken"`
		ExpireIn    int64  `json:"expireIn"`
	}
	body := map[string]string{"appKey": c.appKey, "appSecret": c.appSecret}
	if err := c.postJSON(ctx, "/v1.0/oauth2/accessToken", "", body, &result); err != nil {
		return "", errors.Wrap(err, "fetch access token")
	}
	if result.AccessToken == "" {
		return "", errors.New("empty access token in response")
	}

	c.token = result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpireIn) * time.Second)
	return c.token, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, APIBaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-acs-dingtalk-access-token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("dingtalk api %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
