package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/joinwarden/joinwarden/internal/setup/config"
	"go.uber.org/zap"
)

// ErrNoAdminChat indicates that no admin chat is configured for alerts.
var ErrNoAdminChat = errors.New("no admin chat configured")

// Client talks to the Telegram Bot API over HTTP with automatic retries
// for transient transport failures. API-level rejections (ok=false) are
// not retried; the engine treats them as per-item failures.
type Client struct {
	http        *retryablehttp.Client
	baseURL     string
	token       string
	adminChatID int64
	logger      *zap.Logger
}

// NewClient creates a Bot API client from the telegram config section.
func NewClient(cfg *config.Telegram, logger *zap.Logger) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.RetryWaitMin = 500 * time.Millisecond
	httpClient.RetryWaitMax = 5 * time.Second
	httpClient.HTTPClient.Timeout = time.Duration(cfg.RequestTimeout) * time.Millisecond
	httpClient.Logger = nil

	return &Client{
		http:        httpClient,
		baseURL:     cfg.APIURL,
		token:       cfg.Token,
		adminChatID: cfg.AdminChatID,
		logger:      logger.Named("telegram"),
	}
}

// apiResponse is the Bot API envelope shared by all methods.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// SendMessage delivers a direct message to a user.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
}

// ApproveJoinRequest accepts a pending join request.
func (c *Client) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "approveChatJoinRequest", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	})
}

// DeclineJoinRequest rejects a pending join request.
func (c *Client) DeclineJoinRequest(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "declineChatJoinRequest", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	})
}

// BanMember bans a user from a chat.
func (c *Client) BanMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	})
}

// SendAdminAlert forwards operational failures to the configured admin chat.
func (c *Client) SendAdminAlert(ctx context.Context, text string) error {
	if c.adminChatID == 0 {
		return ErrNoAdminChat
	}

	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": c.adminChatID,
		"text":    text,
	})
}

// call performs one Bot API method invocation.
func (c *Client) call(ctx context.Context, method string, params map[string]any) error {
	body, err := sonic.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal %s params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := sonic.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if !apiResp.OK {
		c.logger.Debug("Bot API rejected request",
			zap.String("method", method),
			zap.Int("errorCode", apiResp.ErrorCode),
			zap.String("description", apiResp.Description))

		return fmt.Errorf("%s rejected: %s (code %d)", method, apiResp.Description, apiResp.ErrorCode)
	}

	return nil
}
